package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsecureVerifier reads ID token claims without checking the signature.
//
// Throwaway Keycloak realms in integration environments sign with keys that
// rotate on every container start, and the service often cannot reach their
// JWKS endpoint from inside the test network. With ALLOW_INSECURE_TOKEN=true
// an OIDC provider uses this verifier instead, so the rest of the code flow
// still runs against the realm. Expiry and audience are still enforced.
// Never enable it in production.
type InsecureVerifier struct {
	clientID string
	now      func() time.Time
}

// NewInsecureVerifier returns a verifier for tokens issued to clientID. An
// empty clientID skips the audience check.
func NewInsecureVerifier(clientID string) *InsecureVerifier {
	return &InsecureVerifier{clientID: clientID, now: time.Now}
}

// rawClaims keeps the payload as sent; Claims decodes it on demand.
type rawClaims json.RawMessage

func (c rawClaims) Claims(v interface{}) error {
	return json.Unmarshal([]byte(c), v)
}

// audience accepts both the string and the array form of "aud".
type audience []string

func (a *audience) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*a = audience{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

func (v *InsecureVerifier) Verify(ctx context.Context, raw string) (IDToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}

	var std struct {
		Expiry   *float64 `json:"exp"`
		Audience audience `json:"aud"`
	}
	if err := json.Unmarshal(payload, &std); err != nil {
		return nil, fmt.Errorf("parse token payload: %w", err)
	}
	if std.Expiry != nil && !v.now().Before(time.Unix(int64(*std.Expiry), 0)) {
		return nil, errors.New("token is expired")
	}
	if v.clientID != "" && len(std.Audience) > 0 && !contains(std.Audience, v.clientID) {
		return nil, fmt.Errorf("token audience %v does not include %q", []string(std.Audience), v.clientID)
	}
	return rawClaims(payload), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
