package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/todoapp/auth-service/internal/identity"
)

func unsignedJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

// newIssuer serves a discovery document and a token endpoint answering with
// the given body.
func newIssuer(t *testing.T, tokenBody map[string]interface{}) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/auth",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, failed := tokenBody["error"]; failed {
			w.WriteHeader(http.StatusBadRequest)
		}
		_ = json.NewEncoder(w).Encode(tokenBody)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Name: "google"})
	require.Error(t, err)
	_, err = NewProvider(context.Background(), Config{Name: "google", Issuer: "https://x", ClientID: "id"})
	require.Error(t, err)
}

func TestNewProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewProvider(context.Background(), Config{Name: "keycloak", Issuer: srv.URL, ClientID: "id", ClientSecret: "s"})
	require.Error(t, err)
}

func TestProvider_AuthCodeURLUsesDiscoveredEndpoint(t *testing.T) {
	srv := newIssuer(t, nil)
	p, err := NewProvider(context.Background(), Config{
		Name: "keycloak", Issuer: srv.URL, ClientID: "cid", ClientSecret: "s",
		RedirectURL: "http://localhost/api/auth/callback/keycloak",
	})
	require.NoError(t, err)
	assert.Equal(t, "keycloak", p.Name())

	u, err := url.Parse(p.AuthCodeURL("st", "ch"))
	require.NoError(t, err)
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "ch", u.Query().Get("code_challenge"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Contains(t, u.Query().Get("scope"), "openid")
}

func TestProvider_CompleteHandshake(t *testing.T) {
	srv := newIssuer(t, map[string]interface{}{
		"access_token": "at",
		"token_type":   "Bearer",
		"id_token": unsignedJWT(t, map[string]interface{}{
			"sub": "kc-42", "email": "a@x.com", "preferred_username": "alice", "picture": "http://img",
		}),
	})
	p, err := NewProvider(context.Background(), Config{
		Name: "keycloak", Issuer: srv.URL, ClientID: "cid", ClientSecret: "s", AllowInsecure: true,
	})
	require.NoError(t, err)

	id, err := p.CompleteHandshake(context.Background(), "code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "keycloak", id.Provider)
	assert.Equal(t, "kc-42", id.Subject)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Equal(t, "alice", id.Name)
	assert.Equal(t, "http://img", id.Image)
}

func TestProvider_CompleteHandshakeErrors(t *testing.T) {
	cases := []struct {
		name string
		body map[string]interface{}
		op   string
	}{
		{"rejected code", map[string]interface{}{"error": "invalid_grant", "error_description": "Code not valid"}, "exchange"},
		{"missing id token", map[string]interface{}{"access_token": "at", "token_type": "Bearer"}, "verify"},
		{"garbage id token", map[string]interface{}{"access_token": "at", "token_type": "Bearer", "id_token": "nope"}, "verify"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newIssuer(t, tc.body)
			p := newProvider(Config{Name: "google", ClientID: "cid", ClientSecret: "s"},
				oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
				NewInsecureVerifier("cid"), srv.Client())

			_, err := p.CompleteHandshake(context.Background(), "code", "")
			var pe *identity.ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, "google", pe.Provider)
			assert.Equal(t, tc.op, pe.Op)
		})
	}
}

func TestProvider_MissingSubject(t *testing.T) {
	srv := newIssuer(t, map[string]interface{}{
		"access_token": "at", "token_type": "Bearer",
		"id_token": unsignedJWT(t, map[string]interface{}{"email": "a@x.com"}),
	})
	p := newProvider(Config{Name: "google", ClientID: "cid", ClientSecret: "s"},
		oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		NewInsecureVerifier("cid"), srv.Client())

	_, err := p.CompleteHandshake(context.Background(), "code", "")
	require.True(t, identity.IsProviderError(err))
}

func TestInsecureVerifier(t *testing.T) {
	v := NewInsecureVerifier("cid")
	tok, err := v.Verify(context.Background(), unsignedJWT(t, map[string]interface{}{"sub": "u1", "aud": "cid"}))
	require.NoError(t, err)
	var c claims
	require.NoError(t, tok.Claims(&c))
	assert.Equal(t, "u1", c.Subject)

	_, err = v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestInsecureVerifier_EnforcesExpiryAndAudience(t *testing.T) {
	v := NewInsecureVerifier("cid")
	v.now = func() time.Time { return time.Unix(1000, 0) }

	tests := []struct {
		name    string
		claims  map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"sub": "u", "exp": 2000, "aud": []string{"other", "cid"}}, false},
		{"no exp or aud", map[string]interface{}{"sub": "u"}, false},
		{"expired", map[string]interface{}{"sub": "u", "exp": 1000}, true},
		{"foreign audience", map[string]interface{}{"sub": "u", "aud": "someone-else"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), unsignedJWT(t, tt.claims))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}

	_, err := NewInsecureVerifier("").Verify(context.Background(), unsignedJWT(t, map[string]interface{}{"aud": "anyone"}))
	require.NoError(t, err)
}
