package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/models"
)

// Claims are the access token claims. Subject is the stable user id.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed JWT access token for the user
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	signed, _, err := IssueAccessToken(cfg, u, ttl)
	return signed, err
}

// IssueAccessToken is GenerateAccessToken that also returns the claims, so
// callers can record the token id.
func IssueAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, *Claims, error) {
	if cfg.JWT.Secret == "" {
		return "", nil, errors.New("access token secret is not configured")
	}
	now := time.Now()
	claims := &Claims{
		Name:    u.Name,
		Email:   u.Email,
		Picture: u.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    cfg.Auth.BaseURL,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.Secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccessToken verifies signature, algorithm and expiry and returns the claims.
func ParseAccessToken(cfg *config.Config, raw string) (*Claims, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("access token secret is not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWT.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(cfg.Auth.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("invalid access token: missing sub or jti")
	}
	return claims, nil
}

// Remaining returns how long the token stays valid, zero once expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
