package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/todoapp/auth-service/internal/auth"
	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/tokens"
	"github.com/todoapp/auth-service/pkg/middleware"
)

// SessionClaims resolves session cookies to the claims map the middleware
// stores in the request context.
type SessionClaims struct {
	auth *auth.Service
}

func NewSessionClaims(a *auth.Service) *SessionClaims {
	return &SessionClaims{auth: a}
}

func (s *SessionClaims) ResolveSession(ctx context.Context, token string) (map[string]interface{}, error) {
	res, err := s.auth.GetCurrentSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !res.Authenticated() {
		return nil, nil
	}
	p := res.Principal
	return map[string]interface{}{
		"sub":     p.ID,
		"email":   p.Email,
		"name":    p.Name,
		"picture": p.Image,
		"exp":     p.Expires.Unix(),
	}, nil
}

// AccessTokenVerifier checks access tokens issued by /api/auth/token and
// rejects revoked ones.
type AccessTokenVerifier struct {
	cfg         *config.Config
	revocations *sessions.Revocations
}

func NewAccessTokenVerifier(cfg *config.Config, revocations *sessions.Revocations) *AccessTokenVerifier {
	return &AccessTokenVerifier{cfg: cfg, revocations: revocations}
}

var errTokenRevoked = errors.New("access token revoked")

func (v *AccessTokenVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims, err := tokens.ParseAccessToken(v.cfg, raw)
	if err != nil {
		return nil, err
	}
	revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errTokenRevoked
	}
	return accessToken{claims: claims}, nil
}

type accessToken struct {
	claims *tokens.Claims
}

func (t accessToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Me returns the caller's claims. It must run behind RequireSession.
func Me(c *gin.Context) {
	claims, ok := c.Get(middleware.ClaimsKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": claims})
}
