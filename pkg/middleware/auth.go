package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the caller's claims map.
const ClaimsKey = "claims"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// SessionResolver turns a session cookie value into claims. A nil map with a
// nil error means there is no valid session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (map[string]interface{}, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func verifyBearer(c *gin.Context, ver Verifier, header string) (map[string]interface{}, bool) {
	token, ok := BearerToken(header)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
		return nil, false
	}
	verified, err := ver.Verify(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	var claims map[string]interface{}
	if err := verified.Claims(&claims); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
		return nil, false
	}
	return claims, true
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		claims, ok := verifyBearer(c, ver, auth)
		if !ok {
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireSession accepts either the session cookie or, when ver is not nil,
// a Bearer access token. The resolved claims are stored under ClaimsKey.
func RequireSession(cookieName string, sessions SessionResolver, ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(cookieName); err == nil && raw != "" {
			claims, err := sessions.ResolveSession(c.Request.Context(), raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session lookup failed"})
				return
			}
			if claims != nil {
				c.Set(ClaimsKey, claims)
				c.Next()
				return
			}
		}

		auth := c.GetHeader("Authorization")
		if auth == "" || ver == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		claims, ok := verifyBearer(c, ver, auth)
		if !ok {
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
