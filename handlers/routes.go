package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/todoapp/auth-service/pkg/middleware"
)

// RouteLimits are the rate limiters of the /api routes. A nil limiter is
// skipped.
type RouteLimits struct {
	// Anonymous limits the /api/auth flow, keyed by client IP.
	Anonymous gin.HandlerFunc
	// User runs after authentication, so it is keyed by subject.
	User gin.HandlerFunc
}

// APIRoutes is everything RegisterAPI mounts.
type APIRoutes struct {
	Auth          *AuthHandler
	Sessions      middleware.SessionResolver
	AccessTokens  middleware.Verifier
	SessionCookie string
	Limits        RouteLimits
}

// RegisterAPI mounts the auth flow under /auth and the protected routes
// under /v1 on the /api group:
//   - /v1/me accepts the session cookie or a Bearer access token
//   - /v1/client/me accepts only a Bearer access token (API clients)
func RegisterAPI(api *gin.RouterGroup, r APIRoutes) {
	authGroup := api.Group("")
	use(authGroup, r.Limits.Anonymous)
	r.Auth.Register(authGroup)

	v1 := api.Group("/v1")
	me := []gin.HandlerFunc{middleware.RequireSession(r.SessionCookie, r.Sessions, r.AccessTokens)}
	if r.Limits.User != nil {
		me = append(me, r.Limits.User)
	}
	v1.GET("/me", append(me, Me)...)

	client := v1.Group("/client", middleware.AuthMiddleware(r.AccessTokens))
	use(client, r.Limits.User)
	client.GET("/me", Me)
}

func use(g *gin.RouterGroup, h gin.HandlerFunc) {
	if h != nil {
		g.Use(h)
	}
}
