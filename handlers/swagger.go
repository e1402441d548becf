package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The UI page loads swagger-ui from unpkg and boots it with an inline script,
// so it needs a wider policy than the rest of the service.
const swaggerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https:; frame-ancestors 'none'"

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the auth service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Security-Policy", swaggerCSP)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>auth-service - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "auth-service", "version": "v0.1.0" },
  "paths": {
    "/api/auth/providers": {
      "get": { "summary": "List configured identity providers", "responses": { "200": { "description": "providers keyed by id" } } }
    },
    "/api/auth/signin": {
      "get": { "summary": "Sign-in landing, reports ?error codes", "parameters": [{ "name": "error", "in": "query", "schema": { "type": "string", "enum": ["OAuthSignin", "OAuthCallback", "Configuration", "AccessDenied"] } }], "responses": { "200": { "description": "providers and error code" } } }
    },
    "/api/auth/signin/{provider}": {
      "get": { "summary": "Start sign-in with a provider", "parameters": [{ "name": "provider", "in": "path", "required": true, "schema": { "type": "string" } }, { "name": "callbackUrl", "in": "query", "schema": { "type": "string" } }], "responses": { "302": { "description": "redirect to the provider" } } }
    },
    "/api/auth/callback/{provider}": {
      "get": { "summary": "Provider redirect target", "parameters": [{ "name": "provider", "in": "path", "required": true, "schema": { "type": "string" } }, { "name": "code", "in": "query", "schema": { "type": "string" } }, { "name": "state", "in": "query", "schema": { "type": "string" } }], "responses": { "302": { "description": "session cookie set and redirect to the callback URL, or redirect to sign-in with an error" } } }
    },
    "/api/auth/signout": {
      "post": { "summary": "End the session and revoke the bearer access token", "responses": { "200": { "description": "signed out" } } }
    },
    "/api/auth/session": {
      "get": { "summary": "Current session", "responses": { "200": { "description": "{user, expires} or {} when anonymous" } } }
    },
    "/api/auth/token": {
      "get": { "summary": "Issue a short-lived access token", "responses": { "200": { "description": "accessToken, tokenType, expiresIn" }, "401": { "description": "not authenticated" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get the caller's claims (session cookie or Bearer token)", "responses": { "200": { "description": "user claims" }, "401": { "description": "not authenticated" } } }
    },
    "/api/v1/client/me": {
      "get": { "summary": "Get the caller's claims (Bearer access token only)", "responses": { "200": { "description": "user claims" }, "401": { "description": "missing or invalid token" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
