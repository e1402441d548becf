package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/todoapp/auth-service/internal/auth"
	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/tokens"
	"github.com/todoapp/auth-service/pkg/logger"
	"github.com/todoapp/auth-service/pkg/middleware"
)

// Error codes understood by NextAuth-style sign-in pages.
const (
	errOAuthSignin   = "OAuthSignin"
	errOAuthCallback = "OAuthCallback"
	errConfiguration = "Configuration"
	errAccessDenied  = "AccessDenied"
)

var providerDisplayNames = map[string]string{
	"github":   "GitHub",
	"google":   "Google",
	"keycloak": "Keycloak",
}

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	cfg         *config.Config
	auth        *auth.Service
	revocations *sessions.Revocations
	cookies     Cookies
	now         func() time.Time
}

func NewAuthHandler(cfg *config.Config, a *auth.Service, revocations *sessions.Revocations) *AuthHandler {
	return &AuthHandler{
		cfg:         cfg,
		auth:        a,
		revocations: revocations,
		cookies:     NewCookies(cfg.Server.IsProduction()),
		now:         time.Now,
	}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.GET("/providers", h.Providers)
	a.GET("/signin", h.SignInPage)
	a.GET("/signin/:provider", h.SignIn)
	a.GET("/callback/:provider", h.Callback)
	a.POST("/signout", h.SignOut)
	a.GET("/session", h.Session)
	a.GET("/token", h.Token)
}

func (h *AuthHandler) baseURL() string {
	return strings.TrimRight(h.cfg.Auth.BaseURL, "/")
}

type providerInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	SigninURL   string `json:"signinUrl"`
	CallbackURL string `json:"callbackUrl"`
}

func (h *AuthHandler) providerList() map[string]providerInfo {
	out := map[string]providerInfo{}
	for _, name := range h.auth.Providers() {
		display := providerDisplayNames[name]
		if display == "" {
			display = name
		}
		out[name] = providerInfo{
			ID:          name,
			Name:        display,
			Type:        "oauth",
			SigninURL:   h.baseURL() + "/api/auth/signin/" + name,
			CallbackURL: h.cfg.Auth.CallbackURL(name),
		}
	}
	return out
}

// Providers lists the configured identity providers.
func (h *AuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, h.providerList())
}

// SignInPage is where failed sign-ins land. It reports the error code and
// the providers to retry with.
func (h *AuthHandler) SignInPage(c *gin.Context) {
	body := gin.H{"providers": h.providerList()}
	if code := c.Query("error"); code != "" {
		body["error"] = code
	}
	c.JSON(http.StatusOK, body)
}

// SignIn starts the authorization code flow: state and PKCE verifier go into
// short-lived cookies and the browser is sent to the provider.
func (h *AuthHandler) SignIn(c *gin.Context) {
	provider := c.Param("provider")
	state, err := randomState()
	if err != nil {
		logger.Errorf("sign-in %s: failed to generate state: %v", provider, err)
		h.redirectError(c, errConfiguration)
		return
	}
	verifier := oauth2.GenerateVerifier()

	target, err := h.auth.BeginSignIn(provider, state, oauth2.S256ChallengeFromVerifier(verifier))
	if err != nil {
		logger.Warnf("sign-in: %v", err)
		h.redirectError(c, errOAuthSignin)
		return
	}

	h.cookies.setHandshake(c, state, verifier, h.safeCallbackURL(c.Query("callbackUrl")), h.now())
	c.Redirect(http.StatusFound, target)
}

// Callback completes the flow started by SignIn.
func (h *AuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	stateCookie, _ := c.Cookie(h.cookies.State)
	verifier, _ := c.Cookie(h.cookies.PKCE)
	callbackURL, _ := c.Cookie(h.cookies.CallbackURL)
	h.cookies.clearHandshake(c)

	if e := c.Query("error"); e != "" {
		logger.Warnf("callback %s: provider returned error=%s", provider, e)
		if e == "access_denied" {
			h.redirectError(c, errAccessDenied)
		} else {
			h.redirectError(c, errOAuthCallback)
		}
		return
	}

	state := c.Query("state")
	if stateCookie == "" || subtle.ConstantTimeCompare([]byte(stateCookie), []byte(state)) != 1 {
		logger.Warnf("callback %s: state mismatch (cookie_present=%t)", provider, stateCookie != "")
		h.redirectError(c, errOAuthCallback)
		return
	}

	res, err := h.auth.SignIn(c.Request.Context(), provider, c.Query("code"), verifier)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnknownProvider):
			h.redirectError(c, errOAuthSignin)
		case identity.IsProviderError(err):
			logger.Warnf("callback %s: %v", provider, err)
			h.redirectError(c, errOAuthCallback)
		default:
			logger.Errorf("callback %s: %v", provider, err)
			h.redirectError(c, errConfiguration)
		}
		return
	}

	h.cookies.SetSession(c, res.Session.Token, res.Session.ExpiresAt)
	c.Redirect(http.StatusFound, h.safeCallbackURL(callbackURL))
}

// SignOut drops the session behind the cookie, revokes every access token
// minted from it and the bearer access token, if one was sent.
func (h *AuthHandler) SignOut(c *gin.Context) {
	ctx := c.Request.Context()
	token, _ := c.Cookie(h.cookies.Session)
	h.auth.SignOut(ctx, token)
	h.dropSessionTokens(ctx, token)
	h.cookies.ClearSession(c)

	if raw, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		if claims, err := tokens.ParseAccessToken(h.cfg, raw); err == nil {
			if err := h.revocations.Revoke(ctx, claims.ID, claims.Remaining(h.now())); err != nil {
				logger.Errorf("sign-out: failed to revoke access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"url": h.safeCallbackURL(c.Query("callbackUrl"))})
}

type sessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

type sessionResponse struct {
	User    sessionUser `json:"user"`
	Expires string      `json:"expires"`
}

// Session returns the current principal, or an empty object when the caller
// is anonymous. Store failures are logged and reported as anonymous.
func (h *AuthHandler) Session(c *gin.Context) {
	token, _ := c.Cookie(h.cookies.Session)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	res, err := h.auth.GetCurrentSession(c.Request.Context(), token)
	if err != nil {
		logger.Errorf("session: lookup failed: %v", err)
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if !res.Authenticated() {
		h.dropSessionTokens(c.Request.Context(), token)
		h.cookies.ClearSession(c)
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	p := res.Principal
	h.cookies.SetSession(c, res.Session.Token, res.Session.ExpiresAt)
	c.JSON(http.StatusOK, sessionResponse{
		User:    sessionUser{ID: p.ID, Name: p.Name, Email: p.Email, Image: p.Image},
		Expires: p.Expires.UTC().Format(time.RFC3339Nano),
	})
}

// Token issues a short-lived access token for the principal behind the
// session cookie.
func (h *AuthHandler) Token(c *gin.Context) {
	token, _ := c.Cookie(h.cookies.Session)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	res, err := h.auth.GetCurrentSession(c.Request.Context(), token)
	if err != nil {
		logger.Errorf("token: session lookup failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session lookup failed"})
		return
	}
	if !res.Authenticated() {
		h.dropSessionTokens(c.Request.Context(), token)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	ttl := h.cfg.JWT.AccessTokenTTL
	access, claims, err := tokens.IssueAccessToken(h.cfg, res.User, ttl)
	if err != nil {
		logger.Errorf("token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	// sign-out must be able to find every token this session minted
	if err := h.revocations.Track(c.Request.Context(), token, claims.ID, ttl); err != nil {
		logger.Errorf("token: failed to track access token: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "tokenType": "Bearer", "expiresIn": int(ttl.Seconds())})
}

// dropSessionTokens revokes the access tokens minted from a session that has
// ended (signed out, expired or orphaned).
func (h *AuthHandler) dropSessionTokens(ctx context.Context, sessionToken string) {
	if sessionToken == "" {
		return
	}
	if err := h.revocations.RevokeSession(ctx, sessionToken, h.cfg.JWT.AccessTokenTTL); err != nil {
		logger.Errorf("failed to revoke access tokens of session %s: %v", logger.Redact(sessionToken), err)
	}
}

func (h *AuthHandler) redirectError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, "/api/auth/signin?error="+url.QueryEscape(code))
}

// safeCallbackURL only lets through same-site relative paths and absolute URLs
// on the service's own origin, so the callback cannot be used as an open redirect.
func (h *AuthHandler) safeCallbackURL(raw string) string {
	if raw == "" {
		return "/"
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.HasPrefix(raw, "/\\") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	base, err := url.Parse(h.baseURL())
	if err != nil || base.Host == "" {
		return "/"
	}
	if u.Scheme == base.Scheme && u.Host == base.Host {
		return raw
	}
	return "/"
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
