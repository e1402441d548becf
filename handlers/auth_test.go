package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/todoapp/auth-service/internal/auth"
	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/tokens"
	"github.com/todoapp/auth-service/internal/users"
	"github.com/todoapp/auth-service/pkg/middleware"
)

type fakeProvider struct {
	lastVerifier string
}

func (f *fakeProvider) Name() string { return "github" }

func (f *fakeProvider) AuthCodeURL(state, challenge string) string {
	return "https://github.example/login/oauth/authorize?state=" + url.QueryEscape(state) + "&code_challenge=" + url.QueryEscape(challenge)
}

func (f *fakeProvider) CompleteHandshake(_ context.Context, code, verifier string) (*models.Identity, error) {
	f.lastVerifier = verifier
	switch code {
	case "code-alice":
		return &models.Identity{Provider: "github", Subject: "123", Email: "a@x.com", Name: "Alice", Image: "http://img"}, nil
	case "code-bob":
		return &models.Identity{Provider: "github", Subject: "456", Email: "b@x.com", Name: "Bob"}, nil
	}
	return nil, &identity.ProviderError{Provider: "github", Op: "exchange", Code: "bad_verification_code"}
}

// failingCreate wraps a session repository and rejects new sessions.
type failingCreate struct {
	sessions.Repository
}

func (failingCreate) Create(context.Context, *sessions.Session) error {
	return errors.New("store down")
}

type testEnv struct {
	router   *gin.Engine
	cfg      *config.Config
	provider *fakeProvider
	verifier *AccessTokenVerifier
	cookies  Cookies
}

func newTestEnv(t *testing.T, sessRepo sessions.Repository) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, sessRepo, RouteLimits{})
}

// newTestEnvWithLimits wires the routes the way main does.
func newTestEnvWithLimits(t *testing.T, sessRepo sessions.Repository, limits RouteLimits) *testEnv {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	rev := sessions.NewRevocations(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	if sessRepo == nil {
		sessRepo = sessions.NewMemoryRepository()
	}
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Auth:   config.AuthConfig{BaseURL: "http://localhost:5001"},
		JWT:    config.JWTConfig{Secret: "test-secret", AccessTokenTTL: 15 * time.Minute},
	}
	p := &fakeProvider{}
	svc := auth.NewService(
		identity.NewRegistry(p),
		users.NewService(users.NewMemoryRepository()),
		sessions.NewService(sessRepo),
	)

	env := &testEnv{
		router:   gin.New(),
		cfg:      cfg,
		provider: p,
		verifier: NewAccessTokenVerifier(cfg, rev),
		cookies:  NewCookies(false),
	}
	RegisterAPI(env.router.Group("/api"), APIRoutes{
		Auth:          NewAuthHandler(cfg, svc, rev),
		Sessions:      NewSessionClaims(svc),
		AccessTokens:  env.verifier,
		SessionCookie: env.cookies.Session,
		Limits:        limits,
	})
	return env
}

func (e *testEnv) do(method, target string, cookies map[string]string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signIn runs the callback with matching handshake cookies and returns the session token.
func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	return e.signInWith(t, "code-alice")
}

func (e *testEnv) signInWith(t *testing.T, code string) string {
	t.Helper()
	w := e.do(http.MethodGet, "/api/auth/callback/github?code="+code+"&state=s1", map[string]string{
		e.cookies.State: "s1",
		e.cookies.PKCE:  "v1",
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	ck := findCookie(w, e.cookies.Session)
	require.NotNil(t, ck)
	require.NotEmpty(t, ck.Value)
	return ck.Value
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestProviders(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/api/auth/providers", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]providerInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body, "github")
	assert.Equal(t, "GitHub", body["github"].Name)
	assert.Equal(t, "http://localhost:5001/api/auth/callback/github", body["github"].CallbackURL)
}

func TestSignIn_SetsHandshakeCookiesAndRedirects(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/api/auth/signin/github?callbackUrl=/dashboard", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.example", loc.Host)

	state := findCookie(w, env.cookies.State)
	pkce := findCookie(w, env.cookies.PKCE)
	cb := findCookie(w, env.cookies.CallbackURL)
	require.NotNil(t, state)
	require.NotNil(t, pkce)
	require.NotNil(t, cb)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, state.SameSite)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(pkce.Value), loc.Query().Get("code_challenge"))
	assert.Equal(t, "/dashboard", cb.Value)
}

func TestSignIn_UnknownProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/api/auth/signin/myspace", nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/api/auth/signin?error=OAuthSignin", w.Header().Get("Location"))
}

func TestCallback_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(http.MethodGet, "/api/auth/callback/github?code=code-alice&state=s1", map[string]string{
		env.cookies.State:       "s1",
		env.cookies.PKCE:        "v1",
		env.cookies.CallbackURL: "/dashboard",
	}, nil)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, "v1", env.provider.lastVerifier)

	sess := findCookie(w, env.cookies.Session)
	require.NotNil(t, sess)
	assert.Len(t, sess.Value, 64)
	assert.True(t, sess.HttpOnly)
	assert.False(t, sess.Secure)
	assert.WithinDuration(t, time.Now().Add(sessions.DefaultMaxAge), sess.Expires, time.Minute)

	// handshake cookies are cleared
	state := findCookie(w, env.cookies.State)
	require.NotNil(t, state)
	assert.Empty(t, state.Value)
	assert.Equal(t, -1, state.MaxAge)
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		cookies  func(c Cookies) map[string]string
		sessRepo sessions.Repository
		want     string
	}{
		{
			name:    "state mismatch",
			target:  "/api/auth/callback/github?code=code-alice&state=other",
			cookies: func(c Cookies) map[string]string { return map[string]string{c.State: "s1"} },
			want:    "OAuthCallback",
		},
		{
			name:    "missing state cookie",
			target:  "/api/auth/callback/github?code=code-alice&state=s1",
			cookies: func(Cookies) map[string]string { return nil },
			want:    "OAuthCallback",
		},
		{
			name:    "rejected code",
			target:  "/api/auth/callback/github?code=expired&state=s1",
			cookies: func(c Cookies) map[string]string { return map[string]string{c.State: "s1"} },
			want:    "OAuthCallback",
		},
		{
			name:    "user denied consent",
			target:  "/api/auth/callback/github?error=access_denied&state=s1",
			cookies: func(c Cookies) map[string]string { return map[string]string{c.State: "s1"} },
			want:    "AccessDenied",
		},
		{
			name:     "session store down",
			target:   "/api/auth/callback/github?code=code-alice&state=s1",
			cookies:  func(c Cookies) map[string]string { return map[string]string{c.State: "s1"} },
			sessRepo: failingCreate{Repository: sessions.NewMemoryRepository()},
			want:     "Configuration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.sessRepo)
			w := env.do(http.MethodGet, tt.target, tt.cookies(env.cookies), nil)
			require.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/api/auth/signin?error="+tt.want, w.Header().Get("Location"))
			assert.Nil(t, findCookie(w, env.cookies.Session))
		})
	}
}

func TestSession_Anonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/auth/session", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/auth/session", map[string]string{env.cookies.Session: "unknown"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
	ck := findCookie(w, env.cookies.Session)
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)
}

func TestSession_Authenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signIn(t)

	w := env.do(http.MethodGet, "/api/auth/session", map[string]string{env.cookies.Session: token}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.User.ID)
	assert.Equal(t, "Alice", body.User.Name)
	assert.Equal(t, "a@x.com", body.User.Email)
	assert.Equal(t, "http://img", body.User.Image)
	exp, err := time.Parse(time.RFC3339Nano, body.Expires)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(sessions.DefaultMaxAge), exp, time.Minute)

	ck := findCookie(w, env.cookies.Session)
	require.NotNil(t, ck)
	assert.Equal(t, token, ck.Value)
}

func TestSignOut_EndsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signIn(t)

	w := env.do(http.MethodPost, "/api/auth/signout", map[string]string{env.cookies.Session: token}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"/"}`, w.Body.String())
	ck := findCookie(w, env.cookies.Session)
	require.NotNil(t, ck)
	assert.Equal(t, -1, ck.MaxAge)

	w = env.do(http.MethodGet, "/api/auth/session", map[string]string{env.cookies.Session: token}, nil)
	assert.JSONEq(t, `{}`, w.Body.String())

	// signing out again is harmless
	w = env.do(http.MethodPost, "/api/auth/signout", map[string]string{env.cookies.Session: token}, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestToken_IssueAndRevoke(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/auth/token", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	session := env.signIn(t)
	w = env.do(http.MethodGet, "/api/auth/token", map[string]string{env.cookies.Session: session}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, 900, body.ExpiresIn)

	claims, err := tokens.ParseAccessToken(env.cfg, body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)

	// the bearer token reaches the protected route without a cookie
	bearer := http.Header{"Authorization": []string{"Bearer " + body.AccessToken}}
	w = env.do(http.MethodGet, "/api/v1/me", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), claims.Subject)

	w = env.do(http.MethodPost, "/api/auth/signout", map[string]string{env.cookies.Session: session}, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = env.verifier.Verify(context.Background(), body.AccessToken)
	require.ErrorIs(t, err, errTokenRevoked)
	w = env.do(http.MethodGet, "/api/v1/me", nil, bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_WithSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := env.signIn(t)
	w = env.do(http.MethodGet, "/api/v1/me", map[string]string{env.cookies.Session: token}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "a@x.com", body.User["email"])
	assert.NotEmpty(t, body.User["sub"])
}

func TestSafeCallbackURL(t *testing.T) {
	h := &AuthHandler{cfg: &config.Config{Auth: config.AuthConfig{BaseURL: "https://app.example"}}}
	tests := map[string]string{
		"":                             "/",
		"/dashboard?tab=1":             "/dashboard?tab=1",
		"//evil.example/":              "/",
		"/\\evil.example":              "/",
		"https://app.example/settings": "https://app.example/settings",
		"https://evil.example/":        "/",
		"http://app.example/":          "/",
		"javascript:alert(1)":          "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, h.safeCallbackURL(in), in)
	}
}

func TestCookies_ProductionPrefix(t *testing.T) {
	c := NewCookies(true)
	for _, name := range []string{c.Session, c.State, c.PKCE, c.CallbackURL} {
		assert.True(t, strings.HasPrefix(name, "__Secure-authjs."), name)
	}
	assert.Equal(t, "authjs.session-token", SessionCookieName(false))

	r := gin.New()
	r.GET("/", func(ctx *gin.Context) { c.SetSession(ctx, "tok", time.Now().Add(time.Hour)) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	ck := findCookie(w, "__Secure-authjs.session-token")
	require.NotNil(t, ck)
	assert.True(t, ck.Secure)
	assert.Equal(t, "/", ck.Path)
}

func (e *testEnv) accessToken(t *testing.T, session string) string {
	t.Helper()
	w := e.do(http.MethodGet, "/api/auth/token", map[string]string{e.cookies.Session: session}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.AccessToken
}

func TestSignOut_CookieOnlyRevokesIssuedAccessTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	session := env.signIn(t)
	first := env.accessToken(t, session)
	second := env.accessToken(t, session)

	other := env.signIn(t)
	otherToken := env.accessToken(t, other)

	// browser sign-out: cookie only, no Authorization header
	w := env.do(http.MethodPost, "/api/auth/signout", map[string]string{env.cookies.Session: session}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, tok := range []string{first, second} {
		w = env.do(http.MethodGet, "/api/v1/me", nil, http.Header{"Authorization": []string{"Bearer " + tok}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	// tokens of another session of the same user stay valid
	w = env.do(http.MethodGet, "/api/v1/me", nil, http.Header{"Authorization": []string{"Bearer " + otherToken}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSession_EndedSessionRevokesIssuedAccessTokens(t *testing.T) {
	repo := sessions.NewMemoryRepository()
	env := newTestEnv(t, repo)
	session := env.signIn(t)
	tok := env.accessToken(t, session)

	// the session disappears without a sign-out, e.g. it expired and was swept
	require.NoError(t, repo.DeleteByToken(context.Background(), session))
	w := env.do(http.MethodGet, "/api/auth/session", map[string]string{env.cookies.Session: session}, nil)
	assert.JSONEq(t, `{}`, w.Body.String())

	_, err := env.verifier.Verify(context.Background(), tok)
	require.ErrorIs(t, err, errTokenRevoked)
}

func TestRateLimit_PerUserBehindAuthentication(t *testing.T) {
	env := newTestEnvWithLimits(t, nil, RouteLimits{
		User: middleware.RateLimitMiddleware(0.001, 1),
	})
	alice := env.signInWith(t, "code-alice")
	bob := env.signInWith(t, "code-bob")

	// same client IP, different subjects
	w := env.do(http.MethodGet, "/api/v1/me", map[string]string{env.cookies.Session: alice}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/v1/me", map[string]string{env.cookies.Session: bob}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/me", map[string]string{env.cookies.Session: alice}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_AnonymousFlowKeyedByIP(t *testing.T) {
	env := newTestEnvWithLimits(t, nil, RouteLimits{
		Anonymous: middleware.RateLimitMiddleware(0.001, 1),
	})
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/auth/providers", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/api/auth/providers", nil, nil).Code)
}

func TestClientRoutes_RequireBearerToken(t *testing.T) {
	env := newTestEnv(t, nil)
	session := env.signIn(t)

	// a session cookie is not enough for API-client routes
	w := env.do(http.MethodGet, "/api/v1/client/me", map[string]string{env.cookies.Session: session}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	tok := env.accessToken(t, session)
	w = env.do(http.MethodGet, "/api/v1/client/me", nil, http.Header{"Authorization": []string{"Bearer " + tok}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@x.com")
}
