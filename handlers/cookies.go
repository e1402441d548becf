package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	securePrefix = "__Secure-"

	// short-lived cookies that carry one sign-in attempt across the provider redirect
	handshakeCookieMaxAge = 15 * time.Minute
)

// Cookies names and writes the auth cookies. In production every name gets
// the __Secure- prefix and the Secure attribute.
type Cookies struct {
	Session     string
	State       string
	PKCE        string
	CallbackURL string
	secure      bool
}

func NewCookies(production bool) Cookies {
	prefix := ""
	if production {
		prefix = securePrefix
	}
	return Cookies{
		Session:     prefix + "authjs.session-token",
		State:       prefix + "authjs.state",
		PKCE:        prefix + "authjs.pkce.code_verifier",
		CallbackURL: prefix + "authjs.callback-url",
		secure:      production,
	}
}

// SessionCookieName returns the session cookie name for the environment.
func SessionCookieName(production bool) string {
	return NewCookies(production).Session
}

func (k Cookies) write(c *gin.Context, name, value string, expires time.Time) {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   k.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if expires.IsZero() {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.Expires = expires.UTC()
	}
	http.SetCookie(c.Writer, ck)
}

func (k Cookies) clear(c *gin.Context, names ...string) {
	for _, name := range names {
		k.write(c, name, "", time.Time{})
	}
}

// SetSession writes the session cookie expiring together with the session.
func (k Cookies) SetSession(c *gin.Context, token string, expires time.Time) {
	k.write(c, k.Session, token, expires)
}

func (k Cookies) ClearSession(c *gin.Context) { k.clear(c, k.Session) }

func (k Cookies) setHandshake(c *gin.Context, state, verifier, callbackURL string, now time.Time) {
	exp := now.Add(handshakeCookieMaxAge)
	k.write(c, k.State, state, exp)
	k.write(c, k.PKCE, verifier, exp)
	k.write(c, k.CallbackURL, callbackURL, exp)
}

func (k Cookies) clearHandshake(c *gin.Context) {
	k.clear(c, k.State, k.PKCE, k.CallbackURL)
}
