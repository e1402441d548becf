package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityOptions selects the environment-dependent parts of the header set.
type SecurityOptions struct {
	// Production adds HSTS and disables DNS prefetching.
	Production bool
	// Development allows 'unsafe-eval' for scripts (hot reload tooling).
	Development bool
}

var permissionsPolicy = strings.Join([]string{
	"camera=()",
	"microphone=()",
	"geolocation=()",
	"payment=()",
	"usb=()",
	"magnetometer=()",
	"gyroscope=()",
	"accelerometer=()",
	"bluetooth=()",
	"midi=()",
	"notifications=()",
	"push=()",
	"speaker-selection=()",
	"sync-xhr=()",
	"fullscreen=(self)",
	"web-share=(self)",
}, ", ")

// ContentSecurityPolicy returns the CSP value for the environment.
func ContentSecurityPolicy(development bool) string {
	script := "script-src 'self'"
	if development {
		script += " 'unsafe-eval'"
	}
	return strings.Join([]string{
		"default-src 'self'",
		script,
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src 'self'",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"object-src 'none'",
		"media-src 'self'",
	}, "; ")
}

// SecurityHeaders sets the browser hardening headers on every response.
func SecurityHeaders(opts SecurityOptions) gin.HandlerFunc {
	csp := ContentSecurityPolicy(opts.Development)
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "origin-when-cross-origin")
		h.Set("Content-Security-Policy", csp)
		h.Set("Permissions-Policy", permissionsPolicy)
		if opts.Production {
			h.Set("Strict-Transport-Security", "max-age=7776000; includeSubDomains; preload")
			h.Set("X-DNS-Prefetch-Control", "off")
		}
		c.Next()
	}
}
