package identity

import (
	"context"

	"github.com/todoapp/auth-service/internal/models"
)

// Provider is the contract every external identity provider implements.
// Implementations return identity facts only; user resolution and sessions
// are handled by the caller.
type Provider interface {
	// Name returns the provider identifier used in routes and storage
	// (e.g. "github", "google").
	Name() string

	// AuthCodeURL returns the authorization URL the browser is redirected to.
	// State and the S256 PKCE challenge are generated by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// CompleteHandshake exchanges the authorization code, fetches the profile
	// and returns the normalized identity. Every failure is a *ProviderError.
	CompleteHandshake(ctx context.Context, code string, codeVerifier string) (*models.Identity, error)
}
