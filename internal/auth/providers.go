package auth

import (
	"context"
	"net/http"

	"github.com/todoapp/auth-service/internal/config"
	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/identity/github"
	"github.com/todoapp/auth-service/internal/oidc"
	"github.com/todoapp/auth-service/pkg/logger"
)

// BuildProviders creates a provider for every set of configured credentials.
// A provider that fails discovery is skipped with a warning so the others
// stay available.
func BuildProviders(ctx context.Context, cfg *config.Config) *identity.Registry {
	client := &http.Client{Timeout: cfg.Auth.ProviderTimeout}
	var list []identity.Provider

	if gh := cfg.Providers.GitHub; gh.Enabled() {
		p, err := github.New(github.Config{
			ClientID:     gh.ClientID,
			ClientSecret: gh.ClientSecret,
			RedirectURL:  cfg.Auth.CallbackURL("github"),
			HTTPClient:   client,
		})
		if err != nil {
			logger.Warnf("github provider disabled: %v", err)
		} else {
			list = append(list, p)
		}
	}

	oidcProviders := []struct {
		name  string
		creds config.ProviderCredentials
	}{
		{"google", cfg.Providers.Google},
		{"keycloak", cfg.Providers.Keycloak},
	}
	for _, op := range oidcProviders {
		if !op.creds.Enabled() {
			continue
		}
		p, err := oidc.NewProvider(ctx, oidc.Config{
			Name:          op.name,
			Issuer:        op.creds.Issuer,
			ClientID:      op.creds.ClientID,
			ClientSecret:  op.creds.ClientSecret,
			RedirectURL:   cfg.Auth.CallbackURL(op.name),
			AllowInsecure: cfg.Auth.AllowInsecureToken,
			HTTPClient:    client,
		})
		if err != nil {
			logger.Warnf("%s provider disabled: %v", op.name, err)
			continue
		}
		list = append(list, p)
	}

	reg := identity.NewRegistry(list...)
	if reg.Len() == 0 {
		logger.Warnf("no identity providers configured; sign-in is unavailable")
	} else {
		logger.Infof("identity providers: %v", reg.Names())
	}
	return reg
}
