package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/pkg/logger"
)

// IDToken is a minimal interface for token payloads that allows extracting claims.
// It is satisfied by *oidc.IDToken and by test fakes.
type IDToken interface {
	Claims(v interface{}) error
}

// TokenVerifier validates a raw ID token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (IDToken, error)
}

// Verifier wraps the go-oidc verifier of a discovered issuer.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// Verify verifies the provided raw ID token
func (v *Verifier) Verify(ctx context.Context, raw string) (IDToken, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Config describes one OIDC identity provider (Google, Keycloak, ...).
type Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// AllowInsecure skips ID token signature checks. Local testing only.
	AllowInsecure bool
	HTTPClient    *http.Client
}

// Provider implements identity.Provider on top of OIDC discovery and the
// authorization code flow.
type Provider struct {
	name       string
	oauth      *oauth2.Config
	verifier   TokenVerifier
	httpClient *http.Client
}

// NewProvider discovers the issuer's endpoints and builds a provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.Issuer == "" {
		return nil, errors.New("oidc provider requires name and issuer")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oidc provider %s missing client id or secret", cfg.Name)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", cfg.Name, err)
	}

	var verifier TokenVerifier
	if cfg.AllowInsecure {
		logger.Warnf("oidc provider %s: ID token signatures are NOT verified", cfg.Name)
		verifier = NewInsecureVerifier(cfg.ClientID)
	} else {
		verifier = &Verifier{verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})}
	}
	return newProvider(cfg, discovered.Endpoint(), verifier, client), nil
}

func newProvider(cfg Config, endpoint oauth2.Endpoint, verifier TokenVerifier, client *http.Client) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier:   verifier,
		httpClient: client,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauth.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// CompleteHandshake exchanges the code, verifies the returned ID token and
// maps its claims to an identity.
func (p *Provider) CompleteHandshake(ctx context.Context, code string, codeVerifier string) (*models.Identity, error) {
	if code == "" {
		return nil, &identity.ProviderError{Provider: p.name, Op: "exchange", Code: "missing_code", Description: "authorization code is empty"}
	}
	ctx = oidc.ClientContext(ctx, p.httpClient)

	opts := []oauth2.AuthCodeOption{}
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	token, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, p.exchangeError(err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, &identity.ProviderError{Provider: p.name, Op: "verify", Code: "missing_id_token", Description: "token response has no id_token"}
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, identity.NewProviderError(p.name, "verify", err)
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, identity.NewProviderError(p.name, "verify", fmt.Errorf("parse claims: %w", err))
	}
	if c.Subject == "" {
		return nil, &identity.ProviderError{Provider: p.name, Op: "profile", Code: "invalid_profile", Description: "id token has no sub claim"}
	}
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}

	logger.Debugf("%s identity resolved: sub=%s email_present=%t", p.name, logger.Redact(c.Subject), c.Email != "")

	return &models.Identity{
		Provider: p.name,
		Subject:  c.Subject,
		Email:    c.Email,
		Name:     name,
		Image:    c.Picture,
	}, nil
}

func (p *Provider) exchangeError(err error) error {
	pe := &identity.ProviderError{Provider: p.name, Op: "exchange", Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			pe.Status = re.Response.StatusCode
		}
		pe.Code = re.ErrorCode
		pe.Description = re.ErrorDescription
	}
	logger.Warnf("%s token exchange failed: status=%d code=%s", p.name, pe.Status, pe.Code)
	return pe
}
