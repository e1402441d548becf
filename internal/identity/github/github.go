package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/pkg/logger"
)

const (
	providerName  = "github"
	defaultAPIURL = "https://api.github.com"
)

// Config holds the GitHub OAuth app settings. Endpoint and APIURL are only
// overridden in tests and for GitHub Enterprise.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	Endpoint   oauth2.Endpoint
	APIURL     string
	HTTPClient *http.Client
}

// Provider implements identity.Provider for GitHub OAuth apps.
type Provider struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// New validates the configuration and returns a GitHub provider.
func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("github oauth config missing client id or secret")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read:user", "user:email"}
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = githuboauth.Endpoint
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       cfg.Scopes,
		},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: client,
	}, nil
}

func (p *Provider) Name() string { return providerName }

// AuthCodeURL builds the authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauth.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) CompleteHandshake(ctx context.Context, code string, codeVerifier string) (*models.Identity, error) {
	if code == "" {
		return nil, &identity.ProviderError{Provider: providerName, Op: "exchange", Code: "missing_code", Description: "authorization code is empty"}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	opts := []oauth2.AuthCodeOption{}
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	token, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, exchangeError(err)
	}

	client := p.oauth.Client(ctx, token)
	var profile userResponse
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, &identity.ProviderError{Provider: providerName, Op: "profile", Code: "invalid_profile", Description: "profile has no id"}
	}

	email := profile.Email
	if email == "" {
		var emails []emailResponse
		if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		email = primaryEmail(emails)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	logger.Debugf("github profile resolved: id=%d email_present=%t", profile.ID, email != "")

	return &models.Identity{
		Provider: providerName,
		Subject:  strconv.FormatInt(profile.ID, 10),
		Email:    email,
		Name:     name,
		Image:    profile.AvatarURL,
	}, nil
}

type userResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type emailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// primaryEmail prefers the primary verified address, then any verified one.
func primaryEmail(emails []emailResponse) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

func (p *Provider) getJSON(ctx context.Context, client *http.Client, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return identity.NewProviderError(providerName, "profile", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return identity.NewProviderError(providerName, "profile", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &identity.ProviderError{
			Provider:    providerName,
			Op:          "profile",
			Status:      resp.StatusCode,
			Description: fmt.Sprintf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return identity.NewProviderError(providerName, "profile", fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func exchangeError(err error) error {
	pe := &identity.ProviderError{Provider: providerName, Op: "exchange", Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			pe.Status = re.Response.StatusCode
		}
		pe.Code = re.ErrorCode
		pe.Description = re.ErrorDescription
	}
	logger.Warnf("github token exchange failed: status=%d code=%s", pe.Status, pe.Code)
	return pe
}
