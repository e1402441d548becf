package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/todoapp/auth-service/internal/identity"
	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/internal/sessions"
	"github.com/todoapp/auth-service/internal/users"
	"github.com/todoapp/auth-service/pkg/logger"
	"github.com/todoapp/auth-service/pkg/metrics"
)

// ErrUnknownProvider is returned for provider names that are not configured.
var ErrUnknownProvider = errors.New("unknown provider")

// State is the authentication state of a caller.
type State int

const (
	StateAnonymous State = iota
	StatePending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Result is the outcome of a facade operation. Session, User and Principal
// are set only when State is StateAuthenticated.
type Result struct {
	State     State
	Session   *sessions.Session
	User      *models.User
	Principal *Principal
}

func anonymous() *Result { return &Result{State: StateAnonymous} }

// Authenticated reports whether the result carries a principal.
func (r *Result) Authenticated() bool {
	return r != nil && r.State == StateAuthenticated && r.Principal != nil
}

// Service composes the provider registry, user resolution and the session
// store into sign-in, sign-out and current-session operations.
type Service struct {
	providers *identity.Registry
	users     *users.Service
	sessions  *sessions.Service
}

func NewService(providers *identity.Registry, u *users.Service, s *sessions.Service) *Service {
	return &Service{providers: providers, users: u, sessions: s}
}

// Providers returns the names of the configured providers.
func (s *Service) Providers() []string { return s.providers.Names() }

// BeginSignIn moves an anonymous caller to pending by returning the
// provider's authorization URL for the given state and PKCE challenge.
func (s *Service) BeginSignIn(providerName, state, codeChallenge string) (string, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	return p.AuthCodeURL(state, codeChallenge), nil
}

// SignIn completes the provider handshake, resolves the user and opens a
// session. On failure the result is anonymous and the error is returned
// as produced by the failing component.
func (s *Service) SignIn(ctx context.Context, providerName, code, codeVerifier string) (*Result, error) {
	p, err := s.providers.Get(providerName)
	if err != nil {
		metrics.SignIns.WithLabelValues("unknown", "unknown_provider").Inc()
		return anonymous(), fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	ident, err := p.CompleteHandshake(ctx, code, codeVerifier)
	if err != nil {
		metrics.SignIns.WithLabelValues(providerName, "provider_error").Inc()
		return anonymous(), err
	}

	user, err := s.users.Resolve(ctx, ident)
	if err != nil {
		metrics.SignIns.WithLabelValues(providerName, "store_error").Inc()
		return anonymous(), err
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		metrics.SignIns.WithLabelValues(providerName, "store_error").Inc()
		return anonymous(), err
	}

	metrics.SignIns.WithLabelValues(providerName, "success").Inc()
	logger.Infof("sign-in: provider=%s user=%s", providerName, user.ID)
	principal := Project(*sess, *user)
	return &Result{State: StateAuthenticated, Session: sess, User: user, Principal: &principal}, nil
}

// SignOut invalidates the session behind token if there is one. It always
// ends anonymous; store failures are logged.
func (s *Service) SignOut(ctx context.Context, token string) *Result {
	metrics.SignOuts.Inc()
	if token == "" {
		return anonymous()
	}
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		logger.Errorf("sign-out: failed to invalidate session %s: %v", logger.Redact(token), err)
	}
	return anonymous()
}

// GetCurrentSession resolves token to a principal, refreshing the session
// when its update window has elapsed. Missing or expired sessions and
// sessions whose user is gone yield an anonymous result with a nil error.
func (s *Service) GetCurrentSession(ctx context.Context, token string) (*Result, error) {
	sess, ok, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		metrics.SessionLookups.WithLabelValues("error").Inc()
		return anonymous(), err
	}
	if !ok {
		metrics.SessionLookups.WithLabelValues("anonymous").Inc()
		return anonymous(), nil
	}

	sess, err = s.sessions.Refresh(ctx, sess)
	if err != nil {
		metrics.SessionLookups.WithLabelValues("error").Inc()
		return anonymous(), err
	}

	user, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		metrics.SessionLookups.WithLabelValues("error").Inc()
		return anonymous(), err
	}
	if user == nil {
		logger.Warnf("session %s references missing user %s", logger.Redact(sess.Token), sess.UserID)
		if err := s.sessions.Invalidate(ctx, sess.Token); err != nil {
			logger.Warnf("failed to drop orphaned session: %v", err)
		}
		metrics.SessionLookups.WithLabelValues("anonymous").Inc()
		return anonymous(), nil
	}

	metrics.SessionLookups.WithLabelValues("authenticated").Inc()
	principal := Project(*sess, *user)
	return &Result{State: StateAuthenticated, Session: sess, User: user, Principal: &principal}, nil
}
