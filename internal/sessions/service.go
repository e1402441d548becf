package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/todoapp/auth-service/pkg/logger"
	"github.com/todoapp/auth-service/pkg/metrics"
)

const (
	DefaultMaxAge    = 7 * 24 * time.Hour
	DefaultUpdateAge = 4 * time.Hour

	tokenBytes = 32
)

// ErrStore wraps every failure of the underlying repository.
var ErrStore = errors.New("session store failure")

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxAge sets how long a session stays valid after creation or refresh.
func WithMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithUpdateAge sets the minimum interval between two expiry extensions.
func WithUpdateAge(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.updateAge = d
		}
	}
}

// Service wraps repository operations with session lifetime rules
type Service struct {
	repo      Repository
	maxAge    time.Duration
	updateAge time.Duration
	now       func() time.Time
}

func NewService(r Repository, opts ...Option) *Service {
	s := &Service{
		repo:      r,
		maxAge:    DefaultMaxAge,
		updateAge: DefaultUpdateAge,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAge returns the configured session lifetime.
func (s *Service) MaxAge() time.Duration { return s.maxAge }

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new session for userID that expires after MaxAge.
func (s *Service) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session create: empty user id")
	}
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	now := s.now()
	sess := &Session{
		Token:           token,
		UserID:          userID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.maxAge),
		LastRefreshedAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create: %w", ErrStore, err)
	}
	logger.Debugf("session created: token=%s user=%s expires=%s", logger.Redact(token), userID, sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Lookup returns the session for token. ok is false when the token is
// unknown or the session has expired; expired records are removed
// best-effort.
func (s *Service) Lookup(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, false, fmt.Errorf("%w: lookup: %w", ErrStore, err)
	}
	if sess == nil {
		return nil, false, nil
	}
	if sess.Expired(s.now()) {
		if err := s.repo.DeleteByToken(ctx, token); err != nil {
			logger.Warnf("failed to delete expired session %s: %v", logger.Redact(token), err)
		}
		return nil, false, nil
	}
	return sess, true, nil
}

// Refresh extends the session to now+MaxAge once UpdateAge has elapsed since
// the last extension. Otherwise the session is returned unchanged.
func (s *Service) Refresh(ctx context.Context, sess *Session) (*Session, error) {
	now := s.now()
	if sess.Expired(now) || now.Sub(sess.LastRefreshedAt) < s.updateAge {
		return sess, nil
	}
	expiresAt := now.Add(s.maxAge)
	changed, err := s.repo.Extend(ctx, sess.Token, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("%w: extend: %w", ErrStore, err)
	}
	if changed {
		metrics.SessionRefreshes.Inc()
		out := *sess
		out.ExpiresAt = expiresAt
		out.LastRefreshedAt = now
		return &out, nil
	}

	// a concurrent refresh already moved it further, or it was removed
	cur, err := s.repo.GetByToken(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: reload: %w", ErrStore, err)
	}
	if cur == nil {
		return sess, nil
	}
	return cur, nil
}

// Invalidate removes the session. Unknown tokens are not an error.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrStore, err)
	}
	return nil
}
