package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/todoapp/auth-service/internal/models"
	"github.com/todoapp/auth-service/pkg/logger"
)

// ErrStore wraps every failure of the underlying repository.
var ErrStore = errors.New("user store failure")

// ErrInvalidIdentity is returned when an identity lacks provider or subject.
var ErrInvalidIdentity = errors.New("identity requires provider and subject")

// Service encapsulates user-related business logic
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns the service using now as its time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Resolve returns the user owning ident, creating it on first sign-in.
// Users are matched by (provider, subject) only; an equal email on a
// different identity does not link accounts.
func (s *Service) Resolve(ctx context.Context, ident *models.Identity) (*models.User, error) {
	if ident == nil || ident.Provider == "" || ident.Subject == "" {
		return nil, ErrInvalidIdentity
	}

	u, err := s.repo.FindByIdentity(ctx, ident.Provider, ident.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: find identity: %w", ErrStore, err)
	}
	if u != nil {
		s.refreshProfile(ctx, u, *ident)
		return u, nil
	}

	now := s.now()
	u = &models.User{
		ID:         uuid.NewString(),
		Email:      ident.Email,
		Name:       ident.Name,
		Image:      ident.Image,
		Identities: []models.Identity{*ident},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.repo.Create(ctx, u)
	if errors.Is(err, ErrDuplicateIdentity) {
		// lost a race with a concurrent first sign-in
		existing, ferr := s.repo.FindByIdentity(ctx, ident.Provider, ident.Subject)
		if ferr != nil {
			return nil, fmt.Errorf("%w: reload identity: %w", ErrStore, ferr)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: identity %s reported duplicate but not found", ErrStore, ident.Key())
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create: %w", ErrStore, err)
	}
	logger.Infof("created user %s for %s identity", u.ID, ident.Provider)
	return u, nil
}

// refreshProfile stores the latest provider profile. Failures are logged
// only; sign-in does not depend on it.
func (s *Service) refreshProfile(ctx context.Context, u *models.User, ident models.Identity) {
	for _, cur := range u.Identities {
		if cur.Key() == ident.Key() && cur == ident {
			return
		}
	}
	if err := s.repo.UpdateProfile(ctx, u.ID, ident, s.now()); err != nil {
		logger.Warnf("profile refresh for user %s failed: %v", u.ID, err)
		return
	}
	for i := range u.Identities {
		if u.Identities[i].Key() == ident.Key() {
			u.Identities[i] = ident
		}
	}
	if ident.Name != "" {
		u.Name = ident.Name
	}
	if ident.Image != "" {
		u.Image = ident.Image
	}
	if u.Email == "" {
		u.Email = ident.Email
	}
}

// Get returns the user with id, or (nil, nil) when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %w", ErrStore, err)
	}
	return u, nil
}
