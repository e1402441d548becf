package users

import (
	"context"
	"sync"
	"time"

	"github.com/todoapp/auth-service/internal/models"
)

// MemoryRepository keeps users in process memory for tests and development.
type MemoryRepository struct {
	mu         sync.Mutex
	users      map[string]models.User
	identities map[string]string // identity key -> user id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[string]models.User),
		identities: make(map[string]string),
	}
}

func clone(u models.User) *models.User {
	u.Identities = append([]models.Identity(nil), u.Identities...)
	return &u
}

func (r *MemoryRepository) FindByIdentity(_ context.Context, provider, subject string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identities[models.Identity{Provider: provider, Subject: subject}.Key()]
	if !ok {
		return nil, nil
	}
	return clone(r.users[id]), nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (r *MemoryRepository) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range u.Identities {
		if _, taken := r.identities[ident.Key()]; taken {
			return ErrDuplicateIdentity
		}
	}
	r.users[u.ID] = *clone(*u)
	for _, ident := range u.Identities {
		r.identities[ident.Key()] = u.ID
	}
	return nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, userID string, ident models.Identity, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil
	}
	u = *clone(u)
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
	u.UpdatedAt = at
	r.users[userID] = u
	return nil
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
