package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory. Intended for tests and
// single-process development.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Session)}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[s.Token]; exists {
		return errors.New("session token collision")
	}
	r.items[s.Token] = *s
	return nil
}

func (r *MemoryRepository) GetByToken(_ context.Context, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) Extend(_ context.Context, token string, expiresAt, refreshedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[token]
	if !ok || !s.ExpiresAt.Before(expiresAt) {
		return false, nil
	}
	s.ExpiresAt = expiresAt
	s.LastRefreshedAt = refreshedAt
	r.items[token] = s
	return true, nil
}

func (r *MemoryRepository) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, token)
	return nil
}

// Len returns the number of stored records, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
