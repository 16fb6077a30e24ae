// Package profile holds the remote player-profile store: a per-user mapping
// of string keys to string values.
package profile

import (
	"context"
	"errors"
	"sync"
)

// ErrRemoteCall wraps every backend failure.
var ErrRemoteCall = errors.New("remote profile call failed")

// Store reads and writes a user's profile fields.
type Store interface {
	Fetch(ctx context.Context, userID string) (map[string]string, error)
	Update(ctx context.Context, userID string, fields map[string]string) error
}

// MemoryStore keeps profiles in process. It stands in for the backend in
// development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]string
	fail  error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]map[string]string)}
}

// Fetch returns a copy of the user's fields.
func (s *MemoryStore) Fetch(_ context.Context, userID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, errors.Join(ErrRemoteCall, s.fail)
	}
	out := make(map[string]string, len(s.users[userID]))
	for k, v := range s.users[userID] {
		out[k] = v
	}
	return out, nil
}

// Update merges fields into the user's profile.
func (s *MemoryStore) Update(_ context.Context, userID string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return errors.Join(ErrRemoteCall, s.fail)
	}
	u, ok := s.users[userID]
	if !ok {
		u = make(map[string]string, len(fields))
		s.users[userID] = u
	}
	for k, v := range fields {
		u[k] = v
	}
	return nil
}

// FailWith makes every call fail with err until called with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}
