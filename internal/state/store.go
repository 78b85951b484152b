// Package state provides key/value state stores backing the client's durable
// and ephemeral storage: in-memory, encrypted file, and Redis.
package state

import (
	"context"
	"errors"
	"sync"
)

// Well-known durable keys.
const (
	KeyRole       = "role"
	KeyReviewerID = "reviewer_id"
	KeySession    = "session"
)

// Well-known ephemeral keys. The flag keys are single-use: readers clear them.
const (
	KeyRoleJustSelected = "role_just_selected"
	KeyIdentityVerified = "identity_verified"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("state: key not found")

// Store is a minimal key/value store. Durable implementations survive process
// restarts; ephemeral ones do not.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Mem is an in-process store used for ephemeral per-run state and in tests.
type Mem struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMem() *Mem {
	return &Mem{values: make(map[string]string)}
}

func (m *Mem) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Mem) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Mem) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Mem) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

// TakeFlag reads and clears a single-use flag. It reports whether the flag was
// set. Errors other than absence are reported as unset.
func TakeFlag(ctx context.Context, s Store, key string) bool {
	_, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	_ = s.Delete(ctx, key)
	return true
}
