package oauthstate

import (
	"context"
	"sync"
)

// CredentialRepository persists sealed credential material, one entry per
// identity. Saving overwrites any previous entry.
type CredentialRepository interface {
	SaveCredential(ctx context.Context, identity string, sealed []byte) error
	// LoadCredential returns ok=false when identity has never been linked.
	LoadCredential(ctx context.Context, identity string) (sealed []byte, ok bool, err error)
}

// MemoryCredentials keeps credentials for the life of the process.
type MemoryCredentials struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCredentials creates an empty repository.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{entries: make(map[string][]byte)}
}

func (m *MemoryCredentials) SaveCredential(_ context.Context, identity string, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[identity] = append([]byte(nil), sealed...)
	return nil
}

func (m *MemoryCredentials) LoadCredential(_ context.Context, identity string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.entries[identity]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}
