package store

import (
	"context"
	"time"

	"github.com/paasify/cfvault/internal/session"
	"github.com/paasify/cfvault/pkg/secrets"
)

const cleanerInterval = time.Minute

// Memory keeps session tokens in process. Entries expire with their lease.
type Memory struct {
	cache *secrets.Cache[session.Entry]
}

func NewMemory() *Memory {
	return &Memory{cache: secrets.NewCache[session.Entry](0)}
}

func (m *Memory) Load(_ context.Context, key string) (session.Entry, bool, error) {
	entry, ok := m.cache.Get(key)
	return entry, ok, nil
}

func (m *Memory) Save(_ context.Context, key string, entry session.Entry) error {
	lease, _ := entry.Token.LeaseDuration()
	m.cache.PutWithTTL(key, entry, lease)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Bust(key)
	return nil
}

// StartCleaner evicts expired tokens until stop is closed.
func (m *Memory) StartCleaner(stop <-chan struct{}) {
	m.cache.StartCleaner(cleanerInterval, stop)
}
