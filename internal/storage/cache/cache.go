// Package cache holds the resolver's pair -> conversation id read-through
// cache. Conversations are never deleted, so a cached id cannot go stale;
// the TTL only bounds memory.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-connect/internal/pairing"
)

var ErrMiss = errors.New("cache: miss")

type PairCache interface {
	Get(ctx context.Context, pair pairing.Pair) (string, error)
	Set(ctx context.Context, pair pairing.Pair, conversationID string) error
	Close() error
}

func key(pair pairing.Pair) string {
	return "dm:pair:" + pair.Key()
}

// Nop never hits. It is used when no cache is configured.
type Nop struct{}

func (Nop) Get(context.Context, pairing.Pair) (string, error) { return "", ErrMiss }
func (Nop) Set(context.Context, pairing.Pair, string) error   { return nil }
func (Nop) Close() error                                      { return nil }

// DefaultTTL applies when a cache is built without a positive TTL.
const DefaultTTL = 24 * time.Hour

// Memory is a process-local PairCache. Expired entries are dropped on read
// and swept at most once per TTL on write.
type Memory struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
	entries   map[string]memoryEntry
}

type memoryEntry struct {
	id        string
	expiresAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, pair pairing.Pair) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key(pair)]
	if !ok {
		return "", ErrMiss
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key(pair))
		return "", ErrMiss
	}
	return e.id, nil
}

func (m *Memory) Set(_ context.Context, pair pairing.Pair, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if !now.Before(m.nextSweep) {
		for k, e := range m.entries {
			if !now.Before(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.nextSweep = now.Add(m.ttl)
	}
	m.entries[key(pair)] = memoryEntry{id: conversationID, expiresAt: now.Add(m.ttl)}
	return nil
}

// Len is the number of entries held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
