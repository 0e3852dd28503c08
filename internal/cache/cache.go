package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is one cached payload plus the moment it was fetched upstream.
type Entry struct {
	Key       string
	Value     []byte
	FetchedAt time.Time
}

// Store is a key/value cache. Freshness is decided by the reader via Fresh,
// so backends never expire entries on their own.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, value []byte, fetchedAt time.Time) error
	Close() error
}

// Fresh reports whether e is younger than ttl at now.
func Fresh(e Entry, ttl time.Duration, now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return false
	}
	age := now.Sub(e.FetchedAt)
	if age < 0 {
		age = 0
	}
	return age < ttl
}

// Memory is a process-local Store used by tests and the memory backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e.Value = append([]byte(nil), e.Value...)
	return e, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), FetchedAt: fetchedAt.UTC()}
	return nil
}

func (m *Memory) Close() error { return nil }
