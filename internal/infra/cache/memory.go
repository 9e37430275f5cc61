package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bryanwahyu/civic-triage/internal/application"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// Memory is a process-local TTL cache for dev runs and tests. Expired
// entries are dropped lazily on Get.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	clock   application.Clock
}

type memEntry struct {
	entry
	expires time.Time
}

func NewMemory(clock application.Clock) *Memory {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Memory{entries: make(map[string]memEntry), clock: clock}
}

func (m *Memory) Get(_ context.Context, key string) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	r := e.Result.WithSource(e.Result.Source)
	return &r, nil
}

func (m *Memory) Set(_ context.Context, key string, r domain.Result, ttl time.Duration) error {
	now := m.clock.Now()
	e := memEntry{entry: entry{Result: r.WithSource(r.Source), StoredAt: now}}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len reports stored entries, expired ones included until next touched.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ domain.Cache = (*Memory)(nil)
