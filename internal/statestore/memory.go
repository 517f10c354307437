package statestore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process Store with the same sliding expiry as Redis.
// Records are kept serialized so both backends share encoding behaviour.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption customizes a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory constructs an empty store. A non-positive ttl disables expiry.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

func (m *Memory) live(entry memoryEntry) bool {
	return entry.expires.IsZero() || m.now().Before(entry.expires)
}

func (m *Memory) Save(_ context.Context, sender string, rec Record) error {
	data, err := encode("save", sender, rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sender] = memoryEntry{data: data, expires: m.expiry()}
	return nil
}

func (m *Memory) Load(_ context.Context, sender string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[sender]
	if !ok {
		return Record{}, false, nil
	}
	if !m.live(entry) {
		delete(m.entries, sender)
		return Record{}, false, nil
	}
	rec, err := decode("load", sender, entry.data)
	if err != nil {
		return Record{}, false, err
	}
	entry.expires = m.expiry()
	m.entries[sender] = entry
	return rec, true, nil
}

func (m *Memory) Delete(_ context.Context, sender string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[sender]
	if !ok {
		return false, nil
	}
	delete(m.entries, sender)
	return m.live(entry), nil
}

func (m *Memory) AllActive(_ context.Context) (map[string]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Record, len(m.entries))
	for sender, entry := range m.entries {
		if !m.live(entry) {
			delete(m.entries, sender)
			continue
		}
		rec, err := decode("list", sender, entry.data)
		if err != nil {
			continue
		}
		out[sender] = rec
	}
	return out, nil
}

func (m *Memory) Health(context.Context) bool { return true }

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Close() error { return nil }
