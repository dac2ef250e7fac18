package engine

import (
	"sync"
	"time"
)

type memoryEntry struct {
	engine    string
	expiresAt time.Time
}

// DomainMemory remembers which engine last won for each host, so repeat
// visits skip the race. Entries expire after a TTL; expired entries are
// dropped lazily on lookup and by Prune.
type DomainMemory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewDomainMemory creates a DomainMemory with the given TTL.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	return &DomainMemory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the remembered engine for host, or "" if none is live.
func (m *DomainMemory) Get(host string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[host]
	if !ok {
		return ""
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, host)
		return ""
	}
	return e.engine
}

// Set records the winning engine for host.
func (m *DomainMemory) Set(host, engine string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[host] = memoryEntry{engine: engine, expiresAt: m.now().Add(m.ttl)}
}

// Forget drops host, e.g. after the remembered engine failed.
func (m *DomainMemory) Forget(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, host)
}

// Prune removes expired entries and returns how many remain.
func (m *DomainMemory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for host, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, host)
		}
	}
	return len(m.entries)
}
