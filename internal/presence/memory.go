// ABOUTME: Process-local presence registry backed by a mutex-guarded map
// ABOUTME: Optional TTL sweeps stale entries whose heartbeats stopped arriving

package presence

import (
	"context"
	"sync"
	"time"
)

// entry tracks one identity's connection state.
type entry struct {
	online   bool
	lastSeen time.Time
}

// Memory is an in-process Registry. With a zero TTL entries never expire
// (the registry is authoritative for its own connections); with a positive
// TTL a background sweeper marks identities offline when their heartbeats
// stop, which covers crashed connections that never sent a clean close.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

// NewMemory creates an in-process registry. ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go m.sweep()
	}
	return m
}

var _ Registry = (*Memory)(nil)

func (m *Memory) SetOnline(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = &entry{online: true, lastSeen: time.Now()}
	return nil
}

func (m *Memory) Heartbeat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok && e.online {
		e.lastSeen = time.Now()
	}
	return nil
}

func (m *Memory) SetOffline(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.online = false
		e.lastSeen = time.Now()
	} else {
		m.entries[id] = &entry{online: false, lastSeen: time.Now()}
	}
	return nil
}

func (m *Memory) IsOnline(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || !e.online {
		return false, nil
	}
	if m.ttl > 0 && time.Since(e.lastSeen) > m.ttl {
		return false, nil
	}
	return true, nil
}

func (m *Memory) ListOnline(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, e := range m.entries {
		if !e.online {
			continue
		}
		if m.ttl > 0 && time.Since(e.lastSeen) > m.ttl {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return time.Time{}, false, nil
	}
	return e.lastSeen, true, nil
}

// Close stops the background sweeper.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

// sweep flips expired entries to offline so ListOnline stays bounded.
func (m *Memory) sweep() {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			for _, e := range m.entries {
				if e.online && time.Since(e.lastSeen) > m.ttl {
					e.online = false
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}
