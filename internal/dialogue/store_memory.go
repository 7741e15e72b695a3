package dialogue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Expired entries are invisible to Get
// and removed by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, callID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[callID]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, nil
	}
	return e.data.clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session, ttl time.Duration) error {
	if s == nil || s.CallID == "" {
		return fmt.Errorf("dialogue: session call_id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.CallID] = memoryEntry{data: *s.clone(), expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
