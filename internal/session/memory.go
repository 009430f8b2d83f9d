package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/reading"
)

// MemoryStore keeps sessions in a map for the lifetime of the process. There
// is no eviction.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[reading.NodeID]*Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[reading.NodeID]*Session),
		now:      time.Now,
	}
}

// GetOrCreate implements Store. Lookup and insertion happen under one lock.
func (m *MemoryStore) GetOrCreate(_ context.Context, id reading.NodeID, typ driver.DeviceType) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false, nil
	}
	drv, ok := driver.Lookup(typ)
	if !ok {
		return nil, false, fmt.Errorf("%w %s for node %s", driver.ErrUnknownDeviceType, typ, id)
	}
	s := newSession(id, typ, drv, m.now())
	m.sessions[id] = s
	return s, true, nil
}

// Get implements Store.
func (m *MemoryStore) Get(id reading.NodeID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len implements Store.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot implements Store. Sessions are ordered by node identity.
func (m *MemoryStore) Snapshot() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
