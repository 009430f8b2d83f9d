// Package session tracks the nodes seen by the ingestion pipeline. A session
// binds a node identity to the driver chosen on first sighting and keeps the
// last reading decoded for that node.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/d21d3q/golora/internal/driver"
	"github.com/d21d3q/golora/internal/reading"
)

// Session is the per-node state. The identity, device type and driver are
// fixed at creation; only the last reading changes.
type Session struct {
	NodeID     reading.NodeID
	DeviceType driver.DeviceType
	Driver     driver.Driver
	FirstSeen  time.Time

	mu       sync.RWMutex
	last     reading.Reading
	lastSeen time.Time
	packets  uint64
}

func newSession(id reading.NodeID, typ driver.DeviceType, drv driver.Driver, now time.Time) *Session {
	return &Session{NodeID: id, DeviceType: typ, Driver: drv, FirstSeen: now}
}

// Observe records a successfully decoded reading.
func (s *Session) Observe(r reading.Reading, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
	s.lastSeen = at
	s.packets++
}

// Last returns the most recent reading, or nil before the first decode.
func (s *Session) Last() (reading.Reading, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastSeen
}

// Packets returns how many readings were observed.
func (s *Session) Packets() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packets
}

// Store is the node session table.
type Store interface {
	// GetOrCreate returns the session for id, creating it with the driver for
	// typ on first sighting. The boolean is true when a session was created.
	// An existing session is returned unchanged even when typ differs.
	GetOrCreate(ctx context.Context, id reading.NodeID, typ driver.DeviceType) (*Session, bool, error)
	Get(id reading.NodeID) (*Session, bool)
	Len() int
	Snapshot() []*Session
}
