package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Errors
var (
	ErrNotFound = errors.New("session not found")
)

// Session is the persisted state of one device's login.
type Session struct {
	DeviceID  string
	Token     string
	UpdatedAt time.Time
}

// Store persists sessions by device id.
type Store interface {
	// Load returns ErrNotFound when no session exists.
	Load(ctx context.Context, deviceID string) (Session, error)

	// Save creates or replaces the session.
	Save(ctx context.Context, s Session) error

	// Clear removes the session. Clearing a missing session is not an error.
	Clear(ctx context.Context, deviceID, reason string) error
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	cleared  map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		cleared:  make(map[string]string),
	}
}

func (m *MemoryStore) Load(_ context.Context, deviceID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[deviceID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	m.sessions[s.DeviceID] = s
	delete(m.cleared, s.DeviceID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, deviceID, reason string) error {
	m.mu.Lock()
	delete(m.sessions, deviceID)
	m.cleared[deviceID] = reason
	m.mu.Unlock()
	return nil
}

// ClearedReason returns the reason given for the last Clear of deviceID.
func (m *MemoryStore) ClearedReason(deviceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reason, ok := m.cleared[deviceID]
	return reason, ok
}
