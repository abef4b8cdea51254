// Package session implements the Session component (spec.md §4.F): one
// UserSession per logged-in employee, idle-TTL expiry, and a hard cap on
// concurrent sessions.
//
// Grounded on
// _examples/original_source/src/nyx_light/sessions/manager.py
// (UserSession.is_expired/touch, SessionManager.create_session/get_session/
// end_session/set_active_client/record_message/record_booking/_cleanup_expired).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxSessions = 15
	DefaultIdleTimeout = 60 * time.Minute
)

// Session is one employee's working context.
type Session struct {
	ID              string
	UserID          string
	UserName        string
	CreatedAt       time.Time
	LastActive      time.Time
	ActiveClientID  string
	MessageCount    int
	BookingsPropose int
	BookingsApprove int
}

// IsExpired reports whether the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	return time.Since(s.LastActive) > timeout
}

func (s *Session) touch() { s.LastActive = time.Now().UTC() }

// Manager manages up to maxSessions concurrent employee sessions, lazily
// expiring idle ones on Create, Get (and so GetByUser), ActiveSessions and
// Stats — matching the original's cleanup-on-access rather than a
// background sweep.
type Manager struct {
	mu          sync.Mutex
	maxSessions int
	idleTimeout time.Duration
	byID        map[string]*Session
	byUser      map[string]string // user id -> session id
}

// New builds a Manager with spec.md's defaults (15 sessions, 60 min idle).
func New(maxSessions int, idleTimeout time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Manager{
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		byID:        make(map[string]*Session),
		byUser:      make(map[string]string),
	}
}

// cleanupExpired removes every idle-expired session. Caller holds m.mu.
func (m *Manager) cleanupExpired() {
	for id, s := range m.byID {
		if s.IsExpired(m.idleTimeout) {
			m.endLocked(id)
		}
	}
}

func (m *Manager) endLocked(id string) {
	s, ok := m.byID[id]
	if !ok {
		return
	}

	delete(m.byID, id)
	delete(m.byUser, s.UserID)
}

// Create starts a session for userID, reusing an existing non-expired one if
// present. Returns (nil, false) if the manager is at capacity.
func (m *Manager) Create(userID, userName string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpired()

	if sid, ok := m.byUser[userID]; ok {
		if existing, ok := m.byID[sid]; ok && !existing.IsExpired(m.idleTimeout) {
			existing.touch()
			return existing, true
		}

		m.endLocked(sid)
	}

	if len(m.byID) >= m.maxSessions {
		return nil, false
	}

	now := time.Now().UTC()

	if userName == "" {
		userName = userID
	}

	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		UserName:   userName,
		CreatedAt:  now,
		LastActive: now,
	}

	m.byID[s.ID] = s
	m.byUser[userID] = s.ID

	return s, true
}

// Get returns a session by id, refreshing its last-active time, or nil if
// it doesn't exist or has expired.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpired()

	s, ok := m.byID[id]
	if !ok || s.IsExpired(m.idleTimeout) {
		return nil
	}

	s.touch()

	return s
}

// GetByUser returns the active session for a user, if any.
func (m *Manager) GetByUser(userID string) *Session {
	m.mu.Lock()
	sid, ok := m.byUser[userID]
	m.mu.Unlock()

	if !ok {
		return nil
	}

	return m.Get(sid)
}

// End terminates a session explicitly.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endLocked(id)
}

// SetActiveClient records which client workspace a session is working on.
func (m *Manager) SetActiveClient(id, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byID[id]; ok {
		s.ActiveClientID = clientID
		s.touch()
	}
}

// RecordMessage increments a session's message counter.
func (m *Manager) RecordMessage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byID[id]; ok {
		s.MessageCount++
		s.touch()
	}
}

// RecordBooking increments a session's proposed (and, if approved, approved)
// booking counters.
func (m *Manager) RecordBooking(id string, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return
	}

	s.BookingsPropose++
	if approved {
		s.BookingsApprove++
	}

	s.touch()
}

// ActiveSessions returns a snapshot of every live session, after pruning
// expired ones.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpired()

	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		cp := *s
		out = append(out, &cp)
	}

	return out
}

// Stats is the session-table summary shown on the monitoring dashboard.
type Stats struct {
	Active               int
	Max                   int
	CapacityPct           float64
	TotalMessages         int
	TotalBookingsPropose  int
	TotalBookingsApprove  int
}

// Stats returns the aggregate session counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpired()

	st := Stats{Active: len(m.byID), Max: m.maxSessions}
	if m.maxSessions > 0 {
		st.CapacityPct = float64(len(m.byID)) / float64(m.maxSessions) * 100
	}

	for _, s := range m.byID {
		st.TotalMessages += s.MessageCount
		st.TotalBookingsPropose += s.BookingsPropose
		st.TotalBookingsApprove += s.BookingsApprove
	}

	return st
}
