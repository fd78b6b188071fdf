// Package session owns the in-process, non-durable per-user session state.
// Entries are created lazily on first observed activity and evicted by a
// periodic sweep; everything except the display name is rebuildable from the
// memory store.
package session

import (
	"log"
	"sync"
	"time"
)

// State is one user's session entry. Values are copies; mutate through the
// Manager.
type State struct {
	DisplayName       string
	LastMessageAt     time.Time
	LastInteractionAt time.Time
	LastProactiveAt   time.Time
}

type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{
		states: make(map[string]*State),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetNow overrides the clock (for testing).
func (m *Manager) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Touch records user activity, creating the entry when absent.
func (m *Manager) Touch(userID, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[userID]
	if !ok {
		st = &State{}
		m.states[userID] = st
	}
	now := m.now()
	st.LastMessageAt = now
	st.LastInteractionAt = now
	if displayName != "" {
		st.DisplayName = displayName
	}
}

// Seed creates an entry with the given last-interaction time when none
// exists, used to rebuild state from durable history after a restart.
func (m *Manager) Seed(userID string, lastInteraction time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[userID]; ok {
		return
	}
	m.states[userID] = &State{
		LastMessageAt:     lastInteraction,
		LastInteractionAt: lastInteraction,
	}
}

// MarkProactive stamps the time of an unprompted outreach send.
func (m *Manager) MarkProactive(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[userID]
	if !ok {
		st = &State{}
		m.states[userID] = st
	}
	st.LastProactiveAt = m.now()
}

func (m *Manager) Get(userID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[userID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Sweep evicts entries with no activity of any kind within the TTL and
// returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	evicted := 0
	for userID, st := range m.states {
		last := st.LastInteractionAt
		if st.LastProactiveAt.After(last) {
			last = st.LastProactiveAt
		}
		if last.Before(cutoff) {
			delete(m.states, userID)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("[session] evicted %d stale sessions", evicted)
	}
	return evicted
}
