package session

import (
	"sync"

	"github.com/uasc/opcua-sc/pkg/ua"
)

// MinSessionID and MaxSessionID bound the server-assigned numeric
// session id space; 0 is reserved (Spec Section 4.4.1 mirrors the
// teacher's session.Table reservation of id 0 for "unsecured").
const (
	MinSessionID uint32 = 1
	MaxSessionID uint32 = 0xFFFFFFFF

	// DefaultMaxSessions bounds how many sessions one server process
	// tracks concurrently, matching the arena-sizing idea in the
	// teacher's session.Table (Spec Section 9: "cross-references are
	// integer indices, never ownership").
	DefaultMaxSessions = 64
)

// Table is the server-side session arena: id allocation, lookup by id,
// and lookup by authenticationToken (the value clients actually present
// on every subsequent request, Spec Section 4.4.2/4.4.5). Grounded
// directly on the teacher's session.Table.
type Table struct {
	mu          sync.RWMutex
	sessions    map[uint32]*Session
	byToken     map[string]*Session
	maxSessions int
	nextID      uint32
}

// NewTable creates a session table. maxSessions <= 0 uses
// DefaultMaxSessions.
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Table{
		sessions:    make(map[uint32]*Session),
		byToken:     make(map[string]*Session),
		maxSessions: maxSessions,
		nextID:      MinSessionID,
	}
}

// AllocateID returns a unique session id, or ErrSessionTableFull if the
// table is at capacity.
func (t *Table) AllocateID() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) >= t.maxSessions {
		return 0, ErrSessionTableFull
	}
	start := t.nextID
	for {
		id := t.nextID
		t.nextID++
		if t.nextID == 0 {
			t.nextID = MinSessionID
		}
		if _, exists := t.sessions[id]; !exists {
			return id, nil
		}
		if t.nextID == start {
			return 0, ErrSessionTableFull
		}
	}
}

// Add registers s, keyed by both its numeric id and its
// authenticationToken (as a byte-string key, since NodeID is not
// comparable across all its Kind variants).
func (t *Table) Add(s *Session) error {
	if s == nil || s.ID() == 0 {
		return ErrInvalidSessionID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) >= t.maxSessions {
		return ErrSessionTableFull
	}
	if _, exists := t.sessions[s.ID()]; exists {
		return ErrDuplicateSession
	}
	t.sessions[s.ID()] = s
	t.byToken[tokenKey(s.AuthenticationToken())] = s
	return nil
}

// Remove drops the session from both indexes.
func (t *Table) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	delete(t.sessions, id)
	delete(t.byToken, tokenKey(s.AuthenticationToken()))
}

// FindByID looks up a session by its numeric id, or nil.
func (t *Table) FindByID(id uint32) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// FindByToken looks up a session by the authenticationToken a client
// presented in a RequestHeader (Spec Section 4.4.2's routing step).
func (t *Table) FindByToken(token ua.NodeID) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byToken[tokenKey(token)]
}

// ForEach calls fn for every tracked session; fn returning false stops
// iteration early. Nothing in this module calls it; no periodic sweep of
// expired or orphaned sessions runs.
func (t *Table) ForEach(fn func(*Session) bool) {
	t.mu.RLock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()
	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

// Count returns the number of tracked sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

func tokenKey(token ua.NodeID) string {
	b := ua.NewGrowableBuffer(32, 4096)
	if err := token.Encode(b); err != nil {
		return ""
	}
	return string(b.Bytes())
}
