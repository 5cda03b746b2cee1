package session

import (
	"sync"
	"time"

	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/ua"
)

// Session is the runtime L4 entity (Spec Section 3.2). It is created
// against one SecureChannel, survives that channel's loss (re-bound onto
// a new one by a later ActivateSession; this package's ReBinding state
// stands in for Spec Section 4.4.1's Orphaned state), and is torn down by
// an explicit CloseSession. Expired reports whether the inactivity timeout
// has elapsed; nothing in this module removes a session on that basis.
//
// Structured like the teacher's session.SecureContext: a
// sync.RWMutex-guarded struct built by a validating constructor, whose
// exported methods are the only way callers observe or mutate state.
type Session struct {
	mu sync.RWMutex

	id                  uint32
	authenticationToken ua.NodeID
	state               State

	channel   *securechannel.SecureChannel
	channelID uint32

	createdAt    time.Time
	lastActivity time.Time
	timeout      time.Duration

	serverNonce []byte
	clientCertificate []byte

	userIdentity any
}

// Config holds the immutable parameters of a new session, set at Create
// time (Spec Section 4.4.1).
type Config struct {
	ID                  uint32
	AuthenticationToken ua.NodeID
	Channel             *securechannel.SecureChannel
	Timeout             time.Duration
	ServerNonce         []byte
	ClientCertificate   []byte
}

// DefaultTimeout is used when Config.Timeout is left at zero (Spec
// Section 4.4.1).
const DefaultTimeout = 60 * time.Second

// New constructs a Session in StateCreated, bound to cfg.Channel.
func New(cfg Config) (*Session, error) {
	if cfg.Channel == nil {
		return nil, ErrInvalidState
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := time.Now()
	return &Session{
		id:                  cfg.ID,
		authenticationToken: cfg.AuthenticationToken,
		state:               StateCreated,
		channel:             cfg.Channel,
		channelID:           cfg.Channel.ID(),
		createdAt:           now,
		lastActivity:        now,
		timeout:             timeout,
		serverNonce:         cfg.ServerNonce,
		clientCertificate:   cfg.ClientCertificate,
	}, nil
}

// ID returns the session's server-assigned numeric id.
func (s *Session) ID() uint32 { return s.id }

// AuthenticationToken returns the opaque NodeId token the client must
// present in every RequestHeader to correlate a request with this
// session (Spec Section 4.4.1, 4.4.5).
func (s *Session) AuthenticationToken() ua.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticationToken
}

// State returns the current state machine node.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ChannelID returns the id of the secure channel currently bound to this
// session (may be stale while ReBinding).
func (s *Session) ChannelID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelID
}

// Activate transitions Created/ReBinding -> Activated once the user
// identity token has been validated by the caller (Spec Section 4.4.5);
// it does not itself call AuthenticationManager — the dispatch layer
// does that before calling Activate, per the capability-interface split
// in Spec Section 6.2.
func (s *Session) Activate(userIdentity any, channel *securechannel.SecureChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCreated, StateReBinding, StateActivated:
	default:
		return ErrInvalidState
	}
	if channel != nil {
		s.channel = channel
		s.channelID = channel.ID()
	}
	s.userIdentity = userIdentity
	s.state = StateActivated
	s.lastActivity = time.Now()
	return nil
}

// UserIdentity returns the identity bound at the last successful
// Activate call, or nil before the first Activate.
func (s *Session) UserIdentity() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userIdentity
}

// Touch records activity on the session, resetting its inactivity
// timeout clock (Spec Section 4.4.1).
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// DetachChannel is called when the bound SecureChannel is lost (closed
// or its connection dropped) without an explicit CloseSession, moving
// the session into ReBinding: it survives, orphaned, until either a
// later ActivateSession re-binds it to a new channel or its inactivity
// timeout elapses (Spec Section 4.4.1's orphaned-session reactivation).
func (s *Session) DetachChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActivated || s.state == StateCreated {
		s.state = StateReBinding
		s.channel = nil
	}
}

// Expired reports whether the session's inactivity timeout has elapsed
// as of now, relative to its last recorded activity.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateClosed {
		return true
	}
	return now.Sub(s.lastActivity) > s.timeout
}

// Close transitions the session to Closed. It does not close the
// underlying SecureChannel, which may be shared by other sessions or
// already gone.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.channel = nil
}

// Channel returns the currently bound SecureChannel, or nil while
// ReBinding/Closed.
func (s *Session) Channel() *securechannel.SecureChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}
