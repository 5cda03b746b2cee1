package securechannel

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/uasc/opcua-sc/pkg/uatcp"
)

// PendingChannelReq is a channel-level pending request, used for OPN and
// CLO exchanges that are answered at this layer rather than passed up to
// the session layer (Spec Section 3.2's PendingRequest shape).
type PendingChannelReq struct {
	RequestID     uint32
	ExpectedType  string
	Deadline      time.Time
	Done          chan pendingResult
	cancelled     bool
}

type pendingResult struct {
	payload []byte
	err     error
}

// SecureChannel is the runtime L3 entity (Spec Section 3.2). One instance
// exists per live TCP connection once its HEL/ACK handshake (L1/L2) has
// completed; SecureChannel owns the OPN handshake and all symmetric
// sign/encrypt/verify/decrypt from then on.
//
// Structured the way the teacher's session.SecureContext is: a
// sync.RWMutex-guarded struct with getter/setter-style methods, built
// from a Config struct by a validating constructor.
type SecureChannel struct {
	mu sync.RWMutex

	id    uint32
	role  Role
	state State

	securityPolicyURI string
	securityMode      SecurityMode
	profile           CryptoProfile
	pki               PKI

	localCertificate []byte
	peerCertificate  []byte

	currentToken        *Token
	previousToken        *Token
	previousTokenExpires time.Time

	sendSeq     uint32
	lastRecvSeq uint32

	nextRequestID uint32
	pending       map[uint32]*PendingChannelReq

	conn   *uatcp.Conn
	limits uatcp.Limits
	reasm  *uatcp.ReassemblyTable

	log logging.LeveledLogger
}

// NewClientChannel constructs a SecureChannel for the client role, in
// state TcpInitialized (the HEL/ACK handshake — L1/L2 — is assumed
// already complete on conn).
func NewClientChannel(id uint32, cfg SecureChannelConfig, conn *uatcp.Conn, limits uatcp.Limits, loggerFactory logging.LoggerFactory) (*SecureChannel, error) {
	if !cfg.SecurityMode.IsValid() {
		return nil, ErrUnknownSecurityMode
	}
	c := newChannel(id, RoleClient, cfg.SecurityPolicyURI, cfg.SecurityMode, cfg.Profile, cfg.PKI, conn, limits, loggerFactory)
	c.localCertificate = cfg.ClientCertificate
	c.peerCertificate = cfg.ServerCertificate
	c.state = StateTcpInitialized
	return c, nil
}

// NewServerChannel constructs a SecureChannel for the server role, bound
// to one already-handshaken connection and one of the endpoint's
// accepted security policies.
func NewServerChannel(id uint32, ep *EndpointConfig, policy SecurityPolicy, mode SecurityMode, conn *uatcp.Conn, limits uatcp.Limits, loggerFactory logging.LoggerFactory) (*SecureChannel, error) {
	if !mode.IsValid() {
		return nil, ErrUnknownSecurityMode
	}
	c := newChannel(id, RoleServer, policy.PolicyURI, mode, policy.Profile, ep.PKI, conn, limits, loggerFactory)
	c.localCertificate = ep.ServerCertificate
	c.state = StateTcpInitialized
	return c, nil
}

func newChannel(id uint32, role Role, policyURI string, mode SecurityMode, profile CryptoProfile, pki PKI, conn *uatcp.Conn, limits uatcp.Limits, loggerFactory logging.LoggerFactory) *SecureChannel {
	c := &SecureChannel{
		id:                id,
		role:              role,
		state:             StateInit,
		securityPolicyURI: policyURI,
		securityMode:      mode,
		profile:           profile,
		pki:               pki,
		conn:              conn,
		limits:            limits,
		reasm:             uatcp.NewReassemblyTable(),
		pending:           make(map[uint32]*PendingChannelReq),
		nextRequestID:     1,
	}
	if loggerFactory != nil {
		c.log = loggerFactory.NewLogger("securechannel")
	}
	return c
}

// ID returns the channel's runtime identifier.
func (c *SecureChannel) ID() uint32 { return c.id }

// State returns the current state machine node.
func (c *SecureChannel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *SecureChannel) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if c.log != nil {
		c.log.Debugf("channel %d: %s -> %s", c.id, old, s)
	}
}

// String renders current state, counters, and token ids for diagnostics
// (never key material), per Spec Section 10's diagnostics dump.
func (c *SecureChannel) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokenID := uint32(0)
	if c.currentToken != nil {
		tokenID = c.currentToken.ID
	}
	return "SecureChannel{id=" + itoa(c.id) + " state=" + c.state.String() + " token=" + itoa(tokenID) + " sendSeq=" + itoa(c.sendSeq) + "}"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := [10]byte{}
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

// nextSeq returns the next send sequence number, implementing the
// modulo-(2^32-1024) wraparound and the "> 1 after OPN" reset rule of
// Spec Section 3.2's SecureChannel invariants.
func (c *SecureChannel) nextSeq() uint32 {
	c.sendSeq++
	const wrapAt = ^uint32(0) - 1024
	if c.sendSeq > wrapAt {
		c.sendSeq = 1
	}
	return c.sendSeq
}

// resetSendSeq is called after a successful OPN in this direction.
func (c *SecureChannel) resetSendSeq(start uint32) {
	c.mu.Lock()
	c.sendSeq = start
	c.mu.Unlock()
}

// checkRecvSeq enforces P2/B3: strictly increasing sequence numbers,
// except immediately after an OPN reset (reset=true bypasses the check).
func (c *SecureChannel) checkRecvSeq(seq uint32, reset bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !reset && seq <= c.lastRecvSeq {
		return ErrSequenceNotMonotonic
	}
	c.lastRecvSeq = seq
	return nil
}

// acceptToken reports whether tokenID is currently valid for inbound
// chunks (P1): either the current token, or the previous token within
// its grace window.
func (c *SecureChannel) acceptToken(tokenID uint32, now time.Time) (*Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentToken != nil && c.currentToken.ID == tokenID {
		return c.currentToken, nil
	}
	if c.previousToken != nil && c.previousToken.ID == tokenID && now.Before(c.previousTokenExpires) {
		return c.previousToken, nil
	}
	if c.previousToken != nil && c.previousToken.ID == tokenID {
		return nil, ErrTokenExpired
	}
	return nil, ErrTokenUnknown
}

// promoteToken installs newToken as current, demoting the prior current
// token to previous with its grace window starting now (Spec Section
// 4.3.3). On the very first OPN (issue), there is no prior token to
// demote.
func (c *SecureChannel) promoteToken(newToken *Token, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentToken != nil {
		prior := c.currentToken
		c.previousToken = prior
		c.previousTokenExpires = now.Add(prior.GraceWindow())
	}
	c.currentToken = newToken
}

// expirePreviousToken zeroes and drops previousToken once its grace
// window has elapsed; it runs through CompleteRenewTick, which the
// pkg/opcua receive loops call periodically.
func (c *SecureChannel) expirePreviousToken(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previousToken != nil && now.After(c.previousTokenExpires) {
		c.previousToken.Zero()
		c.previousToken = nil
	}
}

// RenewDue reports whether 75% of the current token's lifetime has
// elapsed (Spec Section 4.3.1's ScConnected -> ScConnectedRenew guard).
func (c *SecureChannel) RenewDue(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentToken == nil {
		return false
	}
	threshold := c.currentToken.IssuedAt.Add(c.currentToken.Lifetime * 3 / 4)
	return !now.Before(threshold)
}

// Close transitions the channel to Disconnected and zeroes all key
// material, per Spec Section 4.3.4 and the mandatory-zeroing rule in §5.
func (c *SecureChannel) Close() error {
	c.mu.Lock()
	if c.currentToken != nil {
		c.currentToken.Zero()
		c.currentToken = nil
	}
	if c.previousToken != nil {
		c.previousToken.Zero()
		c.previousToken = nil
	}
	for _, p := range c.pending {
		p.cancelled = true
		select {
		case p.Done <- pendingResult{err: ErrChannelClosed}:
		default:
		}
	}
	c.pending = make(map[uint32]*PendingChannelReq)
	c.mu.Unlock()
	c.setState(StateDisconnected)
	return c.conn.Close()
}
