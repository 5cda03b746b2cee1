package opcua

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/uasc/opcua-sc/pkg/dispatch"
	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/session"
	"github.com/uasc/opcua-sc/pkg/ua"
	"github.com/uasc/opcua-sc/pkg/uatcp"
)

// pollInterval bounds how long the client's single receive loop blocks on
// one ReadChunk call before waking to service renewal and pending-request
// timeout scanning — the "suspension points" the concurrency model allows
// (Spec Section 5: blocking dequeue, net.Conn read/write with a deadline,
// sync.WaitGroup.Wait).
const pollInterval = 250 * time.Millisecond

// sessionNonceLength matches the secure channel's own nonce size; the
// session layer's nonce is otherwise unrelated to channel key material.
const sessionNonceLength = 32

// ClientConfig configures a Client's target server and the secure
// channel it will open against it.
type ClientConfig struct {
	ServerAddr  string
	EndpointURL string

	Channel securechannel.SecureChannelConfig
	Limits  uatcp.Limits

	SessionTimeout time.Duration

	LoggerFactory logging.LoggerFactory

	// OnEvent receives every application-facing event this client emits
	// (Spec Section 6.3), delivered in order by a single dedicated
	// consumer goroutine (pkg/dispatch.AppQueue). A nil OnEvent is valid:
	// events are generated and discarded, and callers relying purely on
	// the blocking CreateSession/ActivateSession/SendRequest return
	// values still work.
	OnEvent func(dispatch.Event)
}

// Client is the composition root for the client role: it owns one TCP
// connection, one SecureChannel, at most one Session, and the single
// receive-loop goroutine that services both (Spec Section 5: "exactly
// two consumer goroutines that may mutate protocol state" collapses to
// one here, since a client drives its own channel and session from the
// same loop rather than splitting them across a socket manager and a
// session-layer consumer the way a multi-channel server does).
type Client struct {
	cfg ClientConfig
	log logging.LeveledLogger

	mu      sync.Mutex
	conn    *uatcp.Conn
	channel *securechannel.SecureChannel
	sess    *session.Session
	pending *session.PendingTable

	nextHandle uint32

	appQueue *dispatch.AppQueue

	closeCh chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewClient constructs a Client. Connect must be called before any other
// method.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		cfg:      cfg,
		pending:  session.NewPendingTable(0),
		appQueue: dispatch.NewAppQueue(cfg.OnEvent),
	}
	if cfg.LoggerFactory != nil {
		c.log = cfg.LoggerFactory.NewLogger("opcua-client")
	}
	return c
}

// Connect dials the server, performs the HEL/ACK handshake, opens a
// secure channel, and starts the receive loop (Spec Section 4.3.1's
// Init -> ScInit -> ScConnected path).
func (c *Client) Connect(deadline time.Time) error {
	c.mu.Lock()
	if c.channel != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	if err := c.dialAndOpen(deadline); err != nil {
		return err
	}
	c.startLoop()
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindChannelConnected, ChannelID: c.channel.ID()})
	return nil
}

func (c *Client) dialAndOpen(deadline time.Time) error {
	limits := limitsOrDefault(c.cfg.Limits)
	conn, err := uatcp.Dial(c.cfg.ServerAddr, c.cfg.EndpointURL, limits, c.cfg.LoggerFactory)
	if err != nil {
		return err
	}
	channel, err := securechannel.NewClientChannel(0, c.cfg.Channel, conn, conn.Limits, c.cfg.LoggerFactory)
	if err != nil {
		conn.Close()
		return err
	}
	lifetime := c.cfg.Channel.RequestedLifetime
	if _, err := channel.Open(securechannel.TokenRequestIssue, lifetime, deadline); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

// startLoop (re)creates the shutdown channel and spawns the receive loop.
// Called once from Connect and again from Reconnect after a fresh dial.
func (c *Client) startLoop() {
	c.mu.Lock()
	c.closeCh = make(chan struct{})
	c.closed = false
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop()
}

// loop is the client's single consumer goroutine: it owns the connection
// exclusively, alternating between servicing inbound chunks and, between
// them, renewal and pending-request timeout housekeeping (Spec Section
// 4.4.3's timer-wheel tick, folded into this same loop rather than run on
// a separate goroutine since nothing else may touch the channel's state
// concurrently).
func (c *Client) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		msg, _, err := c.channel.Receive(time.Now())
		if err != nil {
			if isTimeout(err) {
				c.pending.ScanTimeouts(time.Now(), ErrRequestTimeout)
				c.serviceRenewal()
				continue
			}
			c.handleChannelLost(err)
			return
		}
		if msg == nil {
			continue
		}
		c.routeMessage(*msg)
	}
}

func (c *Client) serviceRenewal() {
	now := time.Now()
	c.channel.CompleteRenewTick(now)
	if !c.channel.RenewDue(now) {
		return
	}
	c.conn.SetReadDeadline(time.Time{})
	if _, err := c.channel.BeginRenew(c.cfg.Channel.RequestedLifetime, now, false); err != nil {
		if c.log != nil {
			c.log.Warnf("token renewal failed: %v", err)
		}
		return
	}
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindChannelRenewed, ChannelID: c.channel.ID()})
}

func (c *Client) routeMessage(msg securechannel.DecodedMessage) {
	typeID, buf, err := session.DecodeServiceTypeID(msg.Payload)
	result := session.PendingResult{Payload: msg.Payload}
	evtKind := dispatch.KindRcvSessionResponse
	var status ua.StatusCode

	switch {
	case err != nil:
		result = session.PendingResult{Err: err}
	case typeID == session.ServiceTypeServiceFault:
		fault, ferr := session.DecodeServiceFault(buf)
		if ferr != nil {
			result = session.PendingResult{Err: ferr}
			break
		}
		status = fault.Header.ServiceResult
		result = session.PendingResult{Err: fmt.Errorf("%w: %s", ErrServiceFault, status)}
		evtKind = dispatch.KindSndRequestFailed
	}

	_ = c.pending.Complete(msg.RequestID, result)
	sessionID := c.sessionID()
	if status == ua.BadSessionIDInvalid {
		c.closeSessionLocally()
	}
	c.appQueue.Post(dispatch.Event{
		Kind:       evtKind,
		SessionID:  sessionID,
		RequestID:  msg.RequestID,
		StatusCode: status,
		Payload:    msg.Payload,
		Err:        result.Err,
	})
	if status == ua.BadSessionIDInvalid {
		c.appQueue.Post(dispatch.Event{Kind: dispatch.KindClosedSession, SessionID: sessionID, StatusCode: status})
	}
}

// closeSessionLocally implements Spec Section 8's boundary behavior B5: a
// ServiceFault carrying BadSessionIdInvalid means the server has already
// forgotten this session, so the client declares it Closed immediately
// without sending CloseSessionRequest (which would itself only fault the
// same way).
func (c *Client) closeSessionLocally() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (c *Client) handleChannelLost(err error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.DetachChannel()
	}
	c.pending.ScanTimeouts(time.Now().Add(24*time.Hour), err) // force every deadline to have elapsed
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindChannelLost, ChannelID: c.channelID(), Err: err})
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) sessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return 0
	}
	return c.sess.ID()
}

func (c *Client) channelID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return 0
	}
	return c.channel.ID()
}

func (c *Client) newHandle() uint32 {
	return atomic.AddUint32(&c.nextHandle, 1)
}

func (c *Client) header(authToken ua.NodeID, deadline time.Time) ua.RequestHeader {
	return ua.RequestHeader{
		AuthenticationToken: authToken,
		Timestamp:           securechannel.NowTicks(time.Now()),
		RequestHandle:       c.newHandle(),
		TimeoutHint:         uint32(time.Until(deadline).Milliseconds()),
	}
}

// call sends one service request body under typeID, keyed by its own
// RequestHandle for both session-layer correlation and the chunk-layer
// requestId (Spec Section 4.4.2), and blocks until the loop goroutine
// delivers a response, a fault, a timeout, or the channel is lost.
func (c *Client) call(typeID session.ServiceTypeID, body interface {
	Encode(b *ua.Buffer) error
}, handle uint32, deadline time.Time) ([]byte, error) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return nil, ErrNotConnected
	}

	payload, err := session.EncodeServiceBody(typeID, body)
	if err != nil {
		return nil, err
	}
	p, err := c.pending.Register(handle, deadline)
	if err != nil {
		return nil, err
	}
	if err := channel.Send(handle, payload); err != nil {
		c.pending.Cancel(handle)
		return nil, err
	}
	result := <-p.Done
	return result.Payload, result.Err
}

func decodeBody(payload []byte, want session.ServiceTypeID) (*ua.Buffer, error) {
	typeID, buf, err := session.DecodeServiceTypeID(payload)
	if err != nil {
		return nil, err
	}
	if typeID != want {
		return nil, ErrUnexpectedType
	}
	return buf, nil
}

// CreateSession issues a CreateSessionRequest over the open channel (Spec
// Section 4.4.1) and returns the resulting Session, not yet activated.
func (c *Client) CreateSession(deadline time.Time) (*session.Session, error) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return nil, ErrNotConnected
	}

	nonce := make([]byte, sessionNonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	req := session.CreateSessionRequest{
		Header:                  c.header(ua.NodeID{}, deadline),
		ClientNonce:             nonce,
		ClientCertificate:       c.cfg.Channel.ClientCertificate,
		RequestedSessionTimeout: uint32(c.cfg.SessionTimeout.Milliseconds()),
	}
	payload, err := c.call(session.ServiceTypeCreateSessionRequest, req, req.Header.RequestHandle, deadline)
	if err != nil {
		return nil, err
	}
	buf, err := decodeBody(payload, session.ServiceTypeCreateSessionResponse)
	if err != nil {
		return nil, err
	}
	resp, err := session.DecodeCreateSessionResponse(buf)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(session.Config{
		ID:                  resp.SessionID.Numeric,
		AuthenticationToken: resp.AuthenticationToken,
		Channel:             channel,
		Timeout:             time.Duration(resp.RevisedSessionTimeout) * time.Millisecond,
		ServerNonce:         resp.ServerNonce,
		ClientCertificate:   c.cfg.Channel.ClientCertificate,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	return sess, nil
}

// ActivateSession presents a user identity token to bind (or re-bind, on
// reconnect) the session to the currently open channel (Spec Section
// 4.4.5).
func (c *Client) ActivateSession(tokenType securechannel.UserTokenType, identityToken []byte, deadline time.Time) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	req := session.ActivateSessionRequest{
		Header:                c.header(sess.AuthenticationToken(), deadline),
		UserIdentityTokenType: tokenType,
		UserIdentityToken:     identityToken,
	}
	payload, err := c.call(session.ServiceTypeActivateSessionRequest, req, req.Header.RequestHandle, deadline)
	if err != nil {
		c.appQueue.Post(dispatch.Event{Kind: dispatch.KindSessionActivationFailure, SessionID: sess.ID(), Err: err})
		return err
	}
	buf, err := decodeBody(payload, session.ServiceTypeActivateSessionResponse)
	if err != nil {
		c.appQueue.Post(dispatch.Event{Kind: dispatch.KindSessionActivationFailure, SessionID: sess.ID(), Err: err})
		return err
	}
	if _, err := session.DecodeActivateSessionResponse(buf); err != nil {
		return err
	}

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if err := sess.Activate(identityToken, channel); err != nil {
		return err
	}
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindActivatedSession, SessionID: sess.ID()})
	return nil
}

// CloseSession sends CloseSessionRequest and closes the underlying secure
// channel, per Spec Section 5's deadline rule: if the response does not
// arrive in time, the session is declared Closed locally regardless and
// the channel is still torn down.
func (c *Client) CloseSession(deleteSubscriptions bool, deadline time.Time) error {
	c.mu.Lock()
	sess := c.sess
	channel := c.channel
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	req := session.CloseSessionRequest{Header: c.header(sess.AuthenticationToken(), deadline), DeleteSubscriptions: deleteSubscriptions}
	_, err := c.call(session.ServiceTypeCloseSessionRequest, req, req.Header.RequestHandle, deadline)
	sess.Close()
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindClosedSession, SessionID: sess.ID(), Err: err})

	if channel != nil {
		return channel.SendClose(c.newHandle())
	}
	return err
}

// GetEndpoints queries the server's available endpoints without an open
// session (Spec Section 4.4.4: discovery is routed outside session
// treatment), but does require an already-open secure channel in this
// core — a bare TCP-only discovery path is out of scope (Spec Section 1).
func (c *Client) GetEndpoints(endpointURL string, deadline time.Time) ([]EndpointDescription, error) {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return nil, ErrNotConnected
	}

	req := GetEndpointsRequest{Header: c.header(ua.NodeID{}, deadline), EndpointURL: endpointURL}
	payload, err := c.call(ServiceTypeGetEndpointsRequest, req, req.Header.RequestHandle, deadline)
	if err != nil {
		c.appQueue.Post(dispatch.Event{Kind: dispatch.KindSndRequestFailed, Err: err})
		return nil, err
	}
	buf, err := decodeBody(payload, ServiceTypeGetEndpointsResponse)
	if err != nil {
		return nil, err
	}
	resp, err := decodeGetEndpointsResponse(buf)
	if err != nil {
		return nil, err
	}
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindRcvDiscoveryResponse, Payload: resp})
	return resp.Endpoints, nil
}

// SendRequest is the generic path for any application service request
// that is not session treatment or discovery (Read/Write/Browse/Publish/
// CreateSubscription/MonitoredItems and whatever else a ServiceHandler
// exposes on the server side): the caller supplies the service type id
// and already-encoded body, and gets back the raw response payload to
// decode itself.
//
// A request made with no active session never fails silently: Spec
// Section 9's decision for the async send-on-session path is that the
// caller must observe a SndRequestFailed(BadSessionIdInvalid) event, not
// just a dropped request, so this posts one to appQueue in addition to
// returning ErrNoSession to the synchronous caller.
func (c *Client) SendRequest(typeID session.ServiceTypeID, body interface {
	Encode(b *ua.Buffer) error
}, deadline time.Time) ([]byte, error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		c.appQueue.Post(dispatch.Event{Kind: dispatch.KindSndRequestFailed, StatusCode: ua.BadSessionIDInvalid, Err: ErrNoSession})
		return nil, ErrNoSession
	}
	handle := c.newHandle()
	return c.call(typeID, body, handle, deadline)
}

// Reconnect dials a fresh connection, opens a new secure channel, and
// re-activates the existing session onto it (Spec Section 4.4.1's
// orphaned-session reactivation, driven here from the client/session
// side rather than waited-for from the server).
func (c *Client) Reconnect(tokenType securechannel.UserTokenType, identityToken []byte, deadline time.Time) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	if err := c.dialAndOpen(deadline); err != nil {
		return err
	}
	c.startLoop()
	c.appQueue.Post(dispatch.Event{Kind: dispatch.KindSessionReactivating, SessionID: sess.ID()})
	return c.ActivateSession(tokenType, identityToken, deadline)
}

// Close tears down the receive loop, the secure channel, and the
// application queue. It does not send CloseSessionRequest; call
// CloseSession first for a graceful teardown.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closeCh := c.closeCh
	channel := c.channel
	c.mu.Unlock()

	if closeCh != nil {
		close(closeCh)
	}
	c.wg.Wait()
	c.appQueue.Close()
	if channel != nil {
		return channel.Close()
	}
	return nil
}
