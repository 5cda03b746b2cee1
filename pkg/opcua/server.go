package opcua

import (
	"crypto/rand"
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

// serverNonceLength matches the secure channel's own nonce size; the
// session layer's nonce is otherwise unrelated to channel key material.
const serverNonceLength = 32

// ServerConfig configures a Server's listener and the single endpoint it
// serves. A production multi-policy listener would pick among
// Endpoint.SecurityPolicies per incoming OPN request; this core always
// opens new channels under SecurityPolicies[0] (its first configured
// Modes[0]), since securechannel.SecureChannel's policy/mode are fixed at
// construction, before the first chunk off the wire can be inspected —
// supporting more than one live policy per listener would need
// SecureChannel itself to defer that choice, which is out of scope here.
type ServerConfig struct {
	ListenAddr string
	Endpoint   securechannel.EndpointConfig

	Limits         uatcp.Limits
	SessionTimeout time.Duration
	MaxSessions    int

	// Handler answers every application service request that is neither
	// session treatment (Create/Activate/CloseSession) nor discovery
	// (GetEndpoints). A nil Handler makes every such request fail with
	// BadUnexpectedError.
	Handler ServiceHandler

	// Discovery answers GetEndpointsRequest. A nil Discovery makes
	// GetEndpoints fail the same way.
	Discovery DiscoveryHandler

	LoggerFactory logging.LoggerFactory

	// OnEvent receives every application-facing event this server emits
	// (Spec Section 6.3), delivered in order by a single dedicated
	// consumer goroutine (pkg/dispatch.AppQueue).
	OnEvent func(dispatch.Event)
}

// Server is the composition root for the server role: one uatcp.Listener,
// a session.Table shared across every channel so a session can re-bind
// onto a fresh connection after its old one is lost (Spec Section
// 4.4.1), and one goroutine per accepted connection that owns that
// connection's SecureChannel for its whole lifetime — the same
// single-consumer-per-connection discipline Client uses, generalized to
// many concurrent connections instead of one (Spec Section 5).
type Server struct {
	cfg ServerConfig
	log logging.LeveledLogger

	listener *uatcp.Listener
	sessions *session.Table
	appQueue *dispatch.AppQueue

	nextChannelID uint32

	mu     sync.Mutex
	conns  map[*uatcp.Conn]struct{}
	closed bool
}

// NewServer constructs a Server. Start must be called to begin accepting
// connections.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: session.NewTable(cfg.MaxSessions),
		appQueue: dispatch.NewAppQueue(cfg.OnEvent),
		conns:    make(map[*uatcp.Conn]struct{}),
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("opcua-server")
	}
	return s
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	listener, err := uatcp.NewListener(uatcp.ListenerConfig{
		ListenAddr:    s.cfg.ListenAddr,
		Local:         limitsOrDefault(s.cfg.Limits),
		Handler:       s.handleConn,
		LoggerFactory: s.cfg.LoggerFactory,
	})
	if err != nil {
		return err
	}
	s.listener = listener
	return listener.Start()
}

// LocalAddr returns the address the listener is bound to.
func (s *Server) LocalAddr() net.Addr {
	return s.listener.LocalAddr()
}

// Stop closes every accepted connection (unblocking each connection's
// receive loop) and then stops the listener: Listener.Stop waits for every
// AcceptHandler call, and so every connLoop, to return, but does not
// close those connections itself.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*uatcp.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	err := s.listener.Stop()
	s.appQueue.Close()
	return err
}

func (s *Server) trackConn(c *uatcp.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrackConn(c *uatcp.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// handleConn is the uatcp.AcceptHandler bound to the listener: it picks a
// security policy, runs the server side of the OPN handshake, and then
// owns channel and conn for the connection's entire lifetime.
func (s *Server) handleConn(conn *uatcp.Conn, endpointURL string) {
	if !s.trackConn(conn) {
		conn.Close()
		return
	}
	defer s.untrackConn(conn)
	defer conn.Close()

	if len(s.cfg.Endpoint.SecurityPolicies) == 0 || len(s.cfg.Endpoint.SecurityPolicies[0].Modes) == 0 {
		return
	}
	policy := s.cfg.Endpoint.SecurityPolicies[0]
	mode := policy.Modes[0]

	channelID := atomic.AddUint32(&s.nextChannelID, 1)
	channel, err := securechannel.NewServerChannel(channelID, &s.cfg.Endpoint, policy, mode, conn, conn.Limits, s.cfg.LoggerFactory)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("failed to construct channel for %s: %v", conn.RemoteAddr(), err)
		}
		return
	}
	if err := channel.Accept(); err != nil {
		if s.log != nil {
			s.log.Warnf("OPN handshake with %s failed: %v", conn.RemoteAddr(), err)
		}
		return
	}
	s.appQueue.Post(dispatch.Event{Kind: dispatch.KindChannelConnected, ChannelID: channelID})

	bound := make(map[uint32]*session.Session)
	s.connLoop(channel, conn, channelID, bound)

	for _, sess := range bound {
		sess.DetachChannel()
	}
	s.appQueue.Post(dispatch.Event{Kind: dispatch.KindClosedEndpoint, ChannelID: channelID})
}

// connLoop is this connection's single consumer goroutine: it alternates
// between servicing inbound MSG chunks (routed to session treatment,
// discovery, or the generic ServiceHandler) and, whenever a read times
// out, dropping any previous token whose overlap window has elapsed
// (Spec Section 4.4.3's timer-wheel tick, folded into this loop the same
// way Client's loop folds in its own renewal servicing — the difference
// here is the server never initiates a renewal itself, it only ever
// reacts to one arriving as an OPN chunk via handleOpenFrame, already
// wired into SecureChannel.Receive).
func (s *Server) connLoop(channel *securechannel.SecureChannel, conn *uatcp.Conn, channelID uint32, bound map[uint32]*session.Session) {
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		msg, _, err := channel.Receive(time.Now())
		if err != nil {
			if isTimeout(err) {
				channel.CompleteRenewTick(time.Now())
				continue
			}
			return
		}
		if msg == nil {
			continue
		}
		s.route(channel, channelID, bound, *msg)
	}
}

func (s *Server) route(channel *securechannel.SecureChannel, channelID uint32, bound map[uint32]*session.Session, msg securechannel.DecodedMessage) {
	typeID, buf, err := session.DecodeServiceTypeID(msg.Payload)
	if err != nil {
		s.fault(channel, msg.RequestID, 0, ua.BadDecodingError)
		return
	}
	body, err := buf.Read(buf.Remaining())
	if err != nil {
		s.fault(channel, msg.RequestID, 0, ua.BadDecodingError)
		return
	}

	switch typeID {
	case session.ServiceTypeCreateSessionRequest:
		s.handleCreateSession(channel, channelID, bound, msg.RequestID, body)
	case session.ServiceTypeActivateSessionRequest:
		s.handleActivateSession(channel, bound, msg.RequestID, body)
	case session.ServiceTypeCloseSessionRequest:
		s.handleCloseSession(channel, bound, msg.RequestID, body)
	case ServiceTypeGetEndpointsRequest:
		s.handleDiscovery(channel, msg.RequestID, body)
	default:
		s.handleService(channel, typeID, msg.RequestID, body)
	}
}

func (s *Server) handleCreateSession(channel *securechannel.SecureChannel, channelID uint32, bound map[uint32]*session.Session, requestID uint32, body []byte) {
	req, err := session.DecodeCreateSessionRequest(ua.NewBufferFromBytes(body))
	if err != nil {
		s.fault(channel, requestID, 0, ua.BadDecodingError)
		return
	}

	id, err := s.sessions.AllocateID()
	if err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadTcpNotEnoughResources)
		return
	}
	tokenBytes := make([]byte, 16)
	if _, err := rand.Read(tokenBytes); err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadUnexpectedError)
		return
	}
	authToken := ua.NodeID{Kind: ua.NodeIDKindByteString, ByteStringID: tokenBytes}
	serverNonce := make([]byte, serverNonceLength)
	if _, err := rand.Read(serverNonce); err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadUnexpectedError)
		return
	}

	timeout := s.cfg.SessionTimeout
	if req.RequestedSessionTimeout > 0 {
		timeout = time.Duration(req.RequestedSessionTimeout) * time.Millisecond
	}
	sess, err := session.New(session.Config{
		ID:                  id,
		AuthenticationToken: authToken,
		Channel:             channel,
		Timeout:             timeout,
		ServerNonce:         serverNonce,
		ClientCertificate:   req.ClientCertificate,
	})
	if err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadUnexpectedError)
		return
	}
	if err := s.sessions.Add(sess); err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadTcpNotEnoughResources)
		return
	}
	bound[id] = sess

	resp := session.CreateSessionResponse{
		Header:                okHeader(req.Header.RequestHandle),
		SessionID:             ua.NewNumericNodeID(1, id),
		AuthenticationToken:   authToken,
		RevisedSessionTimeout: uint32(timeout.Milliseconds()),
		ServerNonce:           serverNonce,
		ServerCertificate:     s.cfg.Endpoint.ServerCertificate,
	}
	s.respond(channel, requestID, session.ServiceTypeCreateSessionResponse, resp)
}

func (s *Server) handleActivateSession(channel *securechannel.SecureChannel, bound map[uint32]*session.Session, requestID uint32, body []byte) {
	req, err := session.DecodeActivateSessionRequest(ua.NewBufferFromBytes(body))
	if err != nil {
		s.fault(channel, requestID, 0, ua.BadDecodingError)
		return
	}
	sess := s.sessions.FindByToken(req.Header.AuthenticationToken)
	if sess == nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadSessionIDInvalid)
		return
	}

	policy, ok := findUserTokenPolicy(s.cfg.Endpoint.SecurityPolicies[0].UserTokenPolicies, req.UserIdentityTokenType)
	if !ok {
		s.appQueue.Post(dispatch.Event{Kind: dispatch.KindSessionActivationFailure, SessionID: sess.ID(), StatusCode: ua.BadIdentityTokenRejected})
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadIdentityTokenRejected)
		return
	}
	identity, err := decodeIdentityToken(req.UserIdentityTokenType, req.UserIdentityToken)
	if err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadDecodingError)
		return
	}
	if s.cfg.Endpoint.AuthenticationMgr == nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadIdentityTokenRejected)
		return
	}
	result, err := s.cfg.Endpoint.AuthenticationMgr.ValidateUserIdentity(policy, identity)
	if err != nil || result != securechannel.AuthOk {
		code := mapAuthResult(result)
		s.appQueue.Post(dispatch.Event{Kind: dispatch.KindSessionActivationFailure, SessionID: sess.ID(), StatusCode: code})
		s.fault(channel, requestID, req.Header.RequestHandle, code)
		return
	}

	if err := sess.Activate(identity, channel); err != nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadInvalidState)
		return
	}
	bound[sess.ID()] = sess

	serverNonce := make([]byte, serverNonceLength)
	rand.Read(serverNonce)
	resp := session.ActivateSessionResponse{Header: okHeader(req.Header.RequestHandle), ServerNonce: serverNonce}
	s.respond(channel, requestID, session.ServiceTypeActivateSessionResponse, resp)
	s.appQueue.Post(dispatch.Event{Kind: dispatch.KindActivatedSession, SessionID: sess.ID()})
}

func (s *Server) handleCloseSession(channel *securechannel.SecureChannel, bound map[uint32]*session.Session, requestID uint32, body []byte) {
	req, err := session.DecodeCloseSessionRequest(ua.NewBufferFromBytes(body))
	if err != nil {
		s.fault(channel, requestID, 0, ua.BadDecodingError)
		return
	}
	sess := s.sessions.FindByToken(req.Header.AuthenticationToken)
	if sess == nil {
		s.fault(channel, requestID, req.Header.RequestHandle, ua.BadSessionIDInvalid)
		return
	}

	sess.Close()
	s.sessions.Remove(sess.ID())
	delete(bound, sess.ID())

	resp := session.CloseSessionResponse{Header: okHeader(req.Header.RequestHandle)}
	s.respond(channel, requestID, session.ServiceTypeCloseSessionResponse, resp)
	s.appQueue.Post(dispatch.Event{Kind: dispatch.KindClosedSession, SessionID: sess.ID()})
}

func (s *Server) handleDiscovery(channel *securechannel.SecureChannel, requestID uint32, body []byte) {
	if s.cfg.Discovery == nil {
		s.fault(channel, requestID, 0, ua.BadUnexpectedError)
		return
	}
	respBody, err := s.cfg.Discovery.GetEndpoints(body)
	if err != nil {
		s.fault(channel, requestID, 0, ua.BadUnexpectedError)
		return
	}
	if err := channel.Send(requestID, respBody); err != nil && s.log != nil {
		s.log.Warnf("failed to send GetEndpoints response: %v", err)
	}
}

// handleService routes everything that is neither session treatment nor
// discovery to the embedding application's ServiceHandler (Spec Section
// 4.4.4's session-service path). The caller's identity, when a session is
// already activated on this channel, is resolved from the request's
// embedded RequestHeader.AuthenticationToken and handed to Handler so it
// can apply its own authorization without this core needing to model
// per-service operation/attribute semantics itself.
func (s *Server) handleService(channel *securechannel.SecureChannel, typeID session.ServiceTypeID, requestID uint32, body []byte) {
	if s.cfg.Handler == nil {
		s.fault(channel, requestID, 0, ua.BadUnexpectedError)
		return
	}
	var user any
	if hdr, err := ua.DecodeRequestHeader(ua.NewBufferFromBytes(body)); err == nil {
		if sess := s.sessions.FindByToken(hdr.AuthenticationToken); sess != nil {
			sess.Touch(time.Now())
			user = sess.UserIdentity()
		}
	}
	respBody, err := s.cfg.Handler.Handle(uint32(typeID), body, user)
	if err != nil {
		s.fault(channel, requestID, 0, ua.BadUnexpectedError)
		return
	}
	if err := channel.Send(requestID, respBody); err != nil && s.log != nil {
		s.log.Warnf("failed to send service response: %v", err)
	}
	s.appQueue.Post(dispatch.Event{Kind: dispatch.KindLocalServiceResponse, RequestID: requestID})
}

func (s *Server) respond(channel *securechannel.SecureChannel, requestID uint32, typeID session.ServiceTypeID, body interface {
	Encode(b *ua.Buffer) error
}) {
	payload, err := session.EncodeServiceBody(typeID, body)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("failed to encode response: %v", err)
		}
		return
	}
	if err := channel.Send(requestID, payload); err != nil && s.log != nil {
		s.log.Warnf("failed to send response: %v", err)
	}
}

func (s *Server) fault(channel *securechannel.SecureChannel, requestID, requestHandle uint32, code ua.StatusCode) {
	fault := session.ServiceFault{Header: ua.ResponseHeader{
		Timestamp:     securechannel.NowTicks(time.Now()),
		RequestHandle: requestHandle,
		ServiceResult: code,
	}}
	payload, err := session.EncodeServiceBody(session.ServiceTypeServiceFault, fault)
	if err != nil {
		return
	}
	channel.Send(requestID, payload)
}

func okHeader(requestHandle uint32) ua.ResponseHeader {
	return ua.ResponseHeader{
		Timestamp:     securechannel.NowTicks(time.Now()),
		RequestHandle: requestHandle,
		ServiceResult: ua.Good,
	}
}
