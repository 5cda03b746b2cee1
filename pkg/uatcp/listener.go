package uatcp

import (
	"net"
	"sync"

	"github.com/pion/logging"
)

// AcceptHandler is invoked once per incoming connection, after the HEL/ACK
// handshake has completed, with the negotiated Conn and the endpoint URL
// the client requested. It is called on its own goroutine per connection,
// mirroring the teacher's transport.TCP.handleConn model.
type AcceptHandler func(c *Conn, endpointURL string)

// Listener accepts incoming TCP connections, performs the server side of
// the HEL/ACK handshake on each, and hands the resulting Conn to an
// AcceptHandler. It owns no chunk or security logic beyond the handshake;
// everything past ACK is the caller's responsibility (typically a
// securechannel.Manager).
type Listener struct {
	listener net.Listener
	local    Limits
	handler  AcceptHandler
	log      logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Listener is a pre-existing net.Listener to use (e.g. net.Pipe-backed
	// for tests). If nil, ListenAddr is used to create one.
	Listener net.Listener

	// ListenAddr is the TCP address to listen on, e.g. ":4840". Ignored if
	// Listener is set.
	ListenAddr string

	// Local is this endpoint's transport limits, offered in every ACK.
	Local Limits

	// Handler receives each successfully negotiated connection. Required.
	Handler AcceptHandler

	LoggerFactory logging.LoggerFactory
}

// NewListener creates a Listener from config, opening a TCP socket if
// config.Listener is nil.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	l := &Listener{
		listener: config.Listener,
		local:    config.Local,
		handler:  config.Handler,
		closeCh:  make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("uatcp-listener")
	}

	if l.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		l.listener = ln
	}
	return l, nil
}

// Start begins accepting connections on a background goroutine.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	if l.log != nil {
		l.log.Infof("listening for OPC UA TCP connections on %s", l.listener.Addr())
	}

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Stop closes the listener and waits for the accept loop and every
// per-connection goroutine to return, including AcceptHandler calls still
// running. It does not close connections already handed to the
// AcceptHandler, so a handler blocked on its connection keeps Stop waiting
// until the caller closes that connection.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.closeCh)
	l.listener.Close()
	l.wg.Wait()
	return nil
}

// LocalAddr returns the address the listener is bound to.
func (l *Listener) LocalAddr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		nc, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
				continue
			}
		}

		l.wg.Add(1)
		go l.handshakeAndDispatch(nc)
	}
}

func (l *Listener) handshakeAndDispatch(nc net.Conn) {
	defer l.wg.Done()

	var loggerFactory logging.LoggerFactory
	if l.log != nil {
		loggerFactory = handshakeLoggerFactory{log: l.log}
	}

	c, endpointURL, err := Accept(nc, l.local, loggerFactory)
	if err != nil {
		if l.log != nil {
			l.log.Warnf("handshake with %s failed: %v", nc.RemoteAddr(), err)
		}
		return
	}
	l.handler(c, endpointURL)
}

// handshakeLoggerFactory adapts a single already-resolved LeveledLogger so
// Accept's per-connection logger calls land on the listener's own logger
// without each connection minting its own scope name.
type handshakeLoggerFactory struct {
	log logging.LeveledLogger
}

func (f handshakeLoggerFactory) NewLogger(string) logging.LeveledLogger { return f.log }
