package uatcp

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/uasc/opcua-sc/pkg/ua"
)

// Conn wraps a single TCP connection after the HEL/ACK handshake has
// completed, providing whole-chunk read/write. It knows the chunk framing
// (Section 6.1) but nothing about security; OPN/MSG/CLO bodies pass
// through it opaquely for the secure-channel layer to sign/encrypt or
// verify/decrypt.
//
// Conn is built the way the teacher's transport.tcpConn wraps net.Conn
// with a dedicated reader/writer pair, except chunk framing here is
// self-delimiting (the 4-byte messageSize in the common header) rather
// than a separate length-prefix layer.
type Conn struct {
	conn   net.Conn
	log    logging.LeveledLogger
	Limits Limits

	writeMu sync.Mutex
}

// Dial opens a TCP connection to addr, performs the client side of the
// HEL/ACK handshake, and returns a Conn ready for chunked I/O with Limits
// set to the negotiated (pairwise-minimum) values.
func Dial(addr, endpointURL string, local Limits, loggerFactory logging.LoggerFactory) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return DialConn(nc, endpointURL, local, loggerFactory)
}

// DialConn performs the client side of the HEL/ACK handshake over an
// already-established net.Conn, for callers that obtain their connection
// some other way than Dial's net.Dial (a test pipe, a pre-accepted
// listener socket being repurposed as a client, etc).
func DialConn(nc net.Conn, endpointURL string, local Limits, loggerFactory logging.LoggerFactory) (*Conn, error) {
	c := newConn(nc, loggerFactory)

	hello := Hello{
		ProtocolVersion:   0,
		ReceiveBufferSize: local.ReceiveBufferSize,
		SendBufferSize:    local.SendBufferSize,
		MaxMessageSize:    local.MaxMessageSize,
		MaxChunkCount:     local.MaxChunkCount,
		EndpointURL:       endpointURL,
	}
	if err := hello.Validate(); err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.writeHello(hello); err != nil {
		nc.Close()
		return nil, err
	}

	ch, body, err := c.readRawChunk()
	if err != nil {
		nc.Close()
		return nil, err
	}
	if ch.MessageType != MessageTypeAcknowledge {
		if ch.MessageType == MessageTypeError {
			em, _ := DecodeErrorMessage(ua.NewBufferFromBytes(body))
			nc.Close()
			return nil, &PeerError{Code: em.Error, Reason: em.Reason}
		}
		nc.Close()
		return nil, ErrHelloExpected
	}
	ack, err := DecodeAcknowledge(ua.NewBufferFromBytes(body))
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.Limits = Negotiate(local, Limits{
		ReceiveBufferSize: ack.ReceiveBufferSize,
		SendBufferSize:    ack.SendBufferSize,
		MaxMessageSize:    ack.MaxMessageSize,
		MaxChunkCount:     ack.MaxChunkCount,
	})
	if c.log != nil {
		c.log.Infof("handshake complete, negotiated limits: %+v", c.Limits)
	}
	return c, nil
}

// Accept performs the server side of the HEL/ACK handshake over an
// already-accepted net.Conn and returns a Conn plus the endpoint URL the
// client requested.
func Accept(nc net.Conn, local Limits, loggerFactory logging.LoggerFactory) (*Conn, string, error) {
	c := newConn(nc, loggerFactory)

	ch, body, err := c.readRawChunk()
	if err != nil {
		nc.Close()
		return nil, "", err
	}
	if ch.MessageType != MessageTypeHello {
		nc.Close()
		return nil, "", ErrHelloExpected
	}
	hello, err := DecodeHello(ua.NewBufferFromBytes(body))
	if err != nil {
		nc.Close()
		return nil, "", err
	}
	if err := hello.Validate(); err != nil {
		c.writeError(ErrorMessage{Error: ua.BadTcpEndpointUrlInvalid, Reason: err.Error()})
		nc.Close()
		return nil, "", err
	}

	c.Limits = Negotiate(local, Limits{
		ReceiveBufferSize: hello.ReceiveBufferSize,
		SendBufferSize:    hello.SendBufferSize,
		MaxMessageSize:    hello.MaxMessageSize,
		MaxChunkCount:     hello.MaxChunkCount,
	})

	ack := Acknowledge{
		ProtocolVersion:   0,
		ReceiveBufferSize: c.Limits.ReceiveBufferSize,
		SendBufferSize:    c.Limits.SendBufferSize,
		MaxMessageSize:    c.Limits.MaxMessageSize,
		MaxChunkCount:     c.Limits.MaxChunkCount,
	}
	if err := c.writeAcknowledge(ack); err != nil {
		nc.Close()
		return nil, "", err
	}
	if c.log != nil {
		c.log.Infof("accepted connection from %s, endpoint %q", nc.RemoteAddr(), hello.EndpointURL)
	}
	return c, hello.EndpointURL, nil
}

func newConn(nc net.Conn, loggerFactory logging.LoggerFactory) *Conn {
	c := &Conn{conn: nc}
	if loggerFactory != nil {
		c.log = loggerFactory.NewLogger("uatcp")
	}
	return c
}

// PeerError wraps an ERR message received from the peer.
type PeerError struct {
	Code   ua.StatusCode
	Reason string
}

func (e *PeerError) Error() string {
	if e.Reason == "" {
		return "uatcp: peer error " + e.Code.String()
	}
	return "uatcp: peer error " + e.Code.String() + ": " + e.Reason
}

func (c *Conn) writeHello(h Hello) error {
	b := ua.NewGrowableBuffer(256, int(h.ReceiveBufferSize))
	b.SetPosition(CommonHeaderSize)
	if err := h.Encode(b); err != nil {
		return err
	}
	return c.writeWithHeader(MessageTypeHello, b)
}

func (c *Conn) writeAcknowledge(a Acknowledge) error {
	b := ua.NewGrowableBuffer(64, 64)
	b.SetPosition(CommonHeaderSize)
	if err := a.Encode(b); err != nil {
		return err
	}
	return c.writeWithHeader(MessageTypeAcknowledge, b)
}

// writeError sends an ERR chunk and then closes the underlying connection,
// per Section 6.1: ERR is always immediately followed by a TCP close.
func (c *Conn) writeError(em ErrorMessage) error {
	b := ua.NewGrowableBuffer(256, 65536)
	b.SetPosition(CommonHeaderSize)
	if err := em.Encode(b); err != nil {
		return err
	}
	err := c.writeWithHeader(MessageTypeError, b)
	c.conn.Close()
	return err
}

// writeWithHeader fills in the common header (messageSize now known) ahead
// of the body already written into b starting at CommonHeaderSize, then
// writes the whole buffer to the wire in one call.
func (c *Conn) writeWithHeader(mt MessageType, b *ua.Buffer) error {
	total := b.Length()
	full := ua.NewFixedBuffer(total)
	hdr := CommonHeader{MessageType: mt, ChunkType: ChunkFinal, MessageSize: uint32(total)}
	if err := hdr.Encode(full); err != nil {
		return err
	}
	if _, err := full.Write(b.Bytes()[CommonHeaderSize:]); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(full.Bytes())
	return err
}

// WriteChunk writes one already-framed chunk (header plus body) as a
// single wire write. body must already include everything after the
// 8-byte common header (channel id, security header, sequence header,
// payload, padding, signature).
func (c *Conn) WriteChunk(mt MessageType, ct ChunkType, body []byte) error {
	total := CommonHeaderSize + len(body)
	if c.Limits.MaxMessageSize != 0 && uint32(total) > c.Limits.MaxMessageSize {
		return ErrMessageSizeExceeded
	}
	full := ua.NewFixedBuffer(total)
	hdr := CommonHeader{MessageType: mt, ChunkType: ct, MessageSize: uint32(total)}
	if err := hdr.Encode(full); err != nil {
		return err
	}
	if _, err := full.Write(body); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(full.Bytes())
	return err
}

// readRawChunk reads one complete chunk (header plus body) off the wire.
// It serves the HEL/ACK/ERR handshake directly and every OPN/MSG/CLO
// chunk through ReadChunk below; it does no reassembly.
func (c *Conn) readRawChunk() (CommonHeader, []byte, error) {
	hdrBuf := make([]byte, CommonHeaderSize)
	if _, err := io.ReadFull(c.conn, hdrBuf); err != nil {
		return CommonHeader{}, nil, err
	}
	ch, err := DecodeCommonHeader(ua.NewBufferFromBytes(hdrBuf))
	if err != nil {
		return CommonHeader{}, nil, err
	}
	if ch.MessageSize < CommonHeaderSize {
		return CommonHeader{}, nil, ErrMessageTooShort
	}
	body := make([]byte, ch.MessageSize-CommonHeaderSize)
	if len(body) > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return CommonHeader{}, nil, err
		}
	}
	return ch, body, nil
}

// ReadChunk reads one chunk off the wire and returns its header and body
// (everything after the common header). Callers are expected to be the
// secure-channel layer's single receive goroutine per connection.
func (c *Conn) ReadChunk() (CommonHeader, []byte, error) {
	return c.readRawChunk()
}

// WriteRawFrame writes a fully pre-rendered chunk (including its common
// header) to the wire as a single call. The secure-channel layer uses
// this instead of WriteChunk when its signature must cover the common
// header too (Spec Section 4.3.2: "sign from start-of-chunk").
func (c *Conn) WriteRawFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetReadDeadline arms (or clears, with a zero t) a read deadline on the
// underlying connection, so a caller's single receive loop can wake up
// periodically to service other duties (renewal checks, timeout scans)
// between inbound chunks instead of blocking on ReadChunk indefinitely.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
