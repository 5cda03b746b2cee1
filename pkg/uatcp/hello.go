package uatcp

import "github.com/uasc/opcua-sc/pkg/ua"

// ReceiveBufferFloor is the hard minimum receiveBufferSize a HEL/ACK may
// advertise (Spec Section 4.2, Boundary B1).
const ReceiveBufferFloor uint32 = 8192

// Hello is the client's opening message on a new TCP connection (Spec
// Section 6.1).
type Hello struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
	EndpointURL       string
}

// Validate checks the floor on ReceiveBufferSize (B1). SendBufferSize has
// no floor of its own in the spec text but is conventionally held to the
// same value by well-behaved peers; this implementation does not enforce
// that beyond what Limits.Negotiate already clamps to.
func (h Hello) Validate() error {
	if h.ReceiveBufferSize < ReceiveBufferFloor {
		return ErrBufferSizeTooSmall
	}
	return nil
}

// Encode writes the Hello body (not including the chunk header).
func (h Hello) Encode(b *ua.Buffer) error {
	for _, v := range []uint32{h.ProtocolVersion, h.ReceiveBufferSize, h.SendBufferSize, h.MaxMessageSize, h.MaxChunkCount} {
		if err := ua.PutUint32(b, v); err != nil {
			return err
		}
	}
	return ua.PutString(b, h.EndpointURL)
}

// DecodeHello reads a Hello body.
func DecodeHello(b *ua.Buffer) (Hello, error) {
	var h Hello
	var err error
	if h.ProtocolVersion, err = ua.GetUint32(b); err != nil {
		return Hello{}, err
	}
	if h.ReceiveBufferSize, err = ua.GetUint32(b); err != nil {
		return Hello{}, err
	}
	if h.SendBufferSize, err = ua.GetUint32(b); err != nil {
		return Hello{}, err
	}
	if h.MaxMessageSize, err = ua.GetUint32(b); err != nil {
		return Hello{}, err
	}
	if h.MaxChunkCount, err = ua.GetUint32(b); err != nil {
		return Hello{}, err
	}
	if h.EndpointURL, err = ua.GetString(b); err != nil {
		return Hello{}, err
	}
	return h, nil
}

// Acknowledge is the server's reply to Hello: the same four limits, minus
// the endpoint URL (Spec Section 6.1).
type Acknowledge struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

func (a Acknowledge) Encode(b *ua.Buffer) error {
	for _, v := range []uint32{a.ProtocolVersion, a.ReceiveBufferSize, a.SendBufferSize, a.MaxMessageSize, a.MaxChunkCount} {
		if err := ua.PutUint32(b, v); err != nil {
			return err
		}
	}
	return nil
}

func DecodeAcknowledge(b *ua.Buffer) (Acknowledge, error) {
	var a Acknowledge
	var err error
	if a.ProtocolVersion, err = ua.GetUint32(b); err != nil {
		return Acknowledge{}, err
	}
	if a.ReceiveBufferSize, err = ua.GetUint32(b); err != nil {
		return Acknowledge{}, err
	}
	if a.SendBufferSize, err = ua.GetUint32(b); err != nil {
		return Acknowledge{}, err
	}
	if a.MaxMessageSize, err = ua.GetUint32(b); err != nil {
		return Acknowledge{}, err
	}
	if a.MaxChunkCount, err = ua.GetUint32(b); err != nil {
		return Acknowledge{}, err
	}
	return a, nil
}

// ErrorMessage is the ERR message body: a StatusCode plus a human-readable
// reason, always followed by the peer closing the TCP connection.
type ErrorMessage struct {
	Error  ua.StatusCode
	Reason string
}

func (e ErrorMessage) Encode(b *ua.Buffer) error {
	if err := ua.PutUint32(b, uint32(e.Error)); err != nil {
		return err
	}
	return ua.PutString(b, e.Reason)
}

func DecodeErrorMessage(b *ua.Buffer) (ErrorMessage, error) {
	code, err := ua.GetUint32(b)
	if err != nil {
		return ErrorMessage{}, err
	}
	reason, err := ua.GetString(b)
	if err != nil {
		return ErrorMessage{}, err
	}
	return ErrorMessage{Error: ua.StatusCode(code), Reason: reason}, nil
}

// Limits holds the four negotiated transport parameters, after taking the
// pairwise minimum of the HEL and ACK values (Spec Section 4.2).
type Limits struct {
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

// Negotiate computes the effective transport parameters as the pairwise
// minimum of the local and peer limits. A zero MaxMessageSize or
// MaxChunkCount on either side means "unbounded" and is excluded from the
// min (treated as +Inf), matching common server configuration practice.
func Negotiate(local, peer Limits) Limits {
	return Limits{
		ReceiveBufferSize: minNonZero(local.ReceiveBufferSize, peer.ReceiveBufferSize),
		SendBufferSize:    minNonZero(local.SendBufferSize, peer.SendBufferSize),
		MaxMessageSize:    minUnbounded(local.MaxMessageSize, peer.MaxMessageSize),
		MaxChunkCount:     minUnbounded(local.MaxChunkCount, peer.MaxChunkCount),
	}
}

func minNonZero(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func minUnbounded(a, b uint32) uint32 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
