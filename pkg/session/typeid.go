package session

import "github.com/uasc/opcua-sc/pkg/ua"

// ServiceTypeID is the numeric (namespace-0) discriminator this core
// writes ahead of every session-service body inside a MSG chunk's
// payload, mirroring the real wire's "NodeId expanded-id of the
// encodeable type" prefix (Spec Section 6.1) without pulling in the full
// address-space/node-class model that real type id belongs to — this
// core only ever needs to tell its own half-dozen service bodies apart.
type ServiceTypeID uint32

const (
	ServiceTypeCreateSessionRequest ServiceTypeID = iota + 1
	ServiceTypeCreateSessionResponse
	ServiceTypeActivateSessionRequest
	ServiceTypeActivateSessionResponse
	ServiceTypeCloseSessionRequest
	ServiceTypeCloseSessionResponse
	ServiceTypeServiceFault
)

// encodable is satisfied by every *Request/*Response body in messages.go
// and by ServiceFault below.
type encodable interface {
	Encode(b *ua.Buffer) error
}

// EncodeServiceBody writes typeID's discriminator NodeId followed by
// body's own encoding, producing the payload handed to
// securechannel.SecureChannel.Send.
func EncodeServiceBody(typeID ServiceTypeID, body encodable) ([]byte, error) {
	b := ua.NewGrowableBuffer(64, 1<<20)
	typeNode := ua.NewNumericNodeID(0, uint32(typeID))
	if err := typeNode.Encode(b); err != nil {
		return nil, err
	}
	if err := body.Encode(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeServiceTypeID reads the leading discriminator NodeId off payload
// and returns it along with a Buffer positioned at the start of the body
// that follows, ready for the matching DecodeXxx call.
func DecodeServiceTypeID(payload []byte) (ServiceTypeID, *ua.Buffer, error) {
	b := ua.NewBufferFromBytes(payload)
	id, err := ua.DecodeNodeID(b)
	if err != nil {
		return 0, nil, err
	}
	return ServiceTypeID(id.Numeric), b, nil
}

// ServiceFault is sent in place of a service response when a request
// could not be processed (Spec Section 4.4.2 step 2).
type ServiceFault struct {
	Header ua.ResponseHeader
}

func (f ServiceFault) Encode(b *ua.Buffer) error { return f.Header.Encode(b) }

func DecodeServiceFault(b *ua.Buffer) (ServiceFault, error) {
	h, err := ua.DecodeResponseHeader(b)
	if err != nil {
		return ServiceFault{}, err
	}
	return ServiceFault{Header: h}, nil
}
