package session

import (
	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/ua"
)

// CreateSessionRequest/Response, ActivateSessionRequest/Response, and
// CloseSessionRequest/Response are the service-layer bodies dispatched
// over an established SecureChannel's MSG chunks to create, activate,
// and tear down a Session (Spec Section 3.2, 4.4.1). Field sets are
// trimmed to what this core's state machine actually consumes; the full
// OPC UA service definitions carry additional application-description
// and endpoint fields that belong to the node/service-payload layer this
// core does not model (Spec Section 1's non-goals). Encoding follows the
// same RequestHeader/ResponseHeader-embedding pattern as
// securechannel/messages.go's OpenRequest/OpenResponse.
type CreateSessionRequest struct {
	Header                  ua.RequestHeader
	ClientNonce             []byte
	ClientCertificate       []byte
	RequestedSessionTimeout uint32 // milliseconds
	MaxResponseMessageSize  uint32
}

func (r CreateSessionRequest) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.ClientNonce); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.ClientCertificate); err != nil {
		return err
	}
	if err := ua.PutUint32(b, r.RequestedSessionTimeout); err != nil {
		return err
	}
	return ua.PutUint32(b, r.MaxResponseMessageSize)
}

func DecodeCreateSessionRequest(b *ua.Buffer) (CreateSessionRequest, error) {
	var r CreateSessionRequest
	var err error
	if r.Header, err = ua.DecodeRequestHeader(b); err != nil {
		return CreateSessionRequest{}, err
	}
	if r.ClientNonce, err = ua.GetByteString(b); err != nil {
		return CreateSessionRequest{}, err
	}
	if r.ClientCertificate, err = ua.GetByteString(b); err != nil {
		return CreateSessionRequest{}, err
	}
	if r.RequestedSessionTimeout, err = ua.GetUint32(b); err != nil {
		return CreateSessionRequest{}, err
	}
	if r.MaxResponseMessageSize, err = ua.GetUint32(b); err != nil {
		return CreateSessionRequest{}, err
	}
	return r, nil
}

type CreateSessionResponse struct {
	Header                ua.ResponseHeader
	SessionID              ua.NodeID
	AuthenticationToken    ua.NodeID
	RevisedSessionTimeout  uint32
	ServerNonce            []byte
	ServerCertificate      []byte
}

func (r CreateSessionResponse) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := r.SessionID.Encode(b); err != nil {
		return err
	}
	if err := r.AuthenticationToken.Encode(b); err != nil {
		return err
	}
	if err := ua.PutUint32(b, r.RevisedSessionTimeout); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.ServerNonce); err != nil {
		return err
	}
	return ua.PutByteString(b, r.ServerCertificate)
}

func DecodeCreateSessionResponse(b *ua.Buffer) (CreateSessionResponse, error) {
	var r CreateSessionResponse
	var err error
	if r.Header, err = ua.DecodeResponseHeader(b); err != nil {
		return CreateSessionResponse{}, err
	}
	if r.SessionID, err = ua.DecodeNodeID(b); err != nil {
		return CreateSessionResponse{}, err
	}
	if r.AuthenticationToken, err = ua.DecodeNodeID(b); err != nil {
		return CreateSessionResponse{}, err
	}
	if r.RevisedSessionTimeout, err = ua.GetUint32(b); err != nil {
		return CreateSessionResponse{}, err
	}
	if r.ServerNonce, err = ua.GetByteString(b); err != nil {
		return CreateSessionResponse{}, err
	}
	if r.ServerCertificate, err = ua.GetByteString(b); err != nil {
		return CreateSessionResponse{}, err
	}
	return r, nil
}

// ActivateSessionRequest carries the identity token a user presents to
// bind (or re-bind) themselves to a Session (Spec Section 4.4.5).
// UserIdentityToken is left as an opaque byte string: its internal
// structure depends on Type, which this core does not decode — that is
// the AuthenticationManager's job (Spec Section 6.2).
type ActivateSessionRequest struct {
	Header                ua.RequestHeader
	ClientSignature       []byte
	UserIdentityTokenType securechannel.UserTokenType
	UserIdentityToken     []byte
	UserTokenSignature    []byte
}

func (r ActivateSessionRequest) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.ClientSignature); err != nil {
		return err
	}
	if err := ua.PutInt32(b, int32(r.UserIdentityTokenType)); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.UserIdentityToken); err != nil {
		return err
	}
	return ua.PutByteString(b, r.UserTokenSignature)
}

func DecodeActivateSessionRequest(b *ua.Buffer) (ActivateSessionRequest, error) {
	var r ActivateSessionRequest
	var err error
	if r.Header, err = ua.DecodeRequestHeader(b); err != nil {
		return ActivateSessionRequest{}, err
	}
	if r.ClientSignature, err = ua.GetByteString(b); err != nil {
		return ActivateSessionRequest{}, err
	}
	tt, err := ua.GetInt32(b)
	if err != nil {
		return ActivateSessionRequest{}, err
	}
	r.UserIdentityTokenType = securechannel.UserTokenType(tt)
	if r.UserIdentityToken, err = ua.GetByteString(b); err != nil {
		return ActivateSessionRequest{}, err
	}
	if r.UserTokenSignature, err = ua.GetByteString(b); err != nil {
		return ActivateSessionRequest{}, err
	}
	return r, nil
}

type ActivateSessionResponse struct {
	Header      ua.ResponseHeader
	ServerNonce []byte
}

func (r ActivateSessionResponse) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	return ua.PutByteString(b, r.ServerNonce)
}

func DecodeActivateSessionResponse(b *ua.Buffer) (ActivateSessionResponse, error) {
	h, err := ua.DecodeResponseHeader(b)
	if err != nil {
		return ActivateSessionResponse{}, err
	}
	nonce, err := ua.GetByteString(b)
	if err != nil {
		return ActivateSessionResponse{}, err
	}
	return ActivateSessionResponse{Header: h, ServerNonce: nonce}, nil
}

// CloseSessionRequest requests the session be torn down; DeleteSubscriptions
// is out of this core's scope (no subscription model) and is accepted on
// the wire but ignored.
type CloseSessionRequest struct {
	Header              ua.RequestHeader
	DeleteSubscriptions bool
}

func (r CloseSessionRequest) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	return ua.PutBool(b, r.DeleteSubscriptions)
}

func DecodeCloseSessionRequest(b *ua.Buffer) (CloseSessionRequest, error) {
	h, err := ua.DecodeRequestHeader(b)
	if err != nil {
		return CloseSessionRequest{}, err
	}
	del, err := ua.GetBool(b)
	if err != nil {
		return CloseSessionRequest{}, err
	}
	return CloseSessionRequest{Header: h, DeleteSubscriptions: del}, nil
}

type CloseSessionResponse struct {
	Header ua.ResponseHeader
}

func (r CloseSessionResponse) Encode(b *ua.Buffer) error { return r.Header.Encode(b) }

func DecodeCloseSessionResponse(b *ua.Buffer) (CloseSessionResponse, error) {
	h, err := ua.DecodeResponseHeader(b)
	if err != nil {
		return CloseSessionResponse{}, err
	}
	return CloseSessionResponse{Header: h}, nil
}
