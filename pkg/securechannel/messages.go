package securechannel

import (
	"time"

	"github.com/uasc/opcua-sc/pkg/ua"
)

// SecurityToken is the (channelId, tokenId, createdAt, revisedLifetime)
// tuple exchanged in every OpenSecureChannel response (Spec Section 4.3.1).
type SecurityToken struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       ua.DateTimeTicks64
	RevisedLifetime uint32 // milliseconds, per OPC UA wire convention
}

func (t SecurityToken) Encode(b *ua.Buffer) error {
	if err := ua.PutUint32(b, t.ChannelID); err != nil {
		return err
	}
	if err := ua.PutUint32(b, t.TokenID); err != nil {
		return err
	}
	if err := ua.PutInt64(b, int64(t.CreatedAt)); err != nil {
		return err
	}
	return ua.PutUint32(b, t.RevisedLifetime)
}

func DecodeSecurityToken(b *ua.Buffer) (SecurityToken, error) {
	var t SecurityToken
	var err error
	if t.ChannelID, err = ua.GetUint32(b); err != nil {
		return SecurityToken{}, err
	}
	if t.TokenID, err = ua.GetUint32(b); err != nil {
		return SecurityToken{}, err
	}
	ticks, err := ua.GetInt64(b)
	if err != nil {
		return SecurityToken{}, err
	}
	t.CreatedAt = ua.DateTimeTicks64(ticks)
	if t.RevisedLifetime, err = ua.GetUint32(b); err != nil {
		return SecurityToken{}, err
	}
	return t, nil
}

// OpenRequest is the body of an OpenSecureChannelRequest.
type OpenRequest struct {
	Header            ua.RequestHeader
	ClientProtocolVersion uint32
	RequestType       TokenRequestType
	SecurityMode      SecurityMode
	ClientNonce       []byte
	RequestedLifetime uint32 // milliseconds
}

func (r OpenRequest) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := ua.PutUint32(b, r.ClientProtocolVersion); err != nil {
		return err
	}
	if err := ua.PutUint32(b, uint32(r.RequestType)); err != nil {
		return err
	}
	if err := ua.PutUint32(b, uint32(r.SecurityMode)); err != nil {
		return err
	}
	if err := ua.PutByteString(b, r.ClientNonce); err != nil {
		return err
	}
	return ua.PutUint32(b, r.RequestedLifetime)
}

func DecodeOpenRequest(b *ua.Buffer) (OpenRequest, error) {
	var r OpenRequest
	var err error
	if r.Header, err = ua.DecodeRequestHeader(b); err != nil {
		return OpenRequest{}, err
	}
	if r.ClientProtocolVersion, err = ua.GetUint32(b); err != nil {
		return OpenRequest{}, err
	}
	rt, err := ua.GetUint32(b)
	if err != nil {
		return OpenRequest{}, err
	}
	r.RequestType = TokenRequestType(rt)
	mode, err := ua.GetUint32(b)
	if err != nil {
		return OpenRequest{}, err
	}
	r.SecurityMode = SecurityMode(mode)
	if r.ClientNonce, err = ua.GetByteString(b); err != nil {
		return OpenRequest{}, err
	}
	if r.RequestedLifetime, err = ua.GetUint32(b); err != nil {
		return OpenRequest{}, err
	}
	return r, nil
}

// OpenResponse is the body of an OpenSecureChannelResponse.
type OpenResponse struct {
	Header               ua.ResponseHeader
	ServerProtocolVersion uint32
	SecurityToken        SecurityToken
	ServerNonce          []byte
}

func (r OpenResponse) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := ua.PutUint32(b, r.ServerProtocolVersion); err != nil {
		return err
	}
	if err := r.SecurityToken.Encode(b); err != nil {
		return err
	}
	return ua.PutByteString(b, r.ServerNonce)
}

func DecodeOpenResponse(b *ua.Buffer) (OpenResponse, error) {
	var r OpenResponse
	var err error
	if r.Header, err = ua.DecodeResponseHeader(b); err != nil {
		return OpenResponse{}, err
	}
	if r.ServerProtocolVersion, err = ua.GetUint32(b); err != nil {
		return OpenResponse{}, err
	}
	if r.SecurityToken, err = DecodeSecurityToken(b); err != nil {
		return OpenResponse{}, err
	}
	if r.ServerNonce, err = ua.GetByteString(b); err != nil {
		return OpenResponse{}, err
	}
	return r, nil
}

// CloseRequest is the (empty beyond its header) body of a
// CloseSecureChannelRequest.
type CloseRequest struct {
	Header ua.RequestHeader
}

func (r CloseRequest) Encode(b *ua.Buffer) error { return r.Header.Encode(b) }

func DecodeCloseRequest(b *ua.Buffer) (CloseRequest, error) {
	h, err := ua.DecodeRequestHeader(b)
	if err != nil {
		return CloseRequest{}, err
	}
	return CloseRequest{Header: h}, nil
}

// NowTicks converts a time.Time to OPC UA DateTime ticks for use in
// message headers; it is a thin wrapper so callers never call
// ua.DateTimeTicks directly and risk forgetting the error it can return
// for out-of-range times.
func NowTicks(t time.Time) ua.DateTimeTicks64 {
	ticks, err := ua.DateTimeTicks(t)
	if err != nil {
		return 0
	}
	return ua.DateTimeTicks64(ticks)
}
