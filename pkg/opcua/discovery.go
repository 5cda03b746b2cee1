package opcua

import (
	"time"

	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/session"
	"github.com/uasc/opcua-sc/pkg/ua"
)

// discoveryServiceTypeID namespace-0 discriminators for GetEndpoints,
// continuing session.ServiceTypeID's numbering for this core's own
// half-dozen service bodies (Spec Section 4.4.4 routes GetEndpoints
// outside session treatment, but it still rides the same MSG framing and
// discriminator convention as CreateSession/ActivateSession/CloseSession).
const (
	ServiceTypeGetEndpointsRequest session.ServiceTypeID = iota + 100
	ServiceTypeGetEndpointsResponse
)

// EndpointDescription is the trimmed subset of the real OPC UA
// EndpointDescription this core exposes: enough for a client to pick a
// SecurityPolicy/SecurityMode/UserTokenPolicy and open a channel against
// it. ApplicationDescription, server certificate chains, and transport
// profile URIs belong to the node/service-payload layer out of this
// core's scope (Spec Section 1).
type EndpointDescription struct {
	EndpointURL       string
	SecurityPolicyURI string
	SecurityMode      securechannel.SecurityMode
	UserTokenPolicies []securechannel.UserTokenPolicy
}

func (e EndpointDescription) encode(b *ua.Buffer) error {
	if err := ua.PutString(b, e.EndpointURL); err != nil {
		return err
	}
	if err := ua.PutString(b, e.SecurityPolicyURI); err != nil {
		return err
	}
	if err := ua.PutInt32(b, int32(e.SecurityMode)); err != nil {
		return err
	}
	if err := ua.PutInt32(b, int32(len(e.UserTokenPolicies))); err != nil {
		return err
	}
	for _, p := range e.UserTokenPolicies {
		if err := ua.PutInt32(b, int32(p.Type)); err != nil {
			return err
		}
		if err := ua.PutString(b, p.PolicyID); err != nil {
			return err
		}
		if err := ua.PutString(b, p.SecurityPolicyURI); err != nil {
			return err
		}
	}
	return nil
}

func decodeEndpointDescription(b *ua.Buffer) (EndpointDescription, error) {
	var e EndpointDescription
	var err error
	if e.EndpointURL, err = ua.GetString(b); err != nil {
		return e, err
	}
	if e.SecurityPolicyURI, err = ua.GetString(b); err != nil {
		return e, err
	}
	mode, err := ua.GetInt32(b)
	if err != nil {
		return e, err
	}
	e.SecurityMode = securechannel.SecurityMode(mode)
	n, err := ua.GetInt32(b)
	if err != nil {
		return e, err
	}
	for i := int32(0); i < n; i++ {
		tt, err := ua.GetInt32(b)
		if err != nil {
			return e, err
		}
		policyID, err := ua.GetString(b)
		if err != nil {
			return e, err
		}
		secURI, err := ua.GetString(b)
		if err != nil {
			return e, err
		}
		e.UserTokenPolicies = append(e.UserTokenPolicies, securechannel.UserTokenPolicy{
			Type:              securechannel.UserTokenType(tt),
			PolicyID:          policyID,
			SecurityPolicyURI: secURI,
		})
	}
	return e, nil
}

// GetEndpointsRequest asks a server to describe the endpoints it offers at
// EndpointURL, independent of any secure channel or session (Spec Section
// 4.4.4).
type GetEndpointsRequest struct {
	Header      ua.RequestHeader
	EndpointURL string
}

func (r GetEndpointsRequest) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	return ua.PutString(b, r.EndpointURL)
}

func decodeGetEndpointsRequest(b *ua.Buffer) (GetEndpointsRequest, error) {
	var r GetEndpointsRequest
	var err error
	if r.Header, err = ua.DecodeRequestHeader(b); err != nil {
		return GetEndpointsRequest{}, err
	}
	if r.EndpointURL, err = ua.GetString(b); err != nil {
		return GetEndpointsRequest{}, err
	}
	return r, nil
}

// GetEndpointsResponse lists what the server discovered for the requested
// EndpointURL.
type GetEndpointsResponse struct {
	Header    ua.ResponseHeader
	Endpoints []EndpointDescription
}

func (r GetEndpointsResponse) Encode(b *ua.Buffer) error {
	if err := r.Header.Encode(b); err != nil {
		return err
	}
	if err := ua.PutInt32(b, int32(len(r.Endpoints))); err != nil {
		return err
	}
	for _, e := range r.Endpoints {
		if err := e.encode(b); err != nil {
			return err
		}
	}
	return nil
}

func decodeGetEndpointsResponse(b *ua.Buffer) (GetEndpointsResponse, error) {
	var r GetEndpointsResponse
	var err error
	if r.Header, err = ua.DecodeResponseHeader(b); err != nil {
		return GetEndpointsResponse{}, err
	}
	n, err := ua.GetInt32(b)
	if err != nil {
		return GetEndpointsResponse{}, err
	}
	for i := int32(0); i < n; i++ {
		e, err := decodeEndpointDescription(b)
		if err != nil {
			return GetEndpointsResponse{}, err
		}
		r.Endpoints = append(r.Endpoints, e)
	}
	return r, nil
}

// StaticDiscoveryHandler answers GetEndpoints from a fixed list configured
// at startup, the common case for a server with one static set of
// endpoints (Spec Section 6.4: configuration is write-once, read-only at
// steady state).
type StaticDiscoveryHandler struct {
	Endpoints []EndpointDescription
}

func (h StaticDiscoveryHandler) GetEndpoints(requestBody []byte) ([]byte, error) {
	req, err := decodeGetEndpointsRequest(ua.NewBufferFromBytes(requestBody))
	if err != nil {
		return nil, err
	}
	resp := GetEndpointsResponse{
		Header:    ua.ResponseHeader{Timestamp: securechannel.NowTicks(time.Now()), RequestHandle: req.Header.RequestHandle, ServiceResult: ua.Good},
		Endpoints: h.Endpoints,
	}
	return session.EncodeServiceBody(ServiceTypeGetEndpointsResponse, resp)
}
