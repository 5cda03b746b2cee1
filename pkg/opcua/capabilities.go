// Package opcua is the composition root: it wires the chunk transport
// (pkg/uatcp), the secure channel (pkg/securechannel), the session layer
// (pkg/session), and the L5 dispatch queues (pkg/dispatch) into a Client
// and a Server, the way the teacher's pkg/matter wires transport,
// securechannel, session, and exchange into one Node (Spec Section 2's
// five-layer control-flow diagram end to end).
package opcua

import "github.com/uasc/opcua-sc/pkg/uatcp"

// ServiceHandler is the server-side capability for every request class
// besides session treatment (Create/Activate/Close) and discovery (Spec
// Section 6.2, 4.4.4): Read/Write/Browse/Publish/CreateSubscription/
// MonitoredItems and whatever else a node model exposes. This core never
// decodes those service bodies itself — ServiceHandler receives the
// still-opaque, already-framed-for-reply request bytes (the discriminator
// NodeId of the encodeable type followed by its encoded fields) and
// returns the equally opaque encoded response bytes the dispatch loop
// frames back onto the wire unchanged.
type ServiceHandler interface {
	// Handle processes one decoded service request body (already stripped
	// of RequestHeader correlation by the caller, which has matched it to
	// a Session) and returns the full encoded response body, leading
	// discriminator included, ready to hand to SecureChannel.Send.
	Handle(requestTypeID uint32, body []byte, user any) (respBody []byte, err error)
}

// DiscoveryHandler answers GetEndpoints requests, which Spec Section
// 4.4.4 routes outside of session treatment (a client may call
// GetEndpoints before ever creating a session).
type DiscoveryHandler interface {
	GetEndpoints(requestBody []byte) (respBody []byte, err error)
}

// DefaultLimits are the transport limits this core offers locally when a
// ClientConfig/ServerConfig leaves Limits at its zero value, respecting
// the receiveBufferSize >= 8192 floor Spec Section 4.2 mandates.
var DefaultLimits = uatcp.Limits{
	ReceiveBufferSize: 65536,
	SendBufferSize:    65536,
	MaxMessageSize:    1 << 20,
	MaxChunkCount:     64,
}

func limitsOrDefault(l uatcp.Limits) uatcp.Limits {
	if l.ReceiveBufferSize == 0 {
		return DefaultLimits
	}
	return l
}
