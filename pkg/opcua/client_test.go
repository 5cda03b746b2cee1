package opcua

import (
	"testing"
	"time"

	"github.com/uasc/opcua-sc/pkg/dispatch"
	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/session"
	"github.com/uasc/opcua-sc/pkg/ua"
	"github.com/uasc/opcua-sc/pkg/uatcp"
)

func testChannel(t *testing.T) *securechannel.SecureChannel {
	t.Helper()
	clientConn, _ := uatcp.NewTestPipe()
	limits := uatcp.Limits{ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 1 << 20, MaxChunkCount: 16}
	conn, err := uatcp.DialConn(clientConn, "opc.tcp://test/endpoint", limits, nil)
	if err != nil {
		t.Fatalf("DialConn: %v", err)
	}
	cfg := securechannel.SecureChannelConfig{
		SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#None",
		SecurityMode:      securechannel.SecurityModeNone,
		Profile:           &securechannel.DefaultCryptoProfile{},
	}
	channel, err := securechannel.NewClientChannel(1, cfg, conn, conn.Limits, nil)
	if err != nil {
		t.Fatalf("NewClientChannel: %v", err)
	}
	return channel
}

// TestRouteMessageClosesSessionOnBadSessionIdInvalid verifies Spec Section
// 8's boundary behavior B5: a ServiceFault carrying BadSessionIdInvalid
// must close the session locally, without the client ever sending a
// CloseSessionRequest.
func TestRouteMessageClosesSessionOnBadSessionIdInvalid(t *testing.T) {
	channel := testChannel(t)
	sess, err := session.New(session.Config{ID: 1, Channel: channel, Timeout: time.Minute})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := sess.Activate(nil, channel); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	var events []dispatch.Event
	c := NewClient(ClientConfig{OnEvent: func(e dispatch.Event) { events = append(events, e) }})
	c.channel = channel
	c.sess = sess

	handle := uint32(42)
	pending, err := c.pending.Register(handle, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	fault := session.ServiceFault{Header: ua.ResponseHeader{RequestHandle: handle, ServiceResult: ua.BadSessionIDInvalid}}
	payload, err := session.EncodeServiceBody(session.ServiceTypeServiceFault, fault)
	if err != nil {
		t.Fatalf("EncodeServiceBody: %v", err)
	}

	c.routeMessage(securechannel.DecodedMessage{RequestID: handle, Payload: payload})

	select {
	case result := <-pending.Done:
		if result.Err == nil {
			t.Fatalf("expected an error result for the faulted request")
		}
	default:
		t.Fatalf("expected pending request to complete")
	}

	if got := sess.State(); got != session.StateClosed {
		t.Fatalf("session state = %v, want Closed", got)
	}

	c.appQueue.Close() // drain so the goroutine-posted events are visible below
	var sawClosedSession bool
	for _, e := range events {
		if e.Kind == dispatch.KindClosedSession {
			sawClosedSession = true
		}
	}
	if !sawClosedSession {
		t.Fatalf("expected a ClosedSession event, got %+v", events)
	}
}
