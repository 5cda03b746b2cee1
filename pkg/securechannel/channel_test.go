package securechannel

import (
	"testing"
	"time"

	"github.com/uasc/opcua-sc/pkg/uatcp"
)

func testLimits() uatcp.Limits {
	return uatcp.Limits{ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 1 << 20, MaxChunkCount: 16}
}

func newTestChannelPair(t *testing.T) (client, server *SecureChannel) {
	t.Helper()
	clientConn, serverConn := uatcp.NewTestPipe()

	cConn, err := uatcp.DialConn(clientConn, "opc.tcp://test/endpoint", testLimits(), nil)
	if err != nil {
		t.Fatalf("DialConn: %v", err)
	}
	sConnCh := make(chan *uatcp.Conn, 1)
	sErrCh := make(chan error, 1)
	go func() {
		sc, _, err := uatcp.Accept(serverConn, testLimits(), nil)
		sConnCh <- sc
		sErrCh <- err
	}()
	if err := <-sErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	sConn := <-sConnCh

	profile := &DefaultCryptoProfile{}
	cfg := SecureChannelConfig{
		SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#None",
		SecurityMode:      SecurityModeNone,
		Profile:           profile,
	}
	cCh, err := NewClientChannel(1, cfg, cConn, cConn.Limits, nil)
	if err != nil {
		t.Fatalf("NewClientChannel: %v", err)
	}
	ep := &EndpointConfig{}
	policy := SecurityPolicy{PolicyURI: cfg.SecurityPolicyURI, Profile: profile}
	sCh, err := NewServerChannel(7, ep, policy, SecurityModeNone, sConn, sConn.Limits, nil)
	if err != nil {
		t.Fatalf("NewServerChannel: %v", err)
	}
	return cCh, sCh
}

func TestOpenAcceptEstablishesSharedToken(t *testing.T) {
	client, server := newTestChannelPair(t)

	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- server.Accept() }()

	token, err := client.Open(TokenRequestIssue, time.Minute, time.Now().Add(5*time.Second))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if client.State() != StateScConnected || server.State() != StateScConnected {
		t.Fatalf("want both sides ScConnected, got client=%s server=%s", client.State(), server.State())
	}
	if token.ID == 0 {
		t.Fatalf("expected a nonzero token id")
	}
	if client.id != server.id {
		t.Fatalf("client and server disagree on channel id: %d vs %d", client.id, server.id)
	}
}

func TestMessageRoundTripAfterOpen(t *testing.T) {
	client, server := newTestChannelPair(t)

	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- server.Accept() }()
	if _, err := client.Open(TokenRequestIssue, time.Minute, time.Now().Add(5*time.Second)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}

	payload := []byte("hello secure channel")
	if err := client.Send(99, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	decodedCh := make(chan *DecodedMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, _, err := server.Receive(time.Now())
		decodedCh <- msg
		errCh <- err
	}()
	if err := <-errCh; err != nil {
		t.Fatalf("Receive: %v", err)
	}
	decoded := <-decodedCh
	if decoded == nil {
		t.Fatalf("expected a decoded message")
	}
	if string(decoded.Payload) != string(payload) {
		t.Fatalf("got %q, want %q", decoded.Payload, payload)
	}
	if decoded.RequestID != 99 {
		t.Fatalf("got requestId %d, want 99", decoded.RequestID)
	}
}

func TestMessageSplitsAcrossMultipleChunksWhenPayloadExceedsSendBuffer(t *testing.T) {
	clientConn, serverConn := uatcp.NewTestPipe()
	hsLimits := testLimits()

	cConn, err := uatcp.DialConn(clientConn, "opc.tcp://test/endpoint", hsLimits, nil)
	if err != nil {
		t.Fatalf("DialConn: %v", err)
	}
	sConnCh := make(chan *uatcp.Conn, 1)
	sErrCh := make(chan error, 1)
	go func() {
		sc, _, err := uatcp.Accept(serverConn, hsLimits, nil)
		sConnCh <- sc
		sErrCh <- err
	}()
	if err := <-sErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	sConn := <-sConnCh

	// A deliberately tiny negotiated buffer forces EncodeMessage to split
	// the payload below into several chunks (Spec Section 4.2, scenario 6).
	smallLimits := uatcp.Limits{ReceiveBufferSize: 256, SendBufferSize: 256, MaxMessageSize: 1 << 20, MaxChunkCount: 64}
	profile := &DefaultCryptoProfile{}
	cfg := SecureChannelConfig{
		SecurityPolicyURI: "http://opcfoundation.org/UA/SecurityPolicy#None",
		SecurityMode:      SecurityModeNone,
		Profile:           profile,
	}
	client, err := NewClientChannel(1, cfg, cConn, smallLimits, nil)
	if err != nil {
		t.Fatalf("NewClientChannel: %v", err)
	}
	ep := &EndpointConfig{}
	policy := SecurityPolicy{PolicyURI: cfg.SecurityPolicyURI, Profile: profile}
	server, err := NewServerChannel(7, ep, policy, SecurityModeNone, sConn, smallLimits, nil)
	if err != nil {
		t.Fatalf("NewServerChannel: %v", err)
	}

	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- server.Accept() }()
	if _, err := client.Open(TokenRequestIssue, time.Minute, time.Now().Add(5*time.Second)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}

	sendErrCh := make(chan error, 1)
	go func() { sendErrCh <- client.Send(42, payload) }()

	var decoded *DecodedMessage
	for decoded == nil {
		msg, _, err := server.Receive(time.Now())
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		decoded = msg
	}
	if err := <-sendErrCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if decoded.RequestID != 42 {
		t.Fatalf("got requestId %d, want 42", decoded.RequestID)
	}
	if len(decoded.Payload) != len(payload) {
		t.Fatalf("reassembled payload length = %d, want %d", len(decoded.Payload), len(payload))
	}
	for i := range payload {
		if decoded.Payload[i] != payload[i] {
			t.Fatalf("reassembled payload differs at byte %d", i)
		}
	}
}

func TestSequenceNumberMustStrictlyIncrease(t *testing.T) {
	c := &SecureChannel{}
	if err := c.checkRecvSeq(5, false); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := c.checkRecvSeq(5, false); err != ErrSequenceNotMonotonic {
		t.Fatalf("got %v, want ErrSequenceNotMonotonic for repeat", err)
	}
	if err := c.checkRecvSeq(4, false); err != ErrSequenceNotMonotonic {
		t.Fatalf("got %v, want ErrSequenceNotMonotonic for regression", err)
	}
	if err := c.checkRecvSeq(6, false); err != nil {
		t.Fatalf("strictly greater should be accepted: %v", err)
	}
}

func TestPreviousTokenAcceptedWithinGraceWindow(t *testing.T) {
	c := &SecureChannel{}
	now := time.Now()
	first := &Token{ID: 1, Lifetime: time.Minute}
	c.promoteToken(first, now)

	second := &Token{ID: 2, Lifetime: time.Minute}
	c.promoteToken(second, now)

	if _, err := c.acceptToken(2, now); err != nil {
		t.Fatalf("current token should be accepted: %v", err)
	}
	if _, err := c.acceptToken(1, now); err != nil {
		t.Fatalf("previous token should be accepted within grace window: %v", err)
	}
	past := now.Add(first.GraceWindow() + time.Second)
	if _, err := c.acceptToken(1, past); err != ErrTokenExpired {
		t.Fatalf("got %v, want ErrTokenExpired after grace window elapses", err)
	}
	if _, err := c.acceptToken(99, now); err != ErrTokenUnknown {
		t.Fatalf("got %v, want ErrTokenUnknown for a never-issued token", err)
	}
}

func TestRenewDueAtThreeQuartersLifetime(t *testing.T) {
	c := &SecureChannel{}
	now := time.Now()
	c.currentToken = &Token{ID: 1, IssuedAt: now, Lifetime: 100 * time.Second}

	if c.RenewDue(now.Add(50 * time.Second)) {
		t.Fatalf("must not be due at 50%% of lifetime")
	}
	if !c.RenewDue(now.Add(76 * time.Second)) {
		t.Fatalf("must be due past 75%% of lifetime")
	}
}

func TestCloseZeroesKeyMaterial(t *testing.T) {
	client, server := newTestChannelPair(t)
	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- server.Accept() }()
	if _, err := client.Open(TokenRequestIssue, time.Minute, time.Now().Add(5*time.Second)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("Accept: %v", err)
	}

	token := client.currentToken
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, b := range token.SendKeys.SigningKey {
		if b != 0 {
			t.Fatalf("expected signing key to be zeroed after Close")
		}
	}
	if client.State() != StateDisconnected {
		t.Fatalf("got state %s, want Disconnected", client.State())
	}
}
