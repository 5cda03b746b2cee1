package uatcp

import (
	"testing"

	"github.com/uasc/opcua-sc/pkg/ua"
)

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{
		ProtocolVersion:   0,
		ReceiveBufferSize: 65536,
		SendBufferSize:    65536,
		MaxMessageSize:    1 << 20,
		MaxChunkCount:     0,
		EndpointURL:       "opc.tcp://localhost:4840",
	}
	b := ua.NewGrowableBuffer(256, 1024)
	if err := h.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeHello(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestHelloValidateRejectsSmallBuffer(t *testing.T) {
	h := Hello{ReceiveBufferSize: 1024}
	if err := h.Validate(); err != ErrBufferSizeTooSmall {
		t.Fatalf("got %v, want ErrBufferSizeTooSmall", err)
	}
}

func TestNegotiateTakesPairwiseMinimum(t *testing.T) {
	local := Limits{ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 1 << 20, MaxChunkCount: 100}
	peer := Limits{ReceiveBufferSize: 8192, SendBufferSize: 16384, MaxMessageSize: 1 << 16, MaxChunkCount: 0}

	got := Negotiate(local, peer)
	want := Limits{ReceiveBufferSize: 8192, SendBufferSize: 16384, MaxMessageSize: 1 << 16, MaxChunkCount: 100}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNegotiateZeroMeansUnbounded(t *testing.T) {
	local := Limits{MaxMessageSize: 0, MaxChunkCount: 0}
	peer := Limits{MaxMessageSize: 0, MaxChunkCount: 0}
	got := Negotiate(local, peer)
	if got.MaxMessageSize != 0 || got.MaxChunkCount != 0 {
		t.Fatalf("both-unbounded should stay unbounded, got %+v", got)
	}
}

func TestCommonHeaderRoundTrip(t *testing.T) {
	h := CommonHeader{MessageType: MessageTypeMessage, ChunkType: ChunkFinal, MessageSize: 128}
	b := ua.NewFixedBuffer(CommonHeaderSize)
	if err := h.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeCommonHeader(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestDecodeCommonHeaderRejectsUnknownType(t *testing.T) {
	b := ua.NewFixedBuffer(CommonHeaderSize)
	b.Write([]byte{'X', 'X', 'X', 'F', 0, 0, 0, 8})
	b.SetPosition(0)
	if _, err := DecodeCommonHeader(b); err != ErrInvalidMessageType {
		t.Fatalf("got %v, want ErrInvalidMessageType", err)
	}
}
