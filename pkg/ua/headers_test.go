package ua

import "testing"

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{
		AuthenticationToken: NewNumericNodeID(0, 7),
		Timestamp:           DateTimeTicks64(123456789),
		RequestHandle:       42,
		TimeoutHint:         5000,
	}
	b := NewGrowableBuffer(64, 1024)
	if err := h.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeRequestHeader(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.RequestHandle != h.RequestHandle || got.TimeoutHint != h.TimeoutHint || got.Timestamp != h.Timestamp {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	h := ResponseHeader{Timestamp: 42, RequestHandle: 7, ServiceResult: BadTimeout}
	b := NewGrowableBuffer(64, 1024)
	if err := h.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeResponseHeader(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}
