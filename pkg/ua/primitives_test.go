package ua

import (
	"testing"
	"time"
)

func roundTripBuffer() *Buffer { return NewGrowableBuffer(64, 4096) }

func TestBooleanDecodesAnyNonzeroAsTrue(t *testing.T) {
	b := roundTripBuffer()
	b.Write([]byte{0x07})
	b.SetPosition(0)
	v, err := GetBool(b)
	if err != nil || !v {
		t.Fatalf("expected nonzero byte to decode true, got %v, err %v", v, err)
	}
}

func TestStringNullVsEmpty(t *testing.T) {
	b := roundTripBuffer()
	if err := PutStringPtr(b, nil); err != nil {
		t.Fatalf("PutStringPtr(nil): %v", err)
	}
	empty := ""
	if err := PutStringPtr(b, &empty); err != nil {
		t.Fatalf("PutStringPtr(\"\"): %v", err)
	}
	b.SetPosition(0)
	got, err := GetStringPtr(b)
	if err != nil {
		t.Fatalf("GetStringPtr: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for null string, got %v", got)
	}
	got2, err := GetStringPtr(b)
	if err != nil {
		t.Fatalf("GetStringPtr: %v", err)
	}
	if got2 == nil || *got2 != "" {
		t.Fatalf("expected non-nil empty string, got %v", got2)
	}
}

func TestByteStringRoundTrip(t *testing.T) {
	b := roundTripBuffer()
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := PutByteString(b, want); err != nil {
		t.Fatalf("PutByteString: %v", err)
	}
	b.SetPosition(0)
	got, err := GetByteString(b)
	if err != nil {
		t.Fatalf("GetByteString: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestIntegerRoundTrips(t *testing.T) {
	b := roundTripBuffer()
	PutInt32(b, -12345)
	PutUint64(b, 0xFFFFFFFFFFFFFFFF)
	PutInt16(b, -1)
	b.SetPosition(0)
	i32, _ := GetInt32(b)
	if i32 != -12345 {
		t.Fatalf("int32 round trip: got %d", i32)
	}
	u64, _ := GetUint64(b)
	if u64 != 0xFFFFFFFFFFFFFFFF {
		t.Fatalf("uint64 round trip: got %x", u64)
	}
	i16, _ := GetInt16(b)
	if i16 != -1 {
		t.Fatalf("int16 round trip: got %d", i16)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	want := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	b := roundTripBuffer()
	if err := PutDateTime(b, want); err != nil {
		t.Fatalf("PutDateTime: %v", err)
	}
	b.SetPosition(0)
	got, err := GetDateTime(b)
	if err != nil {
		t.Fatalf("GetDateTime: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDateTimeRejectsOutOfRange(t *testing.T) {
	farFuture := MaxDateTime.Add(time.Hour)
	if _, err := DateTimeTicks(farFuture); err != ErrDateTimeRange {
		t.Fatalf("expected ErrDateTimeRange, got %v", err)
	}
}
