package ua

import "testing"

func TestGrowableBufferGrowsInIncrements(t *testing.T) {
	b := NewGrowableBuffer(8, 32)
	if _, err := b.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(b.data) != 16 {
		t.Fatalf("expected growth to 16 bytes, got %d", len(b.data))
	}
	if _, err := b.Write(make([]byte, 100)); err == nil {
		t.Fatal("expected ErrWouldOverflow past maximum size")
	}
}

func TestFixedBufferNeverGrows(t *testing.T) {
	b := NewFixedBuffer(4)
	if _, err := b.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write within capacity: %v", err)
	}
	if _, err := b.Write([]byte{5}); err != ErrWouldOverflow {
		t.Fatalf("expected ErrWouldOverflow, got %v", err)
	}
}

func TestSetLengthShrinkZeroesDroppedRegion(t *testing.T) {
	b := NewGrowableBuffer(8, 64)
	b.Write([]byte{1, 2, 3, 4})
	if err := b.SetLength(2); err != nil {
		t.Fatalf("SetLength shrink: %v", err)
	}
	if err := b.SetLength(4); err != nil {
		t.Fatalf("SetLength grow back: %v", err)
	}
	if b.data[2] != 0 || b.data[3] != 0 {
		t.Fatalf("expected zeroed dropped region, got %v", b.data[:4])
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	b := NewGrowableBuffer(16, 256)
	want := []byte("opc-ua-binary")
	if _, err := b.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b.SetPosition(0)
	got, err := b.Read(len(want))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadPastLengthFails(t *testing.T) {
	b := NewGrowableBuffer(16, 256)
	b.Write([]byte("abc"))
	b.SetPosition(0)
	if _, err := b.Read(10); err != ErrLengthOOB {
		t.Fatalf("expected ErrLengthOOB, got %v", err)
	}
}
