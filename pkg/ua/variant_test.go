package ua

import "testing"

func TestVariantScalarRoundTrip(t *testing.T) {
	v := Variant{Type: TypeInt32, Scalar: int32(-7)}
	b := NewGrowableBuffer(32, 256)
	if err := v.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeVariant(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != TypeInt32 || got.Scalar.(int32) != -7 {
		t.Fatalf("got %+v", got)
	}
}

func TestVariantArrayRoundTrip(t *testing.T) {
	v := Variant{Type: TypeString, IsArray: true, Array: []any{"a", "bb", "ccc"}}
	b := NewGrowableBuffer(32, 256)
	if err := v.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeVariant(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Array) != 3 || got.Array[1].(string) != "bb" {
		t.Fatalf("got %+v", got)
	}
}

func TestDataValueRoundTrip(t *testing.T) {
	dv := DataValue{
		Value:         Variant{Type: TypeUInt32, Scalar: uint32(42)},
		HasValue:      true,
		Status:        Good,
		HasStatus:     true,
		HasSourceTime: true,
	}
	ticks, err := DateTimeTicks(MinDateTime)
	if err != nil {
		t.Fatalf("DateTimeTicks: %v", err)
	}
	dv.SourceTimestamp = ticks

	b := NewGrowableBuffer(32, 256)
	if err := dv.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeDataValue(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.HasValue || got.Value.Scalar.(uint32) != 42 || got.Status != Good {
		t.Fatalf("got %+v", got)
	}
}
