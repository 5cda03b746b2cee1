package ua

import "testing"

func TestNodeIDPicksSmallestForm(t *testing.T) {
	tests := []struct {
		name    string
		id      NodeID
		wantFmt byte
	}{
		{"two-byte", NewNumericNodeID(0, 10), nodeIDFormatTwoByte},
		{"four-byte", NewNumericNodeID(1, 300), nodeIDFormatFourByte},
		{"numeric", NewNumericNodeID(2, 100000), nodeIDFormatNumeric},
		{"numeric-big-ns", NewNumericNodeID(1000, 1), nodeIDFormatNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewGrowableBuffer(32, 256)
			if err := tt.id.Encode(b); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if b.Bytes()[0] != tt.wantFmt {
				t.Fatalf("got format byte %#x, want %#x", b.Bytes()[0], tt.wantFmt)
			}
		})
	}
}

func TestNodeIDRoundTripAllKinds(t *testing.T) {
	ids := []NodeID{
		NewNumericNodeID(0, 42),
		NewNumericNodeID(5, 70000),
		NewStringNodeID(2, "ns=2;s=Temperature"),
		{Namespace: 3, Kind: NodeIDKindGUID, GUID: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
		{Namespace: 4, Kind: NodeIDKindByteString, ByteStringID: []byte{0xAA, 0xBB}},
	}
	for _, id := range ids {
		b := NewGrowableBuffer(64, 1024)
		if err := id.Encode(b); err != nil {
			t.Fatalf("Encode(%+v): %v", id, err)
		}
		b.SetPosition(0)
		got, err := DecodeNodeID(b)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Kind != id.Kind || got.Namespace != id.Namespace {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, id)
		}
	}
}

func TestExpandedNodeIDRoundTrip(t *testing.T) {
	e := ExpandedNodeID{
		NodeID:          NewNumericNodeID(1, 99),
		HasNamespaceURI: true,
		NamespaceURI:    "urn:example:ns",
		HasServerIndex:  true,
		ServerIndex:     7,
	}
	b := NewGrowableBuffer(64, 1024)
	if err := e.Encode(b); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b.SetPosition(0)
	got, err := DecodeExpandedNodeID(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NamespaceURI != e.NamespaceURI || got.ServerIndex != e.ServerIndex {
		t.Fatalf("got %+v, want %+v", got, e)
	}
	if got.Numeric != e.Numeric || got.Namespace != e.Namespace {
		t.Fatalf("base NodeId mismatch: got %+v, want %+v", got.NodeID, e.NodeID)
	}
}
