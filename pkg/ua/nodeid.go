package ua

// NodeIDKind is the identifier kind discriminator carried in a NodeId's
// encoding byte (Spec Part 6 Section 5.2.2.9).
type NodeIDKind byte

const (
	NodeIDKindNumeric    NodeIDKind = 0
	NodeIDKindString     NodeIDKind = 1
	NodeIDKindGUID       NodeIDKind = 2
	NodeIDKindByteString NodeIDKind = 3
)

// Encoding-byte forms: the three numeric forms, smallest first, then the
// string, GUID and opaque forms. Encoders always pick the smallest numeric
// form that can represent the value (Spec Section 4.1); decoders accept
// all six forms unconditionally.
const (
	nodeIDFormatTwoByte  byte = 0x00 // namespace 0 implied, identifier fits a byte
	nodeIDFormatFourByte byte = 0x01 // namespace in 1 byte, identifier in uint16
	nodeIDFormatNumeric  byte = 0x02 // namespace in uint16, identifier in uint32
	nodeIDFormatString   byte = 0x03
	nodeIDFormatGUID     byte = 0x04
	nodeIDFormatOpaque   byte = 0x05 // ByteString identifier

	// ExpandedNodeId adds these flag bits on top of the base encoding byte.
	expandedFlagNamespaceURI byte = 0x80
	expandedFlagServerIndex  byte = 0x40
	expandedFormatMask       byte = 0x3F
)

// NodeID identifies a node within a single OPC UA server's address space.
// Only one of StringID/GUID/ByteStringID is meaningful, selected by Kind;
// Numeric is meaningful only when Kind == NodeIDKindNumeric.
type NodeID struct {
	Namespace    uint16
	Kind         NodeIDKind
	Numeric      uint32
	StringID     string
	GUID         [16]byte
	ByteStringID []byte
}

// NewNumericNodeID builds a numeric NodeId in the given namespace.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{Namespace: namespace, Kind: NodeIDKindNumeric, Numeric: id}
}

// NewStringNodeID builds a string NodeId in the given namespace.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{Namespace: namespace, Kind: NodeIDKindString, StringID: id}
}

// IsNull reports whether n is the canonical null NodeId (ns=0, numeric 0).
func (n NodeID) IsNull() bool {
	return n.Kind == NodeIDKindNumeric && n.Namespace == 0 && n.Numeric == 0
}

// Encode writes n in its smallest valid compact form.
func (n NodeID) Encode(b *Buffer) error {
	switch n.Kind {
	case NodeIDKindNumeric:
		switch {
		case n.Namespace == 0 && n.Numeric <= 0xFF:
			if err := PutByte(b, nodeIDFormatTwoByte); err != nil {
				return err
			}
			return PutByte(b, byte(n.Numeric))
		case n.Namespace <= 0xFF && n.Numeric <= 0xFFFF:
			if err := PutByte(b, nodeIDFormatFourByte); err != nil {
				return err
			}
			if err := PutByte(b, byte(n.Namespace)); err != nil {
				return err
			}
			return PutUint16(b, uint16(n.Numeric))
		default:
			if err := PutByte(b, nodeIDFormatNumeric); err != nil {
				return err
			}
			if err := PutUint16(b, n.Namespace); err != nil {
				return err
			}
			return PutUint32(b, n.Numeric)
		}
	case NodeIDKindString:
		if err := PutByte(b, nodeIDFormatString); err != nil {
			return err
		}
		if err := PutUint16(b, n.Namespace); err != nil {
			return err
		}
		return PutString(b, n.StringID)
	case NodeIDKindGUID:
		if err := PutByte(b, nodeIDFormatGUID); err != nil {
			return err
		}
		if err := PutUint16(b, n.Namespace); err != nil {
			return err
		}
		return encodeGUID(b, n.GUID)
	case NodeIDKindByteString:
		if err := PutByte(b, nodeIDFormatOpaque); err != nil {
			return err
		}
		if err := PutUint16(b, n.Namespace); err != nil {
			return err
		}
		return PutByteString(b, n.ByteStringID)
	default:
		return ErrUnknownNodeIDFmt
	}
}

// DecodeNodeID reads any of the six encoding forms.
func DecodeNodeID(b *Buffer) (NodeID, error) {
	form, err := GetByte(b)
	if err != nil {
		return NodeID{}, err
	}
	return decodeNodeIDFormat(b, form)
}

// decodeNodeIDFormat implements the shared format-byte switch used by both
// NodeId and ExpandedNodeId decoding. The caller has already consumed the
// encoding byte (and, for ExpandedNodeId, masked off the URI/server-index
// flag bits); form is what remains.
func decodeNodeIDFormat(b *Buffer, form byte) (NodeID, error) {
	switch form {
	case nodeIDFormatTwoByte:
		id, err := GetByte(b)
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(0, uint32(id)), nil
	case nodeIDFormatFourByte:
		ns, err := GetByte(b)
		if err != nil {
			return NodeID{}, err
		}
		id, err := GetUint16(b)
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(uint16(ns), uint32(id)), nil
	case nodeIDFormatNumeric:
		ns, err := GetUint16(b)
		if err != nil {
			return NodeID{}, err
		}
		id, err := GetUint32(b)
		if err != nil {
			return NodeID{}, err
		}
		return NewNumericNodeID(ns, id), nil
	case nodeIDFormatString:
		ns, err := GetUint16(b)
		if err != nil {
			return NodeID{}, err
		}
		s, err := GetString(b)
		if err != nil {
			return NodeID{}, err
		}
		return NewStringNodeID(ns, s), nil
	case nodeIDFormatGUID:
		ns, err := GetUint16(b)
		if err != nil {
			return NodeID{}, err
		}
		g, err := decodeGUID(b)
		if err != nil {
			return NodeID{}, err
		}
		return NodeID{Namespace: ns, Kind: NodeIDKindGUID, GUID: g}, nil
	case nodeIDFormatOpaque:
		ns, err := GetUint16(b)
		if err != nil {
			return NodeID{}, err
		}
		bs, err := GetByteString(b)
		if err != nil {
			return NodeID{}, err
		}
		return NodeID{Namespace: ns, Kind: NodeIDKindByteString, ByteStringID: bs}, nil
	default:
		return NodeID{}, ErrUnknownNodeIDFmt
	}
}

func encodeGUID(b *Buffer, g [16]byte) error {
	_, err := b.Write(g[:])
	return err
}

func decodeGUID(b *Buffer) ([16]byte, error) {
	var g [16]byte
	raw, err := b.Read(16)
	if err != nil {
		return g, err
	}
	copy(g[:], raw)
	return g, nil
}

// ExpandedNodeID extends NodeId with an optional namespace URI (in place of
// the numeric namespace index) and an optional server index, each flagged
// in the high bits of the encoding byte (Spec Part 6 Section 5.2.2.10).
type ExpandedNodeID struct {
	NodeID
	NamespaceURI string // meaningful only when HasNamespaceURI
	ServerIndex  uint32 // meaningful only when HasServerIndex
	HasNamespaceURI bool
	HasServerIndex  bool
}

// Encode writes the ExpandedNodeId: the base NodeId's format nibble with the
// URI/server-index flag bits set, followed by the base NodeId fields, the
// optional namespace URI, and the optional server index.
func (e ExpandedNodeID) Encode(b *Buffer) error {
	tmp := NewGrowableBuffer(64, 1<<20)
	if err := e.NodeID.Encode(tmp); err != nil {
		return err
	}
	body := tmp.Bytes()
	flags := body[0] & expandedFormatMask
	if e.HasNamespaceURI {
		flags |= expandedFlagNamespaceURI
	}
	if e.HasServerIndex {
		flags |= expandedFlagServerIndex
	}
	if err := PutByte(b, flags); err != nil {
		return err
	}
	if _, err := b.Write(body[1:]); err != nil {
		return err
	}
	if e.HasNamespaceURI {
		if err := PutString(b, e.NamespaceURI); err != nil {
			return err
		}
	}
	if e.HasServerIndex {
		if err := PutUint32(b, e.ServerIndex); err != nil {
			return err
		}
	}
	return nil
}

// DecodeExpandedNodeID reads an ExpandedNodeId.
func DecodeExpandedNodeID(b *Buffer) (ExpandedNodeID, error) {
	flagByte, err := GetByte(b)
	if err != nil {
		return ExpandedNodeID{}, err
	}
	form := flagByte & expandedFormatMask
	hasURI := flagByte&expandedFlagNamespaceURI != 0
	hasServerIdx := flagByte&expandedFlagServerIndex != 0

	base, err := decodeNodeIDFormat(b, form)
	if err != nil {
		return ExpandedNodeID{}, err
	}

	e := ExpandedNodeID{NodeID: base, HasNamespaceURI: hasURI, HasServerIndex: hasServerIdx}
	if hasURI {
		uri, err := GetString(b)
		if err != nil {
			return ExpandedNodeID{}, err
		}
		e.NamespaceURI = uri
	}
	if hasServerIdx {
		idx, err := GetUint32(b)
		if err != nil {
			return ExpandedNodeID{}, err
		}
		e.ServerIndex = idx
	}
	return e, nil
}
