package ua

// BuiltinType identifies a Variant's scalar element type (Spec Part 6
// Section 5.2.2.16, Table 14). Only the subset needed to carry request and
// response headers and simple attribute values is implemented: Variant
// encoding and decoding handle Boolean, Byte, the 16/32/64-bit integers,
// String, ByteString, StatusCode, NodeId and ExpandedNodeId, and fail with
// ErrBadDecoding for every other type declared here, TypeExtensionObject
// included. Decoding an ExtensionObject's inner structure is the job of the
// service-payload encoder this package does not provide.
type BuiltinType byte

const (
	TypeBoolean         BuiltinType = 1
	TypeSByte           BuiltinType = 2
	TypeByte            BuiltinType = 3
	TypeInt16           BuiltinType = 4
	TypeUInt16          BuiltinType = 5
	TypeInt32           BuiltinType = 6
	TypeUInt32          BuiltinType = 7
	TypeInt64           BuiltinType = 8
	TypeUInt64          BuiltinType = 9
	TypeFloat           BuiltinType = 10
	TypeDouble          BuiltinType = 11
	TypeString          BuiltinType = 12
	TypeDateTime        BuiltinType = 13
	TypeGUID            BuiltinType = 14
	TypeByteString      BuiltinType = 15
	TypeNodeID          BuiltinType = 17
	TypeExpandedNodeID  BuiltinType = 18
	TypeStatusCode      BuiltinType = 19
	TypeExtensionObject BuiltinType = 22
)

const variantArrayFlag byte = 0x80

// Variant is a discriminated union capable of holding a scalar or a
// one-dimensional array of any BuiltinType. Exactly one of Scalar/Array is
// populated, selected by IsArray.
type Variant struct {
	Type    BuiltinType
	IsArray bool
	Scalar  any
	Array   []any
}

// Encode writes the Variant's encoding-mask byte (type in the low six bits,
// the array flag in bit 7) followed by the value(s).
func (v Variant) Encode(b *Buffer) error {
	mask := byte(v.Type)
	if v.IsArray {
		mask |= variantArrayFlag
	}
	if err := PutByte(b, mask); err != nil {
		return err
	}
	if v.IsArray {
		if v.Array == nil {
			return PutInt32(b, NullLength)
		}
		if err := PutInt32(b, int32(len(v.Array))); err != nil {
			return err
		}
		for _, elem := range v.Array {
			if err := encodeScalar(b, v.Type, elem); err != nil {
				return err
			}
		}
		return nil
	}
	return encodeScalar(b, v.Type, v.Scalar)
}

// DecodeVariant reads a Variant.
func DecodeVariant(b *Buffer) (Variant, error) {
	mask, err := GetByte(b)
	if err != nil {
		return Variant{}, err
	}
	v := Variant{
		Type:    BuiltinType(mask &^ variantArrayFlag),
		IsArray: mask&variantArrayFlag != 0,
	}
	if v.IsArray {
		n, err := GetInt32(b)
		if err != nil {
			return Variant{}, err
		}
		if n == NullLength {
			return v, nil
		}
		if n < 0 {
			return Variant{}, ErrBadDecoding
		}
		v.Array = make([]any, n)
		for i := range v.Array {
			elem, err := decodeScalar(b, v.Type)
			if err != nil {
				return Variant{}, err
			}
			v.Array[i] = elem
		}
		return v, nil
	}
	scalar, err := decodeScalar(b, v.Type)
	if err != nil {
		return Variant{}, err
	}
	v.Scalar = scalar
	return v, nil
}

func encodeScalar(b *Buffer, t BuiltinType, val any) error {
	switch t {
	case TypeBoolean:
		return PutBool(b, val.(bool))
	case TypeByte:
		return PutByte(b, val.(byte))
	case TypeInt16:
		return PutInt16(b, val.(int16))
	case TypeUInt16:
		return PutUint16(b, val.(uint16))
	case TypeInt32:
		return PutInt32(b, val.(int32))
	case TypeUInt32:
		return PutUint32(b, val.(uint32))
	case TypeInt64:
		return PutInt64(b, val.(int64))
	case TypeUInt64:
		return PutUint64(b, val.(uint64))
	case TypeString:
		return PutString(b, val.(string))
	case TypeByteString:
		return PutByteString(b, val.([]byte))
	case TypeStatusCode:
		return PutUint32(b, uint32(val.(StatusCode)))
	case TypeNodeID:
		return val.(NodeID).Encode(b)
	case TypeExpandedNodeID:
		return val.(ExpandedNodeID).Encode(b)
	default:
		return ErrBadDecoding
	}
}

func decodeScalar(b *Buffer, t BuiltinType) (any, error) {
	switch t {
	case TypeBoolean:
		return GetBool(b)
	case TypeByte:
		return GetByte(b)
	case TypeInt16:
		return GetInt16(b)
	case TypeUInt16:
		return GetUint16(b)
	case TypeInt32:
		return GetInt32(b)
	case TypeUInt32:
		return GetUint32(b)
	case TypeInt64:
		return GetInt64(b)
	case TypeUInt64:
		return GetUint64(b)
	case TypeString:
		return GetString(b)
	case TypeByteString:
		return GetByteString(b)
	case TypeStatusCode:
		v, err := GetUint32(b)
		return StatusCode(v), err
	case TypeNodeID:
		return DecodeNodeID(b)
	case TypeExpandedNodeID:
		return DecodeExpandedNodeID(b)
	default:
		return nil, ErrBadDecoding
	}
}

// DataValue wraps a Variant with quality and timestamp metadata (Spec Part
// 6 Section 5.2.2.17). Only SourceTimestamp and the value's StatusCode are
// modeled; ServerTimestamp/picoseconds are omitted as the transport core
// never needs to interpret them.
type DataValue struct {
	Value           Variant
	HasValue        bool
	Status          StatusCode
	HasStatus       bool
	HasSourceTime   bool
	SourceTimestamp int64 // DateTime ticks
}

const (
	dvFlagValue      byte = 0x01
	dvFlagStatus     byte = 0x02
	dvFlagSourceTime byte = 0x04
)

// Encode writes the DataValue's encoding-mask byte followed by whichever
// optional fields it sets.
func (d DataValue) Encode(b *Buffer) error {
	var flags byte
	if d.HasValue {
		flags |= dvFlagValue
	}
	if d.HasStatus {
		flags |= dvFlagStatus
	}
	if d.HasSourceTime {
		flags |= dvFlagSourceTime
	}
	if err := PutByte(b, flags); err != nil {
		return err
	}
	if d.HasValue {
		if err := d.Value.Encode(b); err != nil {
			return err
		}
	}
	if d.HasStatus {
		if err := PutUint32(b, uint32(d.Status)); err != nil {
			return err
		}
	}
	if d.HasSourceTime {
		if err := PutInt64(b, d.SourceTimestamp); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDataValue reads a DataValue.
func DecodeDataValue(b *Buffer) (DataValue, error) {
	flags, err := GetByte(b)
	if err != nil {
		return DataValue{}, err
	}
	d := DataValue{}
	if flags&dvFlagValue != 0 {
		v, err := DecodeVariant(b)
		if err != nil {
			return DataValue{}, err
		}
		d.Value = v
		d.HasValue = true
	}
	if flags&dvFlagStatus != 0 {
		v, err := GetUint32(b)
		if err != nil {
			return DataValue{}, err
		}
		d.Status = StatusCode(v)
		d.HasStatus = true
	}
	if flags&dvFlagSourceTime != 0 {
		v, err := GetInt64(b)
		if err != nil {
			return DataValue{}, err
		}
		d.SourceTimestamp = v
		d.HasSourceTime = true
	}
	return d, nil
}
