package ua

import (
	"encoding/binary"
	"time"
)

// Null-length sentinel for String/ByteString (Spec Part 6, Section 5.2.2.4).
const NullLength int32 = -1

// DateTime epoch: 1601-01-01 00:00:00 UTC, counted in 100ns ticks (Spec Part
// 3, Section 8.5). unixToDateTimeTicks is the offset between that epoch and
// the Unix epoch, in 100ns ticks.
const unixToDateTimeTicks int64 = 116444736000000000

// MinDateTime and MaxDateTime bound the representable signed 64-bit tick
// range relative to the Unix epoch; values outside this range are rejected
// rather than silently wrapped or truncated.
const ticksPerSecond int64 = 10000000

var (
	MinDateTime = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxDateTime = time.Unix((1<<63-1)/ticksPerSecond-unixToDateTimeTicks/ticksPerSecond, (1<<63-1)%ticksPerSecond*100).UTC()
)

// PutBool encodes a Boolean: 0x00 for false, 0x01 for true.
func PutBool(b *Buffer, v bool) error {
	var by byte
	if v {
		by = 0x01
	}
	_, err := b.Write([]byte{by})
	return err
}

// GetBool decodes a Boolean. Per Spec Part 6 Section 5.1.2, any nonzero byte
// decodes as true.
func GetBool(b *Buffer) (bool, error) {
	raw, err := b.Read(1)
	if err != nil {
		return false, err
	}
	return raw[0] != 0, nil
}

// PutInt16 / GetInt16, PutUint16 / GetUint16, and the 32/64-bit variants
// encode little-endian fixed-width integers (Spec Part 6 Section 5.2.2.2).

func PutUint16(b *Buffer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}

func GetUint16(b *Buffer) (uint16, error) {
	raw, err := b.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw), nil
}

func PutInt16(b *Buffer, v int16) error { return PutUint16(b, uint16(v)) }

func GetInt16(b *Buffer) (int16, error) {
	v, err := GetUint16(b)
	return int16(v), err
}

func PutUint32(b *Buffer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}

func GetUint32(b *Buffer) (uint32, error) {
	raw, err := b.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func PutInt32(b *Buffer, v int32) error { return PutUint32(b, uint32(v)) }

func GetInt32(b *Buffer) (int32, error) {
	v, err := GetUint32(b)
	return int32(v), err
}

func PutUint64(b *Buffer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}

func GetUint64(b *Buffer) (uint64, error) {
	raw, err := b.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func PutInt64(b *Buffer, v int64) error { return PutUint64(b, uint64(v)) }

func GetInt64(b *Buffer) (int64, error) {
	v, err := GetUint64(b)
	return int64(v), err
}

func PutByte(b *Buffer, v byte) error {
	_, err := b.Write([]byte{v})
	return err
}

func GetByte(b *Buffer) (byte, error) {
	raw, err := b.Read(1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

// PutString encodes a String as an Int32 length followed by UTF-8 bytes.
// A Go nil string value has no representation distinct from "" at this
// layer; callers that must distinguish null from empty use PutStringPtr.
func PutString(b *Buffer, s string) error {
	return PutByteString(b, []byte(s))
}

// GetString decodes a String. A null-encoded string (length -1) decodes to
// "", identically to an empty string; use GetStringPtr to tell them apart.
func GetString(b *Buffer) (string, error) {
	bs, err := GetByteString(b)
	return string(bs), err
}

// PutStringPtr encodes a nullable String: nil encodes length -1.
func PutStringPtr(b *Buffer, s *string) error {
	if s == nil {
		return PutInt32(b, NullLength)
	}
	return PutString(b, *s)
}

// GetStringPtr decodes a nullable String, returning nil for the null
// encoding and a non-nil pointer (possibly to "") otherwise.
func GetStringPtr(b *Buffer) (*string, error) {
	bs, isNull, err := getByteStringMaybeNull(b)
	if err != nil {
		return nil, err
	}
	if isNull {
		return nil, nil
	}
	s := string(bs)
	return &s, nil
}

// PutByteString encodes a ByteString: Int32 length, -1 for nil, 0 for a
// non-nil empty slice, then the raw bytes (Spec Part 6 Section 5.2.2.4).
func PutByteString(b *Buffer, data []byte) error {
	if data == nil {
		return PutInt32(b, NullLength)
	}
	if err := PutInt32(b, int32(len(data))); err != nil {
		return err
	}
	_, err := b.Write(data)
	return err
}

// GetByteString decodes a ByteString. The null encoding (-1) and the empty
// encoding (0) both decode to a zero-length, non-nil slice at this level;
// use getByteStringMaybeNull to distinguish them.
func GetByteString(b *Buffer) ([]byte, error) {
	data, _, err := getByteStringMaybeNull(b)
	return data, err
}

func getByteStringMaybeNull(b *Buffer) (data []byte, isNull bool, err error) {
	n, err := GetInt32(b)
	if err != nil {
		return nil, false, err
	}
	if n == NullLength {
		return []byte{}, true, nil
	}
	if n < 0 {
		return nil, false, ErrBadDecoding
	}
	if int(n) > b.MaximumSize() {
		return nil, false, ErrBadDecoding
	}
	raw, err := b.Read(int(n))
	if err != nil {
		return nil, false, ErrBadDecoding
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, false, nil
}

// PutDateTime encodes a time.Time as the signed 64-bit tick count since the
// OPC UA epoch (1601-01-01 UTC). Values outside the representable window
// are rejected rather than clamped, per Spec Section 4.1's sign/overflow
// rules; clamping happens one layer up where "outside range" has a defined
// application meaning (MinDateTime/MaxDateTime sentinels).
func PutDateTime(b *Buffer, t time.Time) error {
	ticks, err := DateTimeTicks(t)
	if err != nil {
		return err
	}
	return PutInt64(b, ticks)
}

// GetDateTime decodes a DateTime tick count into a time.Time.
func GetDateTime(b *Buffer) (time.Time, error) {
	ticks, err := GetInt64(b)
	if err != nil {
		return time.Time{}, err
	}
	return TimeFromDateTimeTicks(ticks), nil
}

// DateTimeTicks converts a time.Time to OPC UA 100ns-tick form, failing
// with ErrDateTimeRange if t falls outside [MinDateTime, MaxDateTime]
// (e.g. the zero time.Time, which predates the OPC UA epoch by a wide
// margin). Precision below 100ns is truncated.
func DateTimeTicks(t time.Time) (int64, error) {
	if t.Before(MinDateTime) || t.After(MaxDateTime) {
		return 0, ErrDateTimeRange
	}
	return (t.Unix()+unixToDateTimeTicks/ticksPerSecond)*ticksPerSecond + int64(t.Nanosecond())/100, nil
}

// TimeFromDateTimeTicks converts an OPC UA tick count back to time.Time.
func TimeFromDateTimeTicks(ticks int64) time.Time {
	return time.Unix(ticks/ticksPerSecond-unixToDateTimeTicks/ticksPerSecond, ticks%ticksPerSecond*100).UTC()
}
