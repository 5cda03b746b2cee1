package uatcp

import "github.com/uasc/opcua-sc/pkg/ua"

// CommonHeaderSize is the fixed 8-byte header present on every chunk:
// 3-byte message type, 1-byte chunk (isFinal) flag, 4-byte message size
// (including this header).
const CommonHeaderSize = 8

// CommonHeader is the first 8 bytes of every chunk on the wire.
type CommonHeader struct {
	MessageType MessageType
	ChunkType   ChunkType
	MessageSize uint32
}

func (h CommonHeader) Encode(b *ua.Buffer) error {
	if _, err := b.Write(h.MessageType[:]); err != nil {
		return err
	}
	if _, err := b.Write([]byte{byte(h.ChunkType)}); err != nil {
		return err
	}
	return ua.PutUint32(b, h.MessageSize)
}

// DecodeCommonHeader reads the 8-byte common header and validates both
// discriminators. Callers still need to check MessageSize against the
// negotiated maxMessageSize themselves (Section 4.2).
func DecodeCommonHeader(b *ua.Buffer) (CommonHeader, error) {
	if b.Remaining() < CommonHeaderSize {
		return CommonHeader{}, ErrMessageTooShort
	}
	raw, err := b.Read(3)
	if err != nil {
		return CommonHeader{}, err
	}
	var h CommonHeader
	copy(h.MessageType[:], raw)
	if !h.MessageType.IsValid() {
		return CommonHeader{}, ErrInvalidMessageType
	}
	ct, err := b.Read(1)
	if err != nil {
		return CommonHeader{}, err
	}
	h.ChunkType = ChunkType(ct[0])
	if !h.ChunkType.IsValid() {
		return CommonHeader{}, ErrInvalidChunkType
	}
	h.MessageSize, err = ua.GetUint32(b)
	if err != nil {
		return CommonHeader{}, err
	}
	return h, nil
}

// AsymmetricSecurityHeader precedes the body of every OPN chunk. The
// security policy URI selects the algorithm suite; the certificate fields
// are omitted (empty ByteStrings) when SecurityPolicy is None.
type AsymmetricSecurityHeader struct {
	SecurityPolicyURI         string
	SenderCertificate         []byte
	ReceiverCertificateThumbprint []byte
}

func (h AsymmetricSecurityHeader) Encode(b *ua.Buffer) error {
	if err := ua.PutString(b, h.SecurityPolicyURI); err != nil {
		return err
	}
	if err := ua.PutByteString(b, h.SenderCertificate); err != nil {
		return err
	}
	return ua.PutByteString(b, h.ReceiverCertificateThumbprint)
}

func DecodeAsymmetricSecurityHeader(b *ua.Buffer) (AsymmetricSecurityHeader, error) {
	var h AsymmetricSecurityHeader
	var err error
	if h.SecurityPolicyURI, err = ua.GetString(b); err != nil {
		return AsymmetricSecurityHeader{}, err
	}
	if h.SenderCertificate, err = ua.GetByteString(b); err != nil {
		return AsymmetricSecurityHeader{}, err
	}
	if h.ReceiverCertificateThumbprint, err = ua.GetByteString(b); err != nil {
		return AsymmetricSecurityHeader{}, err
	}
	return h, nil
}

// SymmetricSecurityHeader precedes the body of every MSG/CLO chunk once a
// channel is open: just the token id that was issued in the last
// OpenSecureChannel/renewal response.
type SymmetricSecurityHeader struct {
	TokenID uint32
}

func (h SymmetricSecurityHeader) Encode(b *ua.Buffer) error {
	return ua.PutUint32(b, h.TokenID)
}

func DecodeSymmetricSecurityHeader(b *ua.Buffer) (SymmetricSecurityHeader, error) {
	id, err := ua.GetUint32(b)
	if err != nil {
		return SymmetricSecurityHeader{}, err
	}
	return SymmetricSecurityHeader{TokenID: id}, nil
}

// SequenceHeader is present in every OPN/MSG/CLO chunk body, after the
// security header, and carries the replay-protected sequence number plus
// the correlation id for the request this chunk belongs to (Section 4.3.4).
type SequenceHeader struct {
	SequenceNumber uint32
	RequestID      uint32
}

func (h SequenceHeader) Encode(b *ua.Buffer) error {
	if err := ua.PutUint32(b, h.SequenceNumber); err != nil {
		return err
	}
	return ua.PutUint32(b, h.RequestID)
}

func DecodeSequenceHeader(b *ua.Buffer) (SequenceHeader, error) {
	var h SequenceHeader
	var err error
	if h.SequenceNumber, err = ua.GetUint32(b); err != nil {
		return SequenceHeader{}, err
	}
	if h.RequestID, err = ua.GetUint32(b); err != nil {
		return SequenceHeader{}, err
	}
	return h, nil
}

// ChannelID extracts the secure channel id that immediately follows the
// common header on OPN/MSG/CLO chunks (it has no equivalent on HEL/ACK/ERR,
// which never carry a channel id).
func DecodeChannelID(b *ua.Buffer) (uint32, error) {
	return ua.GetUint32(b)
}

func EncodeChannelID(b *ua.Buffer, id uint32) error {
	return ua.PutUint32(b, id)
}
