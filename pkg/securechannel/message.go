package securechannel

import (
	"time"

	"github.com/uasc/opcua-sc/pkg/ua"
	"github.com/uasc/opcua-sc/pkg/uatcp"
)

// EncodeMessage renders payload as one or more MSG chunks, signing and
// (when the channel's security mode requires it) encrypting each chunk
// independently with the current token's send keys, per Spec Section
// 4.3.2 steps 1-5 and Section 4.2's chunking rule: a payload too large for
// the peer's negotiated receive buffer is split into ChunkIntermediate
// frames followed by one ChunkFinal frame, each carrying its own
// sequenceHeader (so its own sequence number) under the shared requestID.
func (c *SecureChannel) EncodeMessage(requestID uint32, payload []byte) ([][]byte, error) {
	return c.encodeSymmetricFrames(uatcp.MessageTypeMessage, requestID, payload)
}

// encodeSymmetricFrames is EncodeMessage generalized over the wire message
// type, so CloseSecureChannelRequest (CLO) can reuse the same
// split/sign/encrypt machinery as ordinary MSG chunks (Spec Section 4.3.4:
// CLO is signed/encrypted exactly like MSG, just under a different message
// type marker).
func (c *SecureChannel) encodeSymmetricFrames(mt uatcp.MessageType, requestID uint32, payload []byte) ([][]byte, error) {
	c.mu.Lock()
	if !c.state.IsConnected() {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	if c.currentToken == nil {
		c.mu.Unlock()
		return nil, ErrTokenUnknown
	}
	token := c.currentToken
	limits := c.limits
	c.mu.Unlock()

	fragments := splitPayload(payload, c.maxFragmentSize(limits))
	frames := make([][]byte, len(fragments))
	for i, fragment := range fragments {
		ct := uatcp.ChunkIntermediate
		if i == len(fragments)-1 {
			ct = uatcp.ChunkFinal
		}
		seq := c.nextSeq()
		frame, err := c.encodeChunk(mt, ct, requestID, seq, token, fragment)
		if err != nil {
			return nil, err
		}
		frames[i] = frame
	}
	return frames, nil
}

// maxFragmentSize returns the largest service-payload slice that still
// fits in one chunk once the common header, channelId, symmetric security
// header, sequence header, worst-case PKCS#7 padding, and signature are
// accounted for, bounded by the peer's negotiated receive buffer (Spec
// Section 4.2's "chunks must not exceed the receiver's advertised
// ReceiveBufferSize").
func (c *SecureChannel) maxFragmentSize(limits uatcp.Limits) int {
	bufSize := int(limits.SendBufferSize)
	if bufSize <= 0 {
		bufSize = 8192
	}
	sigLen := 0
	if c.securityMode != SecurityModeNone {
		sigLen = c.profile.SignatureLength()
	}
	const channelIDSize = 4
	const symHeaderSize = 4
	const seqHeaderSize = 8
	overhead := uatcp.CommonHeaderSize + channelIDSize + symHeaderSize + seqHeaderSize + sigLen
	if c.securityMode == SecurityModeSignAndEncrypt {
		overhead += c.profile.BlockSize() // worst-case PKCS#7 padding
	}
	max := bufSize - overhead
	if max < 1 {
		max = 1
	}
	return max
}

// splitPayload divides payload into chunks of at most maxFragment bytes.
// An empty payload still yields one (empty) fragment, so a zero-length
// message still produces a single ChunkFinal frame.
func splitPayload(payload []byte, maxFragment int) [][]byte {
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(payload) > 0 {
		n := maxFragment
		if n > len(payload) {
			n = len(payload)
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out
}

// encodeChunk renders exactly one wire chunk carrying fragment under seq,
// implementing Spec Section 4.3.2 steps 1-5 for that chunk alone:
//
//  1. sequenceHeader || fragment is padded to the cipher's block size
//     (SignAndEncrypt only)
//  2. the result is symmetrically encrypted (SignAndEncrypt only)
//  3. a signature is computed over header || channelId || symSecurityHeader || body
//     (skipped for SecurityModeNone)
//  4. the signature is appended
//  5. the whole frame is returned as a single chunk for the caller to write
func (c *SecureChannel) encodeChunk(mt uatcp.MessageType, ct uatcp.ChunkType, requestID, seq uint32, token *Token, fragment []byte) ([]byte, error) {
	seqHeader := uatcp.SequenceHeader{SequenceNumber: seq, RequestID: requestID}
	symHeader := uatcp.SymmetricSecurityHeader{TokenID: token.ID}

	plain := ua.NewGrowableBuffer(512, len(fragment)+1024)
	if err := seqHeader.Encode(plain); err != nil {
		return nil, err
	}
	if _, err := plain.Write(fragment); err != nil {
		return nil, err
	}

	var cipherBytes []byte
	if c.securityMode == SecurityModeSignAndEncrypt {
		padded := pkcs7Pad(plain.Bytes(), c.profile.BlockSize())
		enc, err := c.profile.SymEncrypt(token.SendKeys.EncryptingKey, token.SendKeys.IV, padded)
		if err != nil {
			return nil, err
		}
		cipherBytes = enc
	} else {
		cipherBytes = plain.Bytes()
	}

	unsigned := ua.NewGrowableBuffer(512, len(cipherBytes)+1024)
	unsigned.SetPosition(uatcp.CommonHeaderSize)
	if err := uatcp.EncodeChannelID(unsigned, c.id); err != nil {
		return nil, err
	}
	if err := symHeader.Encode(unsigned); err != nil {
		return nil, err
	}
	if _, err := unsigned.Write(cipherBytes); err != nil {
		return nil, err
	}

	var signature []byte
	if c.securityMode != SecurityModeNone {
		stampHeader(unsigned, mt, ct)
		sig, err := c.profile.SymSign(token.SendKeys.SigningKey, unsigned.Bytes())
		if err != nil {
			return nil, err
		}
		signature = sig
	}

	total := unsigned.Length() + len(signature)
	full := ua.NewFixedBuffer(total)
	hdr := uatcp.CommonHeader{MessageType: mt, ChunkType: ct, MessageSize: uint32(total)}
	if err := hdr.Encode(full); err != nil {
		return nil, err
	}
	if _, err := full.Write(unsigned.Bytes()[uatcp.CommonHeaderSize:]); err != nil {
		return nil, err
	}
	if len(signature) > 0 {
		if _, err := full.Write(signature); err != nil {
			return nil, err
		}
	}
	return full.Bytes(), nil
}

// DecodedMessage is the result of successfully verifying, decrypting, and
// reassembling one complete inbound MSG/CLO message, which may have
// arrived as one chunk or as an Intermediate/Final run of chunks.
type DecodedMessage struct {
	RequestID uint32
	Payload   []byte
}

// decodedChunk is the result of verifying and decrypting exactly one
// inbound chunk: the ids needed to key reassembly, and the fragment of
// the service payload it carried (everything after that chunk's own
// sequence header).
type decodedChunk struct {
	channelID uint32
	requestID uint32
	fragment  []byte
}

// decodeChunk reverses encodeChunk for a single chunk: it verifies the
// signature (if the security mode requires one), decrypts, strips
// padding, and checks that chunk's sequence number for strict
// monotonicity (P2/B3), accepting the token if it is either current or
// within the previous token's grace window (P1). It must run once per
// physical chunk — the signature, encryption, padding, and sequence
// header all live inside that chunk's own envelope, not the reassembled
// message's (Spec Section 4.2/4.3.2: each chunk is independently signed
// and, under SignAndEncrypt, independently encrypted).
func (c *SecureChannel) decodeChunk(mt uatcp.MessageType, ct uatcp.ChunkType, body []byte, now time.Time) (decodedChunk, error) {
	b := ua.NewBufferFromBytes(body)
	channelID, err := uatcp.DecodeChannelID(b)
	if err != nil {
		return decodedChunk{}, err
	}
	if channelID != c.id {
		return decodedChunk{}, ErrInvalidState
	}
	symHeader, err := uatcp.DecodeSymmetricSecurityHeader(b)
	if err != nil {
		return decodedChunk{}, err
	}

	token, err := c.acceptToken(symHeader.TokenID, now)
	if err != nil {
		return decodedChunk{}, err
	}

	rest, err := b.Read(b.Remaining())
	if err != nil {
		return decodedChunk{}, err
	}

	var cipherBytes, signature []byte
	if c.securityMode != SecurityModeNone {
		sigLen := c.profile.SignatureLength()
		if len(rest) < sigLen {
			return decodedChunk{}, ErrSecurityChecksFailed
		}
		cipherBytes = rest[:len(rest)-sigLen]
		signature = rest[len(rest)-sigLen:]

		signed := body[:len(body)-sigLen]
		signedFrame := make([]byte, uatcp.CommonHeaderSize+len(signed))
		hdr := uatcp.CommonHeader{MessageType: mt, ChunkType: ct, MessageSize: uint32(len(signedFrame))}
		hdrBuf := ua.NewFixedBuffer(uatcp.CommonHeaderSize)
		if err := hdr.Encode(hdrBuf); err != nil {
			return decodedChunk{}, err
		}
		copy(signedFrame, hdrBuf.Bytes())
		copy(signedFrame[uatcp.CommonHeaderSize:], signed)

		if err := c.profile.SymVerify(token.RecvKeys.SigningKey, signedFrame, signature); err != nil {
			return decodedChunk{}, ErrSecurityChecksFailed
		}
	} else {
		cipherBytes = rest
	}

	var plain []byte
	if c.securityMode == SecurityModeSignAndEncrypt {
		dec, err := c.profile.SymDecrypt(token.RecvKeys.EncryptingKey, token.RecvKeys.IV, cipherBytes)
		if err != nil {
			return decodedChunk{}, ErrSecurityChecksFailed
		}
		unpadded, err := pkcs7Unpad(dec, c.profile.BlockSize())
		if err != nil {
			return decodedChunk{}, ErrSecurityChecksFailed
		}
		plain = unpadded
	} else {
		plain = cipherBytes
	}

	pb := ua.NewBufferFromBytes(plain)
	seqHeader, err := uatcp.DecodeSequenceHeader(pb)
	if err != nil {
		return decodedChunk{}, err
	}
	if err := c.checkRecvSeq(seqHeader.SequenceNumber, false); err != nil {
		return decodedChunk{}, err
	}
	fragment, err := pb.Read(pb.Remaining())
	if err != nil {
		return decodedChunk{}, err
	}
	return decodedChunk{channelID: channelID, requestID: seqHeader.RequestID, fragment: fragment}, nil
}

// stampHeader overwrites the first CommonHeaderSize bytes of b (which must
// have been positioned past them during the first encoding pass) with the
// real common header, now that the final message size is known — needed
// because the signature must cover the header bytes too (Spec Section
// 4.3.2's "signed from start of chunk").
func stampHeader(b *ua.Buffer, mt uatcp.MessageType, ct uatcp.ChunkType) {
	hdr := uatcp.CommonHeader{MessageType: mt, ChunkType: ct, MessageSize: uint32(b.Length())}
	hdrBuf := ua.NewFixedBuffer(uatcp.CommonHeaderSize)
	hdr.Encode(hdrBuf)
	copy(b.Bytes()[:uatcp.CommonHeaderSize], hdrBuf.Bytes())
}

// pkcs7Pad pads data to a multiple of blockSize using the standard
// PKCS#7 scheme (every padding byte holds the pad length, including when
// data is already block-aligned — a full block of padding is added).
func pkcs7Pad(data []byte, blockSize int) []byte {
	if blockSize <= 1 {
		return data
	}
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if blockSize <= 1 || len(data) == 0 {
		return data, nil
	}
	padLen := int(data[len(data)-1])
	if padLen <= 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrSecurityChecksFailed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrSecurityChecksFailed
		}
	}
	return data[:len(data)-padLen], nil
}
