package securechannel

import (
	"sync/atomic"
	"time"

	"github.com/uasc/opcua-sc/pkg/ua"
	"github.com/uasc/opcua-sc/pkg/uatcp"
)

// clientNonceLength is the size of the client/server nonces exchanged on
// OpenSecureChannel, used as DeriveKeys' seed material (Spec Section
// 4.3.2). 32 bytes matches the DefaultCryptoProfile's HMAC-SHA256 and
// AES-256 key sizes with room to spare.
const clientNonceLength = 32

// encodeAsymmetricFrame renders one OPN chunk (CLO goes through the
// symmetric path). Encryption (SignAndEncrypt only) covers
// sequenceHeader || payload; signing (when mode requires it) covers
// header || channelId || asymSecurityHeader || that encrypted (or, under
// Sign, plain) region, and the signature is appended unencrypted. OPN
// bodies are small (nonces, lifetimes, a security token) so this treats
// the whole plaintext as a single asymmetric cipher block, unlike
// EncodeMessage's block-cipher framing for MSG.
func (c *SecureChannel) encodeAsymmetricFrame(mt uatcp.MessageType, secHeader uatcp.AsymmetricSecurityHeader, requestID uint32, payload []byte) ([]byte, error) {
	seqHeader := uatcp.SequenceHeader{SequenceNumber: c.nextSeq(), RequestID: requestID}

	unsigned := ua.NewGrowableBuffer(512, len(payload)+4096)
	unsigned.SetPosition(uatcp.CommonHeaderSize)
	if err := uatcp.EncodeChannelID(unsigned, c.id); err != nil {
		return nil, err
	}
	if err := secHeader.Encode(unsigned); err != nil {
		return nil, err
	}

	plain := ua.NewGrowableBuffer(512, len(payload)+1024)
	if err := seqHeader.Encode(plain); err != nil {
		return nil, err
	}
	if _, err := plain.Write(payload); err != nil {
		return nil, err
	}

	var afterSecurityHeader []byte
	if c.securityMode == SecurityModeSignAndEncrypt {
		enc, err := c.profile.AsymEncrypt(c.peerCertificate, plain.Bytes())
		if err != nil {
			return nil, err
		}
		afterSecurityHeader = enc
	} else {
		afterSecurityHeader = plain.Bytes()
	}
	if _, err := unsigned.Write(afterSecurityHeader); err != nil {
		return nil, err
	}

	var signature []byte
	if c.securityMode != SecurityModeNone {
		stampHeader(unsigned, mt, uatcp.ChunkFinal)
		sig, err := c.profile.AsymSign(unsigned.Bytes())
		if err != nil {
			return nil, err
		}
		signature = sig
	}

	total := unsigned.Length() + len(signature)
	full := ua.NewFixedBuffer(total)
	hdr := uatcp.CommonHeader{MessageType: mt, ChunkType: uatcp.ChunkFinal, MessageSize: uint32(total)}
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

// decodeAsymmetricFrame reverses encodeAsymmetricFrame: it verifies the
// signature against peerCert (when the mode requires one), decrypts, and
// returns the sequence header plus plaintext payload.
func (c *SecureChannel) decodeAsymmetricFrame(rawFrame []byte, body []byte, peerCert []byte) (uatcp.SequenceHeader, []byte, error) {
	b := ua.NewBufferFromBytes(body)
	if _, err := uatcp.DecodeChannelID(b); err != nil {
		return uatcp.SequenceHeader{}, nil, err
	}
	if _, err := uatcp.DecodeAsymmetricSecurityHeader(b); err != nil {
		return uatcp.SequenceHeader{}, nil, err
	}
	rest, err := b.Read(b.Remaining())
	if err != nil {
		return uatcp.SequenceHeader{}, nil, err
	}

	var cipherBytes, signature []byte
	if c.securityMode != SecurityModeNone {
		sigLen := c.profile.AsymSignatureLength()
		if sigLen == 0 || len(rest) < sigLen {
			return uatcp.SequenceHeader{}, nil, ErrSecurityChecksFailed
		}
		cipherBytes = rest[:len(rest)-sigLen]
		signature = rest[len(rest)-sigLen:]
		signed := rawFrame[:len(rawFrame)-sigLen]
		if err := c.profile.AsymVerify(peerCert, signed, signature); err != nil {
			return uatcp.SequenceHeader{}, nil, ErrSecurityChecksFailed
		}
	} else {
		cipherBytes = rest
	}

	var plain []byte
	if c.securityMode == SecurityModeSignAndEncrypt {
		dec, err := c.profile.AsymDecrypt(cipherBytes)
		if err != nil {
			return uatcp.SequenceHeader{}, nil, ErrSecurityChecksFailed
		}
		plain = dec
	} else {
		plain = cipherBytes
	}

	pb := ua.NewBufferFromBytes(plain)
	seqHeader, err := uatcp.DecodeSequenceHeader(pb)
	if err != nil {
		return uatcp.SequenceHeader{}, nil, err
	}
	payload, err := pb.Read(pb.Remaining())
	if err != nil {
		return uatcp.SequenceHeader{}, nil, err
	}
	return seqHeader, payload, nil
}

// Open performs the client side of the OpenSecureChannel handshake
// (Spec Section 4.3.1: Init -> ScInit -> ScConnected) over conn, deriving
// the first symmetric token from the client and server nonces. It blocks
// until the server's response arrives or the deadline elapses.
func (c *SecureChannel) Open(requestType TokenRequestType, requestedLifetime time.Duration, deadline time.Time) (*Token, error) {
	c.setState(StateScInit)

	clientNonce, err := c.profile.RandomNonce(clientNonceLength)
	if err != nil {
		return nil, err
	}

	req := OpenRequest{
		Header: ua.RequestHeader{
			Timestamp:     NowTicks(time.Now()),
			RequestHandle: c.nextRequestID,
			TimeoutHint:   uint32(time.Until(deadline).Milliseconds()),
		},
		ClientProtocolVersion: 0,
		RequestType:           requestType,
		SecurityMode:          c.securityMode,
		ClientNonce:           clientNonce,
		RequestedLifetime:     uint32(requestedLifetime.Milliseconds()),
	}
	body := ua.NewGrowableBuffer(512, 8192)
	if err := req.Encode(body); err != nil {
		return nil, err
	}

	secHeader := uatcp.AsymmetricSecurityHeader{
		SecurityPolicyURI: c.securityPolicyURI,
	}
	if c.securityMode != SecurityModeNone {
		secHeader.SenderCertificate = c.localCertificate
		thumb, err := c.profile.CertificateThumbprint(c.peerCertificate)
		if err != nil {
			return nil, err
		}
		secHeader.ReceiverCertificateThumbprint = thumb
	}

	requestID := c.nextRequestID
	c.nextRequestID++
	frame, err := c.encodeAsymmetricFrame(uatcp.MessageTypeOpenSecureChannel, secHeader, requestID, body.Bytes())
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteRawFrame(frame); err != nil {
		return nil, err
	}

	ch, rawBody, err := c.conn.ReadChunk()
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	if ch.MessageType != uatcp.MessageTypeOpenSecureChannel {
		c.setState(StateDisconnected)
		return nil, ErrUnexpectedResponseType
	}

	full := make([]byte, uatcp.CommonHeaderSize+len(rawBody))
	hdrBuf := ua.NewFixedBuffer(uatcp.CommonHeaderSize)
	ch.Encode(hdrBuf)
	copy(full, hdrBuf.Bytes())
	copy(full[uatcp.CommonHeaderSize:], rawBody)

	_, payload, err := c.decodeAsymmetricFrame(full, rawBody, c.peerCertificate)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	resp, err := DecodeOpenResponse(ua.NewBufferFromBytes(payload))
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	c.mu.Lock()
	c.id = resp.SecurityToken.ChannelID
	c.mu.Unlock()
	c.resetSendSeq(0)

	token, err := c.deriveToken(resp.SecurityToken, clientNonce, resp.ServerNonce)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	c.promoteToken(token, time.Now())
	c.setState(StateScConnected)
	return token, nil
}

// deriveToken implements Spec Section 4.3.2's key derivation: each
// direction's keys come from DeriveKeys(secret=peerNonce, seed=localNonce)
// for the send side and DeriveKeys(secret=localNonce, seed=peerNonce) for
// the receive side, mirroring how OPC UA binds each side's traffic keys
// to the nonce its own private key never leaves.
func (c *SecureChannel) deriveToken(st SecurityToken, clientNonce, serverNonce []byte) (*Token, error) {
	outLen := c.profile.SigningKeyLength() + c.profile.EncryptingKeyLength() + c.profile.BlockSize()

	var sendSeed, sendSecret, recvSeed, recvSecret []byte
	if c.role == RoleClient {
		sendSecret, sendSeed = serverNonce, clientNonce
		recvSecret, recvSeed = clientNonce, serverNonce
	} else {
		sendSecret, sendSeed = clientNonce, serverNonce
		recvSecret, recvSeed = serverNonce, clientNonce
	}

	sendRaw, err := c.profile.DeriveKeys(sendSecret, sendSeed, outLen)
	if err != nil {
		return nil, err
	}
	recvRaw, err := c.profile.DeriveKeys(recvSecret, recvSeed, outLen)
	if err != nil {
		return nil, err
	}

	lifetime := time.Duration(st.RevisedLifetime) * time.Millisecond
	now := time.Now()
	return &Token{
		ID:         st.TokenID,
		SendKeys:   partitionKeys(sendRaw, c.profile),
		RecvKeys:   partitionKeys(recvRaw, c.profile),
		IssuedAt:   now,
		ValidUntil: now.Add(lifetime),
		Lifetime:   lifetime,
	}, nil
}

// Accept performs the server side of the initial OpenSecureChannel
// handshake: it reads one OPN chunk, validates the peer certificate (when
// required), derives the token, and writes the OpenResponse (Spec
// Section 4.3.1).
func (s *SecureChannel) Accept() error {
	s.setState(StateScInit)

	ch, rawBody, err := s.conn.ReadChunk()
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}
	if ch.MessageType != uatcp.MessageTypeOpenSecureChannel {
		s.setState(StateDisconnected)
		return ErrUnexpectedResponseType
	}
	return s.handleOpenFrame(ch, rawBody)
}

// handleOpenFrame processes one already-read OPN chunk body, whether it
// is the connection's first OpenSecureChannelRequest (via Accept) or a
// client-initiated renewal arriving mid-stream (via Receive, Spec Section
// 4.3.1's renew path: "no new TCP connection, no new channel id" — the
// server learns of a renewal the same way it learns of the initial open,
// by the next chunk off the wire simply being an OPN rather than a MSG).
// It does not itself distinguish TokenRequestIssue from TokenRequestRenew
// beyond what OpenRequest.RequestType records; promoteToken's demote-
// current-to-previous behavior makes the two cases converge regardless.
func (s *SecureChannel) handleOpenFrame(ch uatcp.CommonHeader, rawBody []byte) error {
	b := ua.NewBufferFromBytes(rawBody)
	if _, err := uatcp.DecodeChannelID(b); err != nil {
		return err
	}
	secHeader, err := uatcp.DecodeAsymmetricSecurityHeader(b)
	if err != nil {
		return err
	}
	if len(secHeader.SenderCertificate) > 0 {
		if s.pki == nil {
			return ErrNoPKI
		}
		if ok, reason := s.pki.ValidateChain(secHeader.SenderCertificate); !ok {
			s.setState(StateDisconnected)
			return &PeerCertRejected{Reason: reason}
		}
		s.peerCertificate = secHeader.SenderCertificate
	}

	full := make([]byte, uatcp.CommonHeaderSize+len(rawBody))
	hdrBuf := ua.NewFixedBuffer(uatcp.CommonHeaderSize)
	ch.Encode(hdrBuf)
	copy(full, hdrBuf.Bytes())
	copy(full[uatcp.CommonHeaderSize:], rawBody)

	_, payload, err := s.decodeAsymmetricFrame(full, rawBody, s.peerCertificate)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}
	req, err := DecodeOpenRequest(ua.NewBufferFromBytes(payload))
	if err != nil {
		return err
	}
	if req.SecurityMode != s.securityMode {
		s.setState(StateDisconnected)
		return ErrUnknownSecurityMode
	}

	serverNonce, err := s.profile.RandomNonce(clientNonceLength)
	if err != nil {
		return err
	}
	revisedLifetime := clampLifetime(time.Duration(req.RequestedLifetime) * time.Millisecond)

	st := SecurityToken{
		ChannelID:       s.id,
		TokenID:         nextTokenID(),
		CreatedAt:       NowTicks(time.Now()),
		RevisedLifetime: uint32(revisedLifetime.Milliseconds()),
	}
	token, err := s.deriveToken(st, req.ClientNonce, serverNonce)
	if err != nil {
		return err
	}

	resp := OpenResponse{
		Header: ua.ResponseHeader{
			Timestamp:     NowTicks(time.Now()),
			RequestHandle: req.Header.RequestHandle,
			ServiceResult: ua.Good,
		},
		ServerProtocolVersion: 0,
		SecurityToken:         st,
		ServerNonce:           serverNonce,
	}
	respBody := ua.NewGrowableBuffer(512, 8192)
	if err := resp.Encode(respBody); err != nil {
		return err
	}

	secHeaderOut := uatcp.AsymmetricSecurityHeader{SecurityPolicyURI: s.securityPolicyURI}
	if s.securityMode != SecurityModeNone {
		secHeaderOut.SenderCertificate = s.localCertificate
		thumb, err := s.profile.CertificateThumbprint(s.peerCertificate)
		if err != nil {
			return err
		}
		secHeaderOut.ReceiverCertificateThumbprint = thumb
	}

	s.resetSendSeq(0)
	frame, err := s.encodeAsymmetricFrame(uatcp.MessageTypeOpenSecureChannel, secHeaderOut, req.Header.RequestHandle, respBody.Bytes())
	if err != nil {
		return err
	}
	if err := s.conn.WriteRawFrame(frame); err != nil {
		return err
	}

	s.promoteToken(token, time.Now())
	s.setState(StateScConnected)
	return nil
}

// PeerCertRejected wraps a PKI.ValidateChain rejection reason.
type PeerCertRejected struct{ Reason string }

func (e *PeerCertRejected) Error() string { return "securechannel: " + e.Reason }

var tokenIDCounter uint32

// nextTokenID returns a fresh, process-unique security token id. Server
// handles one accepted connection per goroutine (Server.handleConn), each
// of which reaches handleOpenFrame independently, so the counter is
// incremented atomically rather than guarded by any one channel's mutex.
func nextTokenID() uint32 {
	return atomic.AddUint32(&tokenIDCounter, 1)
}
