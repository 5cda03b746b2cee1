package securechannel

import (
	"time"

	"github.com/uasc/opcua-sc/pkg/ua"
	"github.com/uasc/opcua-sc/pkg/uatcp"
)

// BeginRenew transitions a connected channel into ScConnectedRenew and
// performs a TokenRequestRenew OPN exchange on the same channel id, per
// Spec Section 4.3.1's renew path ("no new TCP connection, no new
// channel id"). It returns ErrRenewNotDue unless RenewDue(now) holds,
// unless force is set (used for a caller-initiated immediate renew).
// On success the new token is promoted to current and the prior current
// token becomes previous, acceptable for its grace window (Spec Section
// 4.3.3) — callers must keep calling CompleteRenewTick to drop it once
// that window elapses.
func (c *SecureChannel) BeginRenew(requestedLifetime time.Duration, now time.Time, force bool) (*Token, error) {
	if !force && !c.RenewDue(now) {
		return nil, ErrRenewNotDue
	}
	c.setState(StateScConnectedRenew)

	clientNonce, err := c.profile.RandomNonce(clientNonceLength)
	if err != nil {
		c.setState(StateScConnected)
		return nil, err
	}

	c.mu.Lock()
	requestID := c.nextRequestID
	c.nextRequestID++
	c.mu.Unlock()

	req := OpenRequest{
		Header: ua.RequestHeader{
			Timestamp:     NowTicks(now),
			RequestHandle: requestID,
		},
		ClientProtocolVersion: 0,
		RequestType:           TokenRequestRenew,
		SecurityMode:          c.securityMode,
		ClientNonce:           clientNonce,
		RequestedLifetime:     uint32(requestedLifetime.Milliseconds()),
	}
	body := ua.NewGrowableBuffer(512, 8192)
	if err := req.Encode(body); err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	secHeader := uatcp.AsymmetricSecurityHeader{SecurityPolicyURI: c.securityPolicyURI}
	if c.securityMode != SecurityModeNone {
		secHeader.SenderCertificate = c.localCertificate
		thumb, err := c.profile.CertificateThumbprint(c.peerCertificate)
		if err != nil {
			return nil, err
		}
		secHeader.ReceiverCertificateThumbprint = thumb
	}

	frame, err := c.encodeAsymmetricFrame(uatcp.MessageTypeOpenSecureChannel, secHeader, requestID, body.Bytes())
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	if err := c.conn.WriteRawFrame(frame); err != nil {
		c.setState(StateDisconnected)
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

	token, err := c.deriveToken(resp.SecurityToken, clientNonce, resp.ServerNonce)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	c.promoteToken(token, time.Now())
	c.setState(StateScConnected)
	return token, nil
}

// CompleteRenewTick drops the previous token once its overlap grace window
// has elapsed. pkg/opcua's Client and Server receive loops call it each
// time their read deadline wakes them.
func (c *SecureChannel) CompleteRenewTick(now time.Time) {
	c.expirePreviousToken(now)
}
