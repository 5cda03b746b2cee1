// Package securechannel implements the OPC UA Secure Channel (L3): the
// asymmetric OpenSecureChannel handshake, symmetric key derivation, token
// renewal with an overlap window, sequence-number replay protection, and
// per-chunk signing/encryption (Spec Sections 4.3, 6.2).
//
// This package owns no socket — it reads and writes single chunks through
// a pkg/uatcp Conn, verifies and decrypts each chunk on its own, and feeds
// the plaintext fragments into a pkg/uatcp ReassemblyTable that it holds
// per channel; it consumes cryptographic primitives only through the
// CryptoProfile and PKI capability interfaces it defines.
package securechannel

import "errors"

var (
	ErrInvalidState            = errors.New("securechannel: operation not valid in current state")
	ErrUnknownSecurityPolicy   = errors.New("securechannel: unrecognized security policy URI")
	ErrUnknownSecurityMode     = errors.New("securechannel: unrecognized security mode")
	ErrCertificateRejected     = errors.New("securechannel: peer certificate rejected by PKI")
	ErrTokenUnknown            = errors.New("securechannel: chunk references a token id this channel never issued")
	ErrTokenExpired            = errors.New("securechannel: token's overlap grace period has elapsed")
	ErrSequenceNotMonotonic    = errors.New("securechannel: sequence number is not strictly greater than the last accepted one")
	ErrSecurityChecksFailed    = errors.New("securechannel: signature verification or decryption failed")
	ErrRenewNotDue             = errors.New("securechannel: renew requested before 75% of the token lifetime elapsed")
	ErrChannelClosed           = errors.New("securechannel: channel is closed")
	ErrUnexpectedResponseType  = errors.New("securechannel: OPN response did not match the expected encodeable type")
	ErrNoCryptoProfile         = errors.New("securechannel: no CryptoProfile configured for this security policy")
	ErrNoPKI                   = errors.New("securechannel: no PKI configured but a certificate was presented")
)
