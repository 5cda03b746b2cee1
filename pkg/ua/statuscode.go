package ua

import "fmt"

// StatusCode is the 32-bit result code threaded through every OPC UA
// request/response header and fault. The two high bits classify severity
// (Good/Uncertain/Bad); the remaining bits are a sub-code. Only the handful
// of sub-codes this stack itself produces are enumerated here — application
// service sub-codes are the concern of the ServiceHandler/service-payload
// encoder, not this transport-and-session core.
type StatusCode uint32

const severityMask StatusCode = 0xC0000000

const (
	severityGood      StatusCode = 0x00000000
	severityUncertain StatusCode = 0x40000000
	severityBad       StatusCode = 0x80000000
)

// IsGood, IsBad, IsUncertain classify a StatusCode by its severity bits.
func (s StatusCode) IsGood() bool      { return s&severityMask == severityGood }
func (s StatusCode) IsBad() bool       { return s&severityMask == severityBad }
func (s StatusCode) IsUncertain() bool { return s&severityMask == severityUncertain }

// String renders the raw 32-bit value in hex; none of the named constants
// carry a symbolic identifier table here since that belongs to the
// service-payload layer, not this transport-and-session core.
func (s StatusCode) String() string { return fmt.Sprintf("0x%08X", uint32(s)) }

// Status codes produced by the chunk transport, secure channel, and session
// layers. Values follow the OPC UA Part 4 Annex A numbering.
const (
	Good StatusCode = 0x00000000

	BadDecodingError           StatusCode = 0x80060000
	BadEncodingError           StatusCode = 0x80070000
	BadTimeout                 StatusCode = 0x800A0000
	BadSecurityChecksFailed    StatusCode = 0x80130000
	BadCertificateInvalid      StatusCode = 0x80160000
	BadRequestHandleInvalid    StatusCode = 0x80580000
	BadRequestTooLarge         StatusCode = 0x80B80000
	BadResponseTooLarge        StatusCode = 0x80B90000
	BadTcpServerTooBusy        StatusCode = 0x807B0000
	BadTcpMessageTypeInvalid   StatusCode = 0x807C0000
	BadTcpSecureChannelUnknown StatusCode = 0x807D0000
	BadTcpMessageTooLarge      StatusCode = 0x807E0000
	BadTcpNotEnoughResources   StatusCode = 0x807F0000
	BadTcpInternalError        StatusCode = 0x80800000
	BadTcpEndpointUrlInvalid   StatusCode = 0x80810000
	BadConnectionRejected      StatusCode = 0x80AC0000
	BadConnectionClosed        StatusCode = 0x80AE0000
	BadSecureChannelClosed     StatusCode = 0x80560000
	BadSecureChannelIDInvalid  StatusCode = 0x80240000
	BadSessionIDInvalid        StatusCode = 0x80250000
	BadSessionClosed           StatusCode = 0x80260000
	BadSessionNotActivated     StatusCode = 0x80270000
	BadSequenceNumberInvalid   StatusCode = 0x80280000
	BadInvalidState            StatusCode = 0x80330000
	BadIdentityTokenInvalid    StatusCode = 0x80200000
	BadIdentityTokenRejected   StatusCode = 0x80210000
	BadUserAccessDenied        StatusCode = 0x801F0000
	BadUnexpectedError         StatusCode = 0x80010000
	BadOutOfMemory             StatusCode = 0x800B0000
	BadNoCommunication         StatusCode = 0x80310000
)
