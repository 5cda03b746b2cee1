// Package ua implements the OPC UA Binary encoding primitives: growable and
// fixed byte buffers, the built-in wire types (Boolean, numeric types,
// String, ByteString, DateTime), NodeId/ExpandedNodeId, DiagnosticInfo, and a
// minimal Variant/DataValue sufficient to carry request/response headers.
//
// Encoding of full service payloads (the structures carried inside a
// Variant's application body) is out of scope here; callers supply their own
// encode(T)/decode(T) for service-specific structures and use this package
// only for the builtin wire grammar those encoders are built from.
package ua

import "errors"

// Decode/encode failures. These map to OPC UA status codes at the layer
// that has a StatusCode vocabulary (securechannel, session); this package
// only needs to distinguish them internally.
var (
	ErrWouldOverflow    = errors.New("ua: write would exceed buffer maximum size")
	ErrBadDecoding      = errors.New("ua: malformed encoding")
	ErrNegativeLength   = errors.New("ua: negative length not permitted here")
	ErrPositionOOB      = errors.New("ua: position out of bounds")
	ErrLengthOOB        = errors.New("ua: length out of bounds")
	ErrUnknownNodeIDFmt = errors.New("ua: unrecognized NodeId encoding byte")
	ErrDateTimeRange    = errors.New("ua: time value outside DateTime's representable range")
)
