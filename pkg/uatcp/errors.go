package uatcp

import "errors"

var (
	ErrNoHandler            = errors.New("uatcp: no message handler configured")
	ErrClosed               = errors.New("uatcp: transport closed")
	ErrAlreadyStarted       = errors.New("uatcp: transport already started")
	ErrInvalidAddress       = errors.New("uatcp: invalid address")
	ErrMessageTooShort      = errors.New("uatcp: message too short to contain a valid header")
	ErrInvalidMessageType   = errors.New("uatcp: unrecognized message type")
	ErrInvalidChunkType     = errors.New("uatcp: unrecognized chunk (isFinal) flag")
	ErrHelloExpected        = errors.New("uatcp: expected HEL as first message on connection")
	ErrBufferSizeTooSmall   = errors.New("uatcp: receiveBufferSize below the 8192 floor")
	ErrMessageSizeExceeded  = errors.New("uatcp: chunk exceeds negotiated maxMessageSize")
	ErrChunkCountExceeded   = errors.New("uatcp: reassembly exceeds negotiated maxChunkCount")
	ErrUnknownChannel       = errors.New("uatcp: chunk refers to an unknown secure channel id")
	ErrForgedChunk          = errors.New("uatcp: chunk arrived for a requestId whose message was already completed")
	ErrHandshakeTimedOut    = errors.New("uatcp: HEL/ACK handshake did not complete in time")
)
