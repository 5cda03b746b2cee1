package opcua

import "errors"

var (
	ErrNotConnected     = errors.New("opcua: client has no open secure channel")
	ErrNoSession        = errors.New("opcua: no active session")
	ErrRequestTimeout   = errors.New("opcua: request exceeded its TimeoutHint")
	ErrUnexpectedType   = errors.New("opcua: response did not match the expected service type")
	ErrServiceFault     = errors.New("opcua: server returned a ServiceFault")
	ErrClosed           = errors.New("opcua: client is closed")
	ErrAlreadyConnected = errors.New("opcua: client already has an open secure channel")
)
