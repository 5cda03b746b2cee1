// Package session implements the OPC UA Session layer (L4): Create/
// Activate/Close, re-binding a session onto a new secure channel after
// the old one is lost, orphaned-session reactivation, and the
// request/response correlation and timeout scanning that sit above the
// secure-channel layer (Spec Sections 3.2, 4.4).
package session

import "errors"

var (
	ErrInvalidState        = errors.New("session: operation not valid in current state")
	ErrSessionTableFull    = errors.New("session: table at capacity")
	ErrDuplicateSession    = errors.New("session: id already in use")
	ErrInvalidSessionID    = errors.New("session: zero or unknown session id")
	ErrSessionTimedOut     = errors.New("session: inactivity timeout elapsed")
	ErrAuthenticationTokenMismatch = errors.New("session: authenticationToken does not match the session's channel binding")
	ErrNotActivated        = errors.New("session: session has not been activated")
	ErrUserRejected        = errors.New("session: user identity token rejected")
	ErrPendingTableFull    = errors.New("session: pending-request table at capacity")
	ErrUnknownRequestHandle = errors.New("session: response references an unknown requestHandle")
	ErrDispatchClosed      = errors.New("session: dispatch queue is closed")
)
