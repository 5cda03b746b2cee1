package securechannel

import "time"

// UserTokenType enumerates the identity token kinds a server may accept at
// ActivateSession (Spec Section 3.2).
type UserTokenType int

const (
	UserTokenAnonymous UserTokenType = iota
	UserTokenUserName
	UserTokenCertificate
	UserTokenIssuedToken
)

// UserTokenPolicy describes one identity token a server endpoint accepts.
type UserTokenPolicy struct {
	Type                 UserTokenType
	PolicyID             string
	IssuedTokenType      string
	IssuerEndpointURL    string
	SecurityPolicyURI    string
}

// SecurityPolicy names one bundle of algorithms an endpoint offers, with
// the set of modes and user token policies available under it.
type SecurityPolicy struct {
	PolicyURI        string
	Modes            []SecurityMode
	UserTokenPolicies []UserTokenPolicy
	Profile          CryptoProfile
}

// SecureChannelConfig is the client-side, immutable-after-registration
// configuration for one peer target (Spec Section 3.2).
type SecureChannelConfig struct {
	ChannelConfigIdx    int
	PeerURL             string
	SecurityPolicyURI   string
	SecurityMode        SecurityMode
	ClientCertificate   []byte
	ServerCertificate   []byte
	PKI                 PKI
	Profile             CryptoProfile
	RequestedLifetime   time.Duration
}

// EndpointConfig is the server-side, immutable-after-registration
// configuration for one listener (Spec Section 3.2).
type EndpointConfig struct {
	EndpointConfigIdx int
	ListenURL         string
	ServerCertificate []byte
	ServerPrivateKey  []byte
	PKI               PKI
	SecurityPolicies  []SecurityPolicy
	AuthenticationMgr AuthenticationManager
	AuthorizationMgr  AuthorizationManager
}

// AuthenticationManager validates a presented user identity token at
// ActivateSession (Spec Section 6.2, 4.4.5).
type AuthenticationManager interface {
	ValidateUserIdentity(policy UserTokenPolicy, token any) (AuthResult, error)
}

// AuthResult is the outcome of AuthenticationManager.ValidateUserIdentity.
type AuthResult int

const (
	AuthOk AuthResult = iota
	AuthInvalidToken
	AuthRejectedToken
	AuthAccessDenied
	AuthSignatureInvalid
)

// AuthorizationManager authorizes a single Read/Write operation for an
// activated user (Spec Section 6.2). Defined here, alongside
// AuthenticationManager, because both are bound at ActivateSession time;
// pkg/authz supplies the default implementation.
type AuthorizationOperation int

const (
	OperationRead AuthorizationOperation = iota
	OperationWrite
)

type AuthorizationManager interface {
	AuthorizeOperation(op AuthorizationOperation, nodeID any, attributeID uint32, user any) bool
}

// DefaultTokenLifetime is used when a SecureChannelConfig leaves
// RequestedLifetime at zero.
const DefaultTokenLifetime = 60 * time.Minute

// MinTokenLifetime and MaxTokenLifetime clamp a server's revisedLifetime
// (Spec Section 4.3.1: "clamped to an implementation-defined range").
const (
	MinTokenLifetime = 10 * time.Second
	MaxTokenLifetime = 24 * time.Hour
)

// clampLifetime implements the server's revisedLifetime clamp.
func clampLifetime(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return DefaultTokenLifetime
	case requested < MinTokenLifetime:
		return MinTokenLifetime
	case requested > MaxTokenLifetime:
		return MaxTokenLifetime
	default:
		return requested
	}
}
