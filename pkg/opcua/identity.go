package opcua

import (
	"github.com/uasc/opcua-sc/pkg/authz"
	"github.com/uasc/opcua-sc/pkg/securechannel"
	"github.com/uasc/opcua-sc/pkg/ua"
)

// EncodeUsernameIdentityToken renders the wire form of a UserTokenUserName
// identity token: userName followed by password as a ByteString. A real
// UserNameIdentityToken also carries an EncryptionAlgorithm field for
// encrypting the password under the user token's own policy; this core
// only supports the "None" case authz.UsernamePasswordAuthenticationManager
// validates (Spec Section 9 Open Question (c)), so that field is omitted.
func EncodeUsernameIdentityToken(userName string, password []byte) ([]byte, error) {
	b := ua.NewGrowableBuffer(64, 4096)
	if err := ua.PutString(b, userName); err != nil {
		return nil, err
	}
	if err := ua.PutByteString(b, password); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeUsernameIdentityToken(raw []byte) (authz.UsernameIdentityToken, error) {
	b := ua.NewBufferFromBytes(raw)
	userName, err := ua.GetString(b)
	if err != nil {
		return authz.UsernameIdentityToken{}, err
	}
	password, err := ua.GetByteString(b)
	if err != nil {
		return authz.UsernameIdentityToken{}, err
	}
	return authz.UsernameIdentityToken{UserName: userName, Password: password}, nil
}

// decodeIdentityToken turns the opaque ActivateSessionRequest.UserIdentityToken
// bytes into the `any` value an AuthenticationManager expects, based on the
// declared token type (Spec Section 4.4.5). Unsupported token types decode
// to nil, which every AuthenticationManager in pkg/authz rejects as
// AuthInvalidToken or AuthRejectedToken. UserTokenCertificate falls into
// that default today: Section 4.4.5's bound-signature check over
// (serverCertificate || serverNonce) is not implemented, so a certificate
// token is always treated as absent rather than verified (see DESIGN.md's
// pkg/opcua entry, alongside Open Question (c)).
func decodeIdentityToken(tokenType securechannel.UserTokenType, raw []byte) (any, error) {
	switch tokenType {
	case securechannel.UserTokenAnonymous:
		return nil, nil
	case securechannel.UserTokenUserName:
		return decodeUsernameIdentityToken(raw)
	default:
		return nil, nil
	}
}

func findUserTokenPolicy(policies []securechannel.UserTokenPolicy, t securechannel.UserTokenType) (securechannel.UserTokenPolicy, bool) {
	for _, p := range policies {
		if p.Type == t {
			return p, true
		}
	}
	return securechannel.UserTokenPolicy{}, false
}

// mapAuthResult turns an AuthenticationManager verdict into the StatusCode
// an ActivateSessionResponse's ServiceFault carries back to the client
// (Spec Section 4.4.5).
func mapAuthResult(r securechannel.AuthResult) ua.StatusCode {
	switch r {
	case securechannel.AuthInvalidToken:
		return ua.BadIdentityTokenInvalid
	case securechannel.AuthRejectedToken:
		return ua.BadIdentityTokenRejected
	case securechannel.AuthAccessDenied:
		return ua.BadUserAccessDenied
	case securechannel.AuthSignatureInvalid:
		return ua.BadSecurityChecksFailed
	default:
		return ua.BadUnexpectedError
	}
}
