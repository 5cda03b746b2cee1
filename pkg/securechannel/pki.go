package securechannel

import "crypto/x509"

// DefaultPKI validates a peer certificate against a fixed trust pool
// loaded once at startup (Spec Section 6.4: "PKI trust lists... read from
// the filesystem at initialization").
type DefaultPKI struct {
	Roots *x509.CertPool
}

// ValidateChain implements PKI.
func (p *DefaultPKI) ValidateChain(cert []byte) (bool, string) {
	leaf, err := x509.ParseCertificate(cert)
	if err != nil {
		return false, err.Error()
	}
	if p.Roots == nil {
		return false, "no trust roots configured"
	}
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: p.Roots}); err != nil {
		return false, err.Error()
	}
	return true, ""
}
