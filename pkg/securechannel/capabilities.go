package securechannel

// CryptoProfile is the narrow capability interface this package consumes
// for every cryptographic operation (Spec Section 6.2). Callers supply a
// profile per SecurityPolicy; this package never performs crypto math of
// its own beyond calling through this interface. DefaultCryptoProfile
// (crypto_default.go) is a ready-to-use adapter built on the standard
// library and golang.org/x/crypto.
type CryptoProfile interface {
	// AsymSign signs data with the local private key for the asymmetric
	// handshake (OPN request/response signature).
	AsymSign(data []byte) ([]byte, error)
	// AsymVerify verifies data against signature using the peer's public
	// key (extracted from its certificate).
	AsymVerify(peerCert, data, signature []byte) error
	// AsymEncrypt encrypts data to the peer's public key.
	AsymEncrypt(peerCert, data []byte) ([]byte, error)
	// AsymDecrypt decrypts data with the local private key.
	AsymDecrypt(data []byte) ([]byte, error)

	// SymSign computes a MAC over data using a symmetric signing key.
	SymSign(signingKey, data []byte) ([]byte, error)
	// SymVerify checks a MAC produced by SymSign.
	SymVerify(signingKey, data, signature []byte) error
	// SymEncrypt encrypts data with a symmetric key and IV.
	SymEncrypt(encryptingKey, iv, data []byte) ([]byte, error)
	// SymDecrypt decrypts data with a symmetric key and IV.
	SymDecrypt(encryptingKey, iv, data []byte) ([]byte, error)

	// DeriveKeys implements Spec Section 4.3.2's
	// derive_keys(secret, seed, len): HKDF-style expansion of secret/seed
	// into outLen bytes of key material, later partitioned by the caller
	// into signingKey || encryptingKey || iv.
	DeriveKeys(secret, seed []byte, outLen int) ([]byte, error)

	// RandomNonce returns length cryptographically random bytes, used for
	// client/server nonces exchanged on OPN.
	RandomNonce(length int) ([]byte, error)

	// CertificateThumbprint returns the 20-byte SHA-1 thumbprint of cert,
	// used in the asymmetric security header's
	// receiverCertificateThumbprint field.
	CertificateThumbprint(cert []byte) ([]byte, error)

	// SigningKeyLength, EncryptingKeyLength, and BlockSize report the key
	// geometry for this policy so DeriveKeys' output can be partitioned
	// and padding computed without this package hard-coding any one
	// SecurityPolicy's parameters.
	SigningKeyLength() int
	EncryptingKeyLength() int
	BlockSize() int

	// SignatureLength reports the byte length of a SymSign/AsymSign output,
	// so a chunk's trailing signature can be split off without depending on
	// any one MAC or signature algorithm's output size.
	SignatureLength() int
	AsymSignatureLength() int
}

// PKI is the narrow capability interface for certificate chain validation
// (Spec Section 6.2). A nil PKI is only valid when every configured
// SecurityPolicy is None.
type PKI interface {
	// ValidateChain reports whether cert (DER-encoded) chains to a
	// trusted root, returning a human-readable reason on rejection.
	ValidateChain(cert []byte) (ok bool, reason string)
}
