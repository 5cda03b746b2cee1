package securechannel

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DefaultCryptoProfile implements CryptoProfile for the Basic256Sha256
// security policy shape: RSA-PSS/RSA-OAEP asymmetric operations, HMAC-
// SHA256 symmetric signing, AES-256-CBC symmetric encryption, and
// HKDF-SHA256 key derivation. It is the library's out-of-the-box adapter;
// callers with other policies supply their own CryptoProfile.
//
// Key derivation follows the teacher's pkg/crypto/kdf.go HKDFSHA256
// helper (hkdf.New(sha256.New, ikm, salt, info)); the asymmetric and
// symmetric primitives below it are stdlib crypto/rsa, crypto/aes, and
// crypto/hmac, matching how the teacher itself only reaches for
// golang.org/x/crypto for KDF/PBKDF2 and leaves block ciphers and MACs to
// the standard library.
type DefaultCryptoProfile struct {
	PrivateKey *rsa.PrivateKey
}

const (
	defaultSigningKeyLength    = 32 // HMAC-SHA256
	defaultEncryptingKeyLength = 32 // AES-256
	defaultBlockSize           = aes.BlockSize
)

func (p *DefaultCryptoProfile) SigningKeyLength() int    { return defaultSigningKeyLength }
func (p *DefaultCryptoProfile) EncryptingKeyLength() int { return defaultEncryptingKeyLength }
func (p *DefaultCryptoProfile) BlockSize() int           { return defaultBlockSize }

// SignatureLength is the HMAC-SHA256 output size.
func (p *DefaultCryptoProfile) SignatureLength() int { return sha256.Size }

// AsymSignatureLength is the RSA-PSS signature size, equal to the RSA
// modulus size in bytes; zero when no private key has been configured yet.
func (p *DefaultCryptoProfile) AsymSignatureLength() int {
	if p.PrivateKey == nil {
		return 0
	}
	return p.PrivateKey.Size()
}

func (p *DefaultCryptoProfile) AsymSign(data []byte) ([]byte, error) {
	if p.PrivateKey == nil {
		return nil, ErrNoCryptoProfile
	}
	h := sha256.Sum256(data)
	return rsa.SignPSS(rand.Reader, p.PrivateKey, crypto.SHA256, h[:], nil)
}

func (p *DefaultCryptoProfile) AsymVerify(peerCert, data, signature []byte) error {
	pub, err := publicKeyFromCert(peerCert)
	if err != nil {
		return err
	}
	h := sha256.Sum256(data)
	return rsa.VerifyPSS(pub, crypto.SHA256, h[:], signature, nil)
}

func (p *DefaultCryptoProfile) AsymEncrypt(peerCert, data []byte) ([]byte, error) {
	pub, err := publicKeyFromCert(peerCert)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, data, nil)
}

func (p *DefaultCryptoProfile) AsymDecrypt(data []byte) ([]byte, error) {
	if p.PrivateKey == nil {
		return nil, ErrNoCryptoProfile
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, p.PrivateKey, data, nil)
}

func (p *DefaultCryptoProfile) SymSign(signingKey, data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func (p *DefaultCryptoProfile) SymVerify(signingKey, data, signature []byte) error {
	want, _ := p.SymSign(signingKey, data)
	if !hmac.Equal(want, signature) {
		return ErrSecurityChecksFailed
	}
	return nil
}

func (p *DefaultCryptoProfile) SymEncrypt(encryptingKey, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptingKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func (p *DefaultCryptoProfile) SymDecrypt(encryptingKey, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptingKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// DeriveKeys implements Crypto_KDF per Spec Section 4.3.2 via HKDF-SHA256,
// mirroring the teacher's HKDFSHA256(inputKey, salt, info, length).
func (p *DefaultCryptoProfile) DeriveKeys(secret, seed []byte, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, seed, nil)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *DefaultCryptoProfile) RandomNonce(length int) ([]byte, error) {
	nonce := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func (p *DefaultCryptoProfile) CertificateThumbprint(cert []byte) ([]byte, error) {
	sum := sha1.Sum(cert)
	return sum[:], nil
}

func publicKeyFromCert(der []byte) (*rsa.PublicKey, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrCertificateRejected
	}
	return pub, nil
}
