package keyring

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// Signature is a public key as exchanged with the bank: raw modulus and
// exponent, and the certificate when the key was published as one
type Signature struct {
	Modulus     []byte `json:"modulus"`
	Exponent    []byte `json:"exponent"`
	Certificate []byte `json:"certificate,omitempty"`
}

// NewSignature describes pub, optionally accompanied by its certificate
func NewSignature(pub *rsa.PublicKey, cert *x509.Certificate) Signature {
	s := Signature{
		Modulus:  pub.N.Bytes(),
		Exponent: big.NewInt(int64(pub.E)).Bytes(),
	}
	if cert != nil {
		s.Certificate = cert.Raw
	}
	return s
}

// SignatureFromCertificate extracts the key of a DER encoded certificate
func SignatureFromCertificate(der []byte) (Signature, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Signature{}, fmt.Errorf("parsing certificate: %w", err)
	}
	pub, err := security.CertificatePublicKey(cert)
	if err != nil {
		return Signature{}, err
	}
	return NewSignature(pub, cert), nil
}

// IsZero reports whether the signature carries no key
func (s Signature) IsZero() bool {
	return len(s.Modulus) == 0 && len(s.Certificate) == 0
}

// PublicKey returns the RSA key
func (s Signature) PublicKey() (*rsa.PublicKey, error) {
	if len(s.Certificate) > 0 {
		cert, err := s.X509()
		if err != nil {
			return nil, err
		}
		return security.CertificatePublicKey(cert)
	}
	if len(s.Modulus) == 0 || len(s.Exponent) == 0 {
		return nil, fmt.Errorf("%w: missing modulus or exponent", security.ErrInvalidPublicKey)
	}
	e := new(big.Int).SetBytes(s.Exponent)
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: exponent out of range", security.ErrInvalidPublicKey)
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(s.Modulus), E: int(e.Int64())}
	if err := security.ValidateRSAPublicKey(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// X509 returns the parsed certificate, or nil when there is none
func (s Signature) X509() (*x509.Certificate, error) {
	if len(s.Certificate) == 0 {
		return nil, nil
	}
	cert, err := x509.ParseCertificate(s.Certificate)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}

// Digest returns the digest the bank publishes for the key: the
// certificate digest when certificates are in use, the public key digest
// otherwise
func (s Signature) Digest(useCertificate bool) ([]byte, error) {
	if useCertificate && len(s.Certificate) > 0 {
		cert, err := s.X509()
		if err != nil {
			return nil, err
		}
		return security.CertificateDigest(cert)
	}
	pub, err := s.PublicKey()
	if err != nil {
		return nil, err
	}
	return security.PublicKeyDigest(pub)
}
