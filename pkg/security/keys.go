package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GenerateKeyPair creates a new RSA key pair. A bits value of zero selects
// DefaultKeySize.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeySize
	}
	if bits < minKeySize {
		return nil, fmt.Errorf("%w: %d bits", ErrInvalidKeySize, bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// PublicKeyDigest returns the SHA-256 digest EBICS uses to identify an RSA
// public key: the lowercase hex exponent and modulus without leading zeros,
// separated by a single space.
func PublicKeyDigest(pub *rsa.PublicKey) ([]byte, error) {
	if err := ValidateRSAPublicKey(pub); err != nil {
		return nil, err
	}
	exp := strings.TrimLeft(hex.EncodeToString(big.NewInt(int64(pub.E)).Bytes()), "0")
	mod := strings.TrimLeft(hex.EncodeToString(pub.N.Bytes()), "0")
	sum := sha256.Sum256([]byte(exp + " " + mod))
	return sum[:], nil
}

// CertificateDigest returns the SHA-256 digest of a DER encoded certificate
func CertificateDigest(cert *x509.Certificate) ([]byte, error) {
	if cert == nil || len(cert.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing certificate", ErrInvalidPublicKey)
	}
	sum := sha256.Sum256(cert.Raw)
	return sum[:], nil
}

// KeyDigest returns the certificate digest when a certificate is present
// and the public key digest otherwise
func KeyDigest(pub *rsa.PublicKey, cert *x509.Certificate) ([]byte, error) {
	if cert != nil {
		return CertificateDigest(cert)
	}
	return PublicKeyDigest(pub)
}

// FormatDigest renders a digest the way it is printed on initialisation
// letters: uppercase hex in space separated pairs
func FormatDigest(digest []byte) string {
	h := strings.ToUpper(hex.EncodeToString(digest))
	pairs := make([]string, 0, len(h)/2)
	for i := 0; i+1 < len(h); i += 2 {
		pairs = append(pairs, h[i:i+2])
	}
	return strings.Join(pairs, " ")
}

// KeyUsage selects the extensions of a self-signed subscriber certificate
type KeyUsage int

const (
	UsageSignature KeyUsage = iota
	UsageAuthentication
	UsageEncryption
)

// SelfSignedCertificate issues a certificate for key, valid for one year.
// EBICS 3.0 exchanges subscriber keys as certificates only; banks accept
// self-signed certificates whose digest is confirmed out of band.
func SelfSignedCertificate(key *rsa.PrivateKey, subject pkix.Name, usage KeyUsage) (*x509.Certificate, error) {
	if key == nil {
		return nil, ErrInvalidPrivateKey
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		Issuer:       subject,
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.AddDate(1, 0, 0),
	}
	switch usage {
	case UsageSignature:
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
	case UsageAuthentication:
		template.KeyUsage = x509.KeyUsageDigitalSignature
	case UsageEncryption:
		template.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// CertificatePublicKey extracts the RSA key of a certificate
func CertificatePublicKey(cert *x509.Certificate) (*rsa.PublicKey, error) {
	if cert == nil {
		return nil, fmt.Errorf("%w: missing certificate", ErrInvalidPublicKey)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T, not RSA", ErrInvalidPublicKey, cert.PublicKey)
	}
	return pub, nil
}
