package security

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCertificateExpired is returned when a certificate has expired
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateNotYetValid is returned when a certificate is not yet valid
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrCertificateUntrusted is returned when a certificate does not chain to a trusted root
	ErrCertificateUntrusted = errors.New("certificate is not trusted")
	// ErrInvalidCertificate is returned for other certificate validation failures
	ErrInvalidCertificate = errors.New("certificate validation failed")
)

// CertificateValidator checks bank certificates received with EBICS 3.0
// key management responses. Trust in the key itself still comes from the
// digest comparison with the bank letter; a validator adds policy on top.
type CertificateValidator interface {
	// ValidateCertificate validates cert for the given key usage.
	// intermediates may be nil.
	ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, usage KeyUsage) error
}

// DefaultCertificateValidator checks the validity period, the RSA key and
// the key usage bits. With a root pool it also requires a chain to one of
// the roots; without one, self-signed bank certificates are accepted.
type DefaultCertificateValidator struct {
	roots *x509.CertPool
	now   func() time.Time
}

// NewDefaultCertificateValidator creates a validator. roots may be nil.
func NewDefaultCertificateValidator(roots *x509.CertPool) *DefaultCertificateValidator {
	return &DefaultCertificateValidator{
		roots: roots,
		now:   time.Now,
	}
}

// WithClock overrides the time used for the validity period check
func (v *DefaultCertificateValidator) WithClock(now func() time.Time) *DefaultCertificateValidator {
	v.now = now
	return v
}

// ValidateCertificate implements CertificateValidator
func (v *DefaultCertificateValidator) ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, usage KeyUsage) error {
	if cert == nil {
		return fmt.Errorf("%w: missing certificate", ErrInvalidCertificate)
	}

	now := v.now()
	if now.Before(cert.NotBefore) {
		return ErrCertificateNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrCertificateExpired
	}

	pub, err := CertificatePublicKey(cert)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if err := ValidateRSAPublicKey(pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	// Certificates without the extension are not restricted
	if cert.KeyUsage != 0 {
		var want x509.KeyUsage
		switch usage {
		case UsageSignature, UsageAuthentication:
			want = x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment
		case UsageEncryption:
			want = x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment
		}
		if cert.KeyUsage&want == 0 {
			return fmt.Errorf("%w: key usage does not permit %s", ErrInvalidCertificate, usage)
		}
	}

	if v.roots == nil {
		return nil
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		CurrentTime:   now,
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	for _, intermediate := range intermediates {
		opts.Intermediates.AddCert(intermediate)
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateUntrusted, err)
	}
	return nil
}

func (u KeyUsage) String() string {
	switch u {
	case UsageSignature:
		return "signature"
	case UsageAuthentication:
		return "authentication"
	case UsageEncryption:
		return "encryption"
	default:
		return fmt.Sprintf("KeyUsage(%d)", int(u))
	}
}
