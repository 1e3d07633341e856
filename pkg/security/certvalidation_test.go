package security

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCertificateValidator_SelfSigned(t *testing.T) {
	key := sharedTestKey(t)
	auth, err := SelfSignedCertificate(key, pkix.Name{CommonName: "EBIXHOST X002"}, UsageAuthentication)
	require.NoError(t, err)
	enc, err := SelfSignedCertificate(key, pkix.Name{CommonName: "EBIXHOST E002"}, UsageEncryption)
	require.NoError(t, err)

	v := NewDefaultCertificateValidator(nil)
	assert.NoError(t, v.ValidateCertificate(auth, nil, UsageAuthentication))
	assert.NoError(t, v.ValidateCertificate(enc, nil, UsageEncryption))

	err = v.ValidateCertificate(enc, nil, UsageAuthentication)
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	err = v.ValidateCertificate(nil, nil, UsageAuthentication)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

func TestDefaultCertificateValidator_Period(t *testing.T) {
	cert, err := SelfSignedCertificate(sharedTestKey(t), pkix.Name{CommonName: "EBIXHOST X002"}, UsageAuthentication)
	require.NoError(t, err)

	later := NewDefaultCertificateValidator(nil).WithClock(func() time.Time {
		return time.Now().AddDate(2, 0, 0)
	})
	assert.ErrorIs(t, later.ValidateCertificate(cert, nil, UsageAuthentication), ErrCertificateExpired)

	earlier := NewDefaultCertificateValidator(nil).WithClock(func() time.Time {
		return time.Now().AddDate(-1, 0, 0)
	})
	assert.ErrorIs(t, earlier.ValidateCertificate(cert, nil, UsageAuthentication), ErrCertificateNotYetValid)
}

func TestDefaultCertificateValidator_Roots(t *testing.T) {
	key := sharedTestKey(t)
	cert, err := SelfSignedCertificate(key, pkix.Name{CommonName: "EBIXHOST X002"}, UsageAuthentication)
	require.NoError(t, err)
	other, err := SelfSignedCertificate(key, pkix.Name{CommonName: "Other Bank Root"}, UsageSignature)
	require.NoError(t, err)

	trusted := x509.NewCertPool()
	trusted.AddCert(cert)
	assert.NoError(t, NewDefaultCertificateValidator(trusted).ValidateCertificate(cert, nil, UsageAuthentication))

	untrusted := x509.NewCertPool()
	untrusted.AddCert(other)
	err = NewDefaultCertificateValidator(untrusted).ValidateCertificate(cert, nil, UsageAuthentication)
	assert.ErrorIs(t, err, ErrCertificateUntrusted)
}

func TestKeyUsage_String(t *testing.T) {
	assert.Equal(t, "signature", UsageSignature.String())
	assert.Equal(t, "encryption", UsageEncryption.String())
	assert.Equal(t, "KeyUsage(9)", KeyUsage(9).String())
}
