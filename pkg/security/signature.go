package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// SignOrder computes the electronic signature over order data
func SignOrder(key *rsa.PrivateKey, version SignatureVersion, data []byte) ([]byte, error) {
	if err := ValidateRSAPrivateKey(key); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)

	var (
		sig []byte
		err error
	)
	switch version {
	case A005:
		sig, err = rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	case A006:
		sig, err = rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign order data: %w", err)
	}
	return sig, nil
}

// VerifyOrder checks an electronic signature over order data
func VerifyOrder(pub *rsa.PublicKey, version SignatureVersion, data, sig []byte) error {
	if err := ValidateRSAPublicKey(pub); err != nil {
		return err
	}
	if len(sig) == 0 {
		return fmt.Errorf("%w: empty signature", ErrVerificationFailed)
	}
	digest := sha256.Sum256(data)

	var err error
	switch version {
	case A005:
		err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
	case A006:
		err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

// SignAuth computes the X002 authentication signature over the canonical
// form of ds:SignedInfo
func SignAuth(key *rsa.PrivateKey, signedInfo []byte) ([]byte, error) {
	if err := ValidateRSAPrivateKey(key); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(signedInfo)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign authentication data: %w", err)
	}
	return sig, nil
}

// VerifyAuth checks an X002 authentication signature
func VerifyAuth(pub *rsa.PublicKey, signedInfo, sig []byte) error {
	if err := ValidateRSAPublicKey(pub); err != nil {
		return err
	}
	digest := sha256.Sum256(signedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

// Digest returns the SHA-256 digest of data
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
