package security

import (
	"crypto/rsa"
	"fmt"
)

// ValidateRSAPublicKey checks that a counterpart key is usable
func ValidateRSAPublicKey(pub *rsa.PublicKey) error {
	if pub == nil || pub.N == nil {
		return fmt.Errorf("%w: nil RSA key", ErrInvalidPublicKey)
	}
	if pub.N.BitLen() < minKeySize {
		return fmt.Errorf("%w: RSA modulus of %d bits", ErrWeakKey, pub.N.BitLen())
	}
	if pub.E < 3 || pub.E%2 == 0 {
		return fmt.Errorf("%w: RSA exponent %d", ErrInvalidPublicKey, pub.E)
	}
	return nil
}

// ValidateRSAPrivateKey checks that a subscriber key is usable
func ValidateRSAPrivateKey(key *rsa.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("%w: nil RSA key", ErrInvalidPrivateKey)
	}
	if err := ValidateRSAPublicKey(&key.PublicKey); err != nil {
		return err
	}
	return nil
}

// ValidateAESKey validates an E002 transaction key
func ValidateAESKey(key []byte) error {
	if len(key) != TransactionKeySize {
		return fmt.Errorf("%w: AES-128 key must be %d bytes, got %d", ErrInvalidKeySize, TransactionKeySize, len(key))
	}

	allZeros := true
	for _, b := range key {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		return fmt.Errorf("%w: all-zero AES key", ErrWeakKey)
	}

	return nil
}
