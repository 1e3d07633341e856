package security

import "errors"

// Algorithm URIs used in EBICS envelopes
const (
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"

	// AlgorithmC14N is inclusive canonical XML 1.0 as required for EBICS
	AlgorithmC14N = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
)

// SignatureVersion identifies the electronic signature process
type SignatureVersion string

const (
	// A005 is RSASSA-PKCS1-v1_5 with SHA-256
	A005 SignatureVersion = "A005"
	// A006 is RSASSA-PSS with SHA-256
	A006 SignatureVersion = "A006"
)

// Key versions for authentication and encryption
const (
	X002 = "X002"
	E002 = "E002"
)

// DefaultKeySize is the RSA modulus length of generated subscriber keys
const DefaultKeySize = 2048

// minKeySize is the smallest modulus the engine accepts from a counterpart
const minKeySize = 1536

var (
	// ErrInvalidPublicKey is returned when a public key is missing or malformed
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrInvalidPrivateKey is returned when a private key is missing or malformed
	ErrInvalidPrivateKey = errors.New("invalid private key")
	// ErrInvalidKeySize is returned when a key has an invalid size
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrWeakKey is returned when a key is cryptographically weak
	ErrWeakKey = errors.New("weak key detected")
	// ErrVerificationFailed is returned when a signature does not verify
	ErrVerificationFailed = errors.New("signature verification failed")
	// ErrUnsupportedVersion is returned for unknown signature versions
	ErrUnsupportedVersion = errors.New("unsupported signature version")
	// ErrInvalidCiphertext is returned when decryption input is malformed
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)
