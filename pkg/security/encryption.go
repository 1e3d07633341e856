package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
)

// TransactionKeySize is the length of an E002 transaction key
const TransactionKeySize = 16

// NewTransactionKey returns a fresh random AES-128 key. A key is never
// reused across transactions.
func NewTransactionKey() ([]byte, error) {
	key := make([]byte, TransactionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate transaction key: %w", err)
	}
	return key, nil
}

// EncryptOrderData encrypts plaintext with AES-128-CBC and a zero IV. The
// plaintext is always padded; the last byte of the padding holds its length.
func EncryptOrderData(key, plaintext []byte) ([]byte, error) {
	if err := ValidateAESKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	padded[len(padded)-1] = byte(padLen)

	ciphertext := make([]byte, len(padded))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// DecryptOrderData reverses EncryptOrderData
func DecryptOrderData(key, ciphertext []byte) ([]byte, error) {
	if err := ValidateAESKey(key); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of %d", ErrInvalidCiphertext, len(ciphertext), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	return plaintext[:len(plaintext)-padLen], nil
}

// WrapTransactionKey encrypts a transaction key for the holder of pub
func WrapTransactionKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if err := ValidateRSAPublicKey(pub); err != nil {
		return nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap transaction key: %w", err)
	}
	return wrapped, nil
}

// UnwrapTransactionKey decrypts a transaction key with the subscriber's
// encryption key
func UnwrapTransactionKey(key *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if err := ValidateRSAPrivateKey(key); err != nil {
		return nil, err
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("%w: empty transaction key", ErrInvalidCiphertext)
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unwrap transaction key: %v", ErrInvalidCiphertext, err)
	}
	if len(plain) != TransactionKeySize {
		return nil, fmt.Errorf("%w: transaction key of %d bytes", ErrInvalidCiphertext, len(plain))
	}
	return plain, nil
}
