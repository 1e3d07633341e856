package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptOrderData_RoundTrip(t *testing.T) {
	key, err := NewTransactionKey()
	require.NoError(t, err)

	sizes := []int{0, 1, 15, 16, 17, 1000, 4096}
	for _, size := range sizes {
		plain := bytes.Repeat([]byte{0xa5}, size)

		ciphertext, err := EncryptOrderData(key, plain)
		require.NoError(t, err)
		assert.Zero(t, len(ciphertext)%16)
		assert.Greater(t, len(ciphertext), size, "padding is always added")

		decrypted, err := DecryptOrderData(key, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plain, decrypted)
	}
}

func TestDecryptOrderData_Malformed(t *testing.T) {
	key, err := NewTransactionKey()
	require.NoError(t, err)

	_, err = DecryptOrderData(key, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = DecryptOrderData(key, make([]byte, 17))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = DecryptOrderData([]byte("short"), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = EncryptOrderData(make([]byte, 16), []byte("x"))
	assert.ErrorIs(t, err, ErrWeakKey)
}

func TestNewTransactionKey_Fresh(t *testing.T) {
	a, err := NewTransactionKey()
	require.NoError(t, err)
	b, err := NewTransactionKey()
	require.NoError(t, err)

	assert.Len(t, a, TransactionKeySize)
	assert.NotEqual(t, a, b)
}

func TestWrapTransactionKey(t *testing.T) {
	key := sharedTestKey(t)
	tk, err := NewTransactionKey()
	require.NoError(t, err)

	wrapped, err := WrapTransactionKey(&key.PublicKey, tk)
	require.NoError(t, err)
	assert.Len(t, wrapped, key.Size())

	unwrapped, err := UnwrapTransactionKey(key, wrapped)
	require.NoError(t, err)
	assert.Equal(t, tk, unwrapped)

	wrapped[10] ^= 0xff
	_, err = UnwrapTransactionKey(key, wrapped)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = UnwrapTransactionKey(key, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
