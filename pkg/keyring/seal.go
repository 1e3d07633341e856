package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassword is returned when sealed keys cannot be opened with the
// current password
var ErrWrongPassword = errors.New("keyring: wrong password")

const (
	saltSize       = 16
	derivedKeySize = 32

	// DefaultKDFCost is the scrypt N parameter
	DefaultKDFCost = 1 << 15
)

// sealedKey is a PKCS#8 private key encrypted with AES-256-GCM under a
// password derived key
type sealedKey struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// sealer derives and caches password keys for one salt
type sealer struct {
	salt []byte
	cost int

	mu    sync.Mutex
	cache map[string][]byte
}

func newSealer(cost int) (*sealer, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &sealer{salt: salt, cost: cost, cache: make(map[string][]byte)}, nil
}

func (s *sealer) derive(password string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := hex.EncodeToString([]byte(password))
	if k, ok := s.cache[cacheKey]; ok {
		return k, nil
	}
	k, err := scrypt.Key([]byte(password), s.salt, s.cost, 8, 1, derivedKeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	s.cache[cacheKey] = k
	return k, nil
}

func (s *sealer) aead(password string) (cipher.AEAD, error) {
	k, err := s.derive(password)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

func (s *sealer) seal(password string, key *rsa.PrivateKey) (*sealedKey, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	return s.sealDER(password, der)
}

func (s *sealer) sealDER(password string, der []byte) (*sealedKey, error) {
	gcm, err := s.aead(password)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return &sealedKey{Nonce: nonce, Ciphertext: gcm.Seal(nil, nonce, der, s.salt)}, nil
}

func (s *sealer) openDER(password string, sk *sealedKey) ([]byte, error) {
	gcm, err := s.aead(password)
	if err != nil {
		return nil, err
	}
	if len(sk.Nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassword
	}
	der, err := gcm.Open(nil, sk.Nonce, sk.Ciphertext, s.salt)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return der, nil
}

// verifierText is sealed next to the keys to detect a wrong password on a
// ring that holds no key yet
const verifierText = "go-ebics keyring"

func (s *sealer) verify(password string, verifier *sealedKey) error {
	if verifier == nil {
		return ErrWrongPassword
	}
	plain, err := s.openDER(password, verifier)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(plain, []byte(verifierText)) != 1 {
		return ErrWrongPassword
	}
	return nil
}

func (s *sealer) open(password string, sk *sealedKey) (*rsa.PrivateKey, error) {
	der, err := s.openDER(password, sk)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("decoding private key: unexpected type %T", parsed)
	}
	return key, nil
}
