// Package keyring holds the subscriber's key material and tracks the
// key exchange with the bank.
//
// A key ring moves through the handshake states
//
//	Empty -> SignatureKeySent -> AuthEncKeysSent -> BankKeysReceived -> Active
//
// INI submits the signature key, HIA the authentication and encryption
// keys, HPB retrieves the bank keys and [KeyRing.VerifyBankKeys] confirms
// them against the hashes the bank published out of band.
//
// Private keys never leave the ring unencrypted: they are stored as
// PKCS#8 blobs sealed with AES-256-GCM under a scrypt-derived key and
// opened with the current password on use.
package keyring

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"sync"

	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// State is a handshake stage
type State int

const (
	StateEmpty State = iota
	// StateSignatureKeySent means INI (or only one of INI and HIA) went through
	StateSignatureKeySent
	// StateAuthEncKeysSent means both INI and HIA went through
	StateAuthEncKeysSent
	StateBankKeysReceived
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSignatureKeySent:
		return "signature-key-sent"
	case StateAuthEncKeysSent:
		return "auth-enc-keys-sent"
	case StateBankKeysReceived:
		return "bank-keys-received"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// KeyKind names one of the subscriber's key pairs
type KeyKind string

const (
	KeySignature      KeyKind = "A"
	KeyAuthentication KeyKind = "X"
	KeyEncryption     KeyKind = "E"
)

type userKey struct {
	sealed      *sealedKey
	certificate *x509.Certificate
}

// KeyRing is safe for concurrent use. Serializing handshake steps (INI,
// HIA, HPB) remains the caller's responsibility.
type KeyRing struct {
	mu sync.RWMutex

	version  version.Version
	password string
	sealer   *sealer
	keySize  int
	subject  pkix.Name

	user map[KeyKind]*userKey
	// verifier seals a known value so that the password can be checked
	// before any user key exists
	verifier *sealedKey

	bankAuthentication *Signature
	bankEncryption     *Signature

	iniSent      bool
	hiaSent      bool
	bankVerified bool
}

// Option configures a KeyRing
type Option func(*KeyRing)

// WithKeySize sets the modulus length of generated keys
func WithKeySize(bits int) Option {
	return func(k *KeyRing) {
		k.keySize = bits
	}
}

// WithSubject sets the subject of self-signed certificates
func WithSubject(subject pkix.Name) Option {
	return func(k *KeyRing) {
		k.subject = subject
	}
}

// WithKDFCost sets the scrypt cost parameter. Lower values speed up tests.
func WithKDFCost(n int) Option {
	return func(k *KeyRing) {
		k.sealer.cost = n
	}
}

// New creates an empty key ring
func New(v version.Version, password string, opts ...Option) (*KeyRing, error) {
	k, err := newKeyRing(v, password, opts...)
	if err != nil {
		return nil, err
	}
	if k.verifier, err = k.sealer.sealDER(password, []byte(verifierText)); err != nil {
		return nil, err
	}
	return k, nil
}

func newKeyRing(v version.Version, password string, opts ...Option) (*KeyRing, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("keyring: unknown version %d", int(v))
	}
	s, err := newSealer(DefaultKDFCost)
	if err != nil {
		return nil, err
	}
	k := &KeyRing{
		version:  v,
		password: password,
		sealer:   s,
		keySize:  security.DefaultKeySize,
		subject:  pkix.Name{CommonName: "EBICS subscriber"},
		user:     make(map[KeyKind]*userKey),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Version returns the protocol version the keys are generated for
func (k *KeyRing) Version() version.Version {
	return k.version
}

// State returns the current handshake stage
func (k *KeyRing) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state()
}

func (k *KeyRing) state() State {
	switch {
	case k.bankAuthentication != nil && k.bankEncryption != nil && k.bankVerified:
		return StateActive
	case k.bankAuthentication != nil && k.bankEncryption != nil:
		return StateBankKeysReceived
	case k.iniSent && k.hiaSent:
		return StateAuthEncKeysSent
	case k.iniSent || k.hiaSent:
		return StateSignatureKeySent
	default:
		return StateEmpty
	}
}

// GenerateSignatureKey creates the A key pair unless it already exists
func (k *KeyRing) GenerateSignatureKey() error {
	return k.generate(KeySignature)
}

// GenerateAuthEncKeys creates the X and E key pairs unless they already
// exist
func (k *KeyRing) GenerateAuthEncKeys() error {
	if err := k.generate(KeyAuthentication); err != nil {
		return err
	}
	return k.generate(KeyEncryption)
}

func (k *KeyRing) generate(kind KeyKind) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.user[kind]; ok {
		return nil
	}
	key, err := security.GenerateKeyPair(k.keySize)
	if err != nil {
		return fmt.Errorf("keyring: generating %s key: %w", kind, err)
	}
	return k.importKey(kind, key, nil)
}

// ImportKey stores an existing key pair. An existing key of the same kind
// is only replaced while the key has not been sent to the bank.
func (k *KeyRing) ImportKey(kind KeyKind, key *rsa.PrivateKey, cert *x509.Certificate) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.user[kind]; ok && k.sent(kind) {
		return k.alreadyActive(string(kind) + " key already submitted")
	}
	return k.importKey(kind, key, cert)
}

func (k *KeyRing) importKey(kind KeyKind, key *rsa.PrivateKey, cert *x509.Certificate) error {
	if err := security.ValidateRSAPrivateKey(key); err != nil {
		return fmt.Errorf("keyring: %s key: %w", kind, err)
	}
	if cert == nil && k.version.Profile().UsesCertificates {
		var err error
		cert, err = security.SelfSignedCertificate(key, k.subject, usageOf(kind))
		if err != nil {
			return fmt.Errorf("keyring: %s certificate: %w", kind, err)
		}
	}
	sealed, err := k.sealer.seal(k.password, key)
	if err != nil {
		return fmt.Errorf("keyring: sealing %s key: %w", kind, err)
	}
	k.user[kind] = &userKey{sealed: sealed, certificate: cert}
	return nil
}

func usageOf(kind KeyKind) security.KeyUsage {
	switch kind {
	case KeyAuthentication:
		return security.UsageAuthentication
	case KeyEncryption:
		return security.UsageEncryption
	default:
		return security.UsageSignature
	}
}

func (k *KeyRing) sent(kind KeyKind) bool {
	if kind == KeySignature {
		return k.iniSent
	}
	return k.hiaSent
}

// PrivateKey opens a user key with the current password
func (k *KeyRing) PrivateKey(kind KeyKind) (*rsa.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	uk, ok := k.user[kind]
	if !ok {
		return nil, returncode.New(returncode.KindKeyRingState, "%s key has not been generated", kind)
	}
	return k.sealer.open(k.password, uk.sealed)
}

// Certificate returns the certificate of a user key, or nil
func (k *KeyRing) Certificate(kind KeyKind) *x509.Certificate {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if uk, ok := k.user[kind]; ok {
		return uk.certificate
	}
	return nil
}

// UserSignature returns the public part of a user key as published to the
// bank
func (k *KeyRing) UserSignature(kind KeyKind) (Signature, error) {
	key, err := k.PrivateKey(kind)
	if err != nil {
		return Signature{}, err
	}
	return NewSignature(&key.PublicKey, k.Certificate(kind)), nil
}

// UserKeyHashes returns the digests printed on the initialisation letters
func (k *KeyRing) UserKeyHashes() (map[KeyKind][]byte, error) {
	useCert := k.version.Profile().UsesCertificates
	out := make(map[KeyKind][]byte, 3)
	for _, kind := range []KeyKind{KeySignature, KeyAuthentication, KeyEncryption} {
		sig, err := k.UserSignature(kind)
		if err != nil {
			return nil, err
		}
		d, err := sig.Digest(useCert)
		if err != nil {
			return nil, err
		}
		out[kind] = d
	}
	return out, nil
}

func (k *KeyRing) alreadyActive(text string) error {
	return &returncode.Error{
		Kind:   returncode.KindKeyRingState,
		Code:   returncode.InvalidUserOrUserState,
		Symbol: returncode.ErrUserAlreadyActive.Symbol,
		Text:   text,
	}
}

// GuardINI fails with a UserAlreadyActive error once the signature key has
// been submitted
func (k *KeyRing) GuardINI() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.iniSent {
		return k.alreadyActive("signature key already submitted (INI)")
	}
	return nil
}

// GuardHIA fails with a UserAlreadyActive error once the authentication and
// encryption keys have been submitted
func (k *KeyRing) GuardHIA() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.hiaSent {
		return k.alreadyActive("authentication and encryption keys already submitted (HIA)")
	}
	return nil
}

// GuardHPB fails until both INI and HIA went through
func (k *KeyRing) GuardHPB() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if !k.iniSent || !k.hiaSent {
		return returncode.New(returncode.KindKeyRingState,
			"HPB requires INI and HIA first (state %s)", k.state())
	}
	return nil
}

// GuardTransaction fails unless the bank keys are known. With
// requireVerified set the bank keys must also have been verified.
func (k *KeyRing) GuardTransaction(requireVerified bool) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s := k.state()
	if s < StateBankKeysReceived || (requireVerified && s != StateActive) {
		return returncode.New(returncode.KindKeyRingState,
			"order transactions require bank keys (state %s)", s)
	}
	return nil
}

// MarkSignatureKeySent records a successful INI
func (k *KeyRing) MarkSignatureKeySent() {
	k.mu.Lock()
	k.iniSent = true
	k.mu.Unlock()
}

// MarkAuthEncKeysSent records a successful HIA
func (k *KeyRing) MarkAuthEncKeysSent() {
	k.mu.Lock()
	k.hiaSent = true
	k.mu.Unlock()
}

// SetBankKeys stores the keys returned by HPB. Verification is reset.
func (k *KeyRing) SetBankKeys(authentication, encryption Signature) error {
	if _, err := authentication.PublicKey(); err != nil {
		return fmt.Errorf("keyring: bank authentication key: %w", err)
	}
	if _, err := encryption.PublicKey(); err != nil {
		return fmt.Errorf("keyring: bank encryption key: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.bankAuthentication = &authentication
	k.bankEncryption = &encryption
	k.bankVerified = false
	return nil
}

// BankAuthentication returns the bank X key, or nil before HPB
func (k *KeyRing) BankAuthentication() *Signature {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.bankAuthentication
}

// BankEncryption returns the bank E key, or nil before HPB
func (k *KeyRing) BankEncryption() *Signature {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.bankEncryption
}

// BankKeyDigests returns the digests of the bank keys as sent in
// BankPubKeyDigests
func (k *KeyRing) BankKeyDigests() (authentication, encryption []byte, err error) {
	x, e := k.BankAuthentication(), k.BankEncryption()
	if x == nil || e == nil {
		return nil, nil, returncode.New(returncode.KindKeyRingState, "bank keys are unknown")
	}
	useCert := k.version.Profile().UsesCertificates
	if authentication, err = x.Digest(useCert); err != nil {
		return nil, nil, err
	}
	if encryption, err = e.Digest(useCert); err != nil {
		return nil, nil, err
	}
	return authentication, encryption, nil
}

// VerifyBankKeys compares the bank keys with the digests the bank
// published out of band and activates the ring on a match
func (k *KeyRing) VerifyBankKeys(authenticationHash, encryptionHash []byte) error {
	x, e, err := k.BankKeyDigests()
	if err != nil {
		return err
	}
	if !bytes.Equal(x, authenticationHash) || !bytes.Equal(e, encryptionHash) {
		return returncode.New(returncode.KindAuthentication, "bank key digests do not match")
	}

	k.mu.Lock()
	k.bankVerified = true
	k.mu.Unlock()
	return nil
}

// Check reports whether the current password opens the ring and every
// stored key
func (k *KeyRing) Check() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if err := k.sealer.verify(k.password, k.verifier); err != nil {
		return false
	}
	for _, uk := range k.user {
		if _, err := k.sealer.openDER(k.password, uk.sealed); err != nil {
			return false
		}
	}
	return true
}

// SetPassword replaces the password used to open keys without re-sealing
// them
func (k *KeyRing) SetPassword(password string) {
	k.mu.Lock()
	k.password = password
	k.mu.Unlock()
}

// ChangePassword re-seals every key under newPassword. The current password
// must open the keys.
func (k *KeyRing) ChangePassword(newPassword string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.sealer.verify(k.password, k.verifier); err != nil {
		return fmt.Errorf("keyring: %w", err)
	}
	next, err := newSealer(k.sealer.cost)
	if err != nil {
		return err
	}
	verifier, err := next.sealDER(newPassword, []byte(verifierText))
	if err != nil {
		return fmt.Errorf("keyring: sealing verifier: %w", err)
	}
	resealed := make(map[KeyKind]*userKey, len(k.user))
	for kind, uk := range k.user {
		der, err := k.sealer.openDER(k.password, uk.sealed)
		if err != nil {
			return fmt.Errorf("keyring: opening %s key: %w", kind, err)
		}
		sealed, err := next.sealDER(newPassword, der)
		if err != nil {
			return fmt.Errorf("keyring: sealing %s key: %w", kind, err)
		}
		resealed[kind] = &userKey{sealed: sealed, certificate: uk.certificate}
	}

	k.sealer = next
	k.user = resealed
	k.verifier = verifier
	k.password = newPassword
	return nil
}
