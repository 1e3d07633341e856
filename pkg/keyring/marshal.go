package keyring

import (
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// formatVersion is bumped whenever the serialized layout changes
const formatVersion = 2

type serializedUserKey struct {
	Sealed      *sealedKey `json:"sealed"`
	Certificate []byte     `json:"certificate,omitempty"`
}

type serialized struct {
	Format   int                           `json:"format"`
	Version  string                        `json:"version"`
	Salt     []byte                        `json:"salt"`
	KDFCost  int                           `json:"kdfCost"`
	Verifier *sealedKey                    `json:"verifier"`
	User     map[KeyKind]serializedUserKey `json:"user"`
	Bank     struct {
		Authentication *Signature `json:"X,omitempty"`
		Encryption     *Signature `json:"E,omitempty"`
	} `json:"bank"`
	INISent      bool `json:"iniSent"`
	HIASent      bool `json:"hiaSent"`
	BankVerified bool `json:"bankVerified"`
}

// Marshal returns the persistent form of the ring. Private keys stay
// sealed; the password is not part of the output.
func (k *KeyRing) Marshal() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s := serialized{
		Format:       formatVersion,
		Version:      k.version.Profile().Name,
		Salt:         k.sealer.salt,
		KDFCost:      k.sealer.cost,
		Verifier:     k.verifier,
		User:         make(map[KeyKind]serializedUserKey, len(k.user)),
		INISent:      k.iniSent,
		HIASent:      k.hiaSent,
		BankVerified: k.bankVerified,
	}
	for kind, uk := range k.user {
		entry := serializedUserKey{Sealed: uk.sealed}
		if uk.certificate != nil {
			entry.Certificate = uk.certificate.Raw
		}
		s.User[kind] = entry
	}
	s.Bank.Authentication = k.bankAuthentication
	s.Bank.Encryption = k.bankEncryption

	data, err := json.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("keyring: encoding: %w", err)
	}
	return data, nil
}

// Unmarshal restores a ring produced by Marshal. It fails with
// ErrWrongPassword when password does not open the ring, even when it holds
// no key yet.
func Unmarshal(data []byte, password string, opts ...Option) (*KeyRing, error) {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("keyring: decoding: %w", err)
	}
	if s.Format != formatVersion {
		return nil, fmt.Errorf("keyring: unsupported format %d", s.Format)
	}
	v, err := version.Parse(s.Version)
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	if len(s.Salt) != saltSize || s.KDFCost <= 1 {
		return nil, fmt.Errorf("keyring: malformed key derivation parameters")
	}

	k, err := newKeyRing(v, password, opts...)
	if err != nil {
		return nil, err
	}
	k.sealer = &sealer{salt: s.Salt, cost: s.KDFCost, cache: make(map[string][]byte)}
	if err := k.sealer.verify(password, s.Verifier); err != nil {
		return nil, err
	}
	k.verifier = s.Verifier

	for kind, entry := range s.User {
		if entry.Sealed == nil {
			return nil, fmt.Errorf("keyring: %s key is missing", kind)
		}
		if _, err := k.sealer.open(password, entry.Sealed); err != nil {
			return nil, err
		}
		uk := &userKey{sealed: entry.Sealed}
		if len(entry.Certificate) > 0 {
			if uk.certificate, err = x509.ParseCertificate(entry.Certificate); err != nil {
				return nil, fmt.Errorf("keyring: %s certificate: %w", kind, err)
			}
		}
		k.user[kind] = uk
	}

	k.bankAuthentication = s.Bank.Authentication
	k.bankEncryption = s.Bank.Encryption
	k.iniSent = s.INISent
	k.hiaSent = s.HIASent
	k.bankVerified = s.BankVerified

	return k, nil
}
