// Package storage persists protected subscriber keyrings.
//
// # Interface Design
//
// A keyring is stored as the opaque, password protected document produced by
// [keyring.KeyRing.Marshal]. Stores never see private key material in the
// clear and never need the password; they only map a [KeyRingID] to bytes.
//
// # Implementations
//
// The file sub-package keeps one document per subscriber in a directory. The
// mongodb sub-package keeps one document per subscriber in a collection.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines. Save replaces the whole document; the last writer wins.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
)

// ErrNotFound indicates that no keyring is stored under the requested ID
var ErrNotFound = errors.New("keyring not found")

// KeyRingID identifies a keyring by the subscriber it belongs to
type KeyRingID struct {
	HostID    string `bson:"host_id" json:"hostId"`
	PartnerID string `bson:"partner_id" json:"partnerId"`
	UserID    string `bson:"user_id" json:"userId"`
}

// IDFor returns the keyring ID of a subscriber
func IDFor(sub subscriber.Subscriber) KeyRingID {
	return KeyRingID{HostID: sub.HostID, PartnerID: sub.PartnerID, UserID: sub.UserID}
}

// String returns the ID as HOST.PARTNER.USER
func (id KeyRingID) String() string {
	return id.HostID + "." + id.PartnerID + "." + id.UserID
}

// Validate checks that all parts of the ID are present
func (id KeyRingID) Validate() error {
	if id.HostID == "" || id.PartnerID == "" || id.UserID == "" {
		return fmt.Errorf("incomplete keyring id %q", id.String())
	}
	return nil
}

// KeyRingStore stores serialized keyrings
type KeyRingStore interface {
	// Load returns the stored document or ErrNotFound
	Load(ctx context.Context, id KeyRingID) ([]byte, error)

	// Save creates or replaces the stored document
	Save(ctx context.Context, id KeyRingID, data []byte) error

	// Delete removes the stored document; deleting a missing keyring is not an error
	Delete(ctx context.Context, id KeyRingID) error

	// Close releases storage resources
	Close(ctx context.Context) error
}

// LoadKeyRing loads and unlocks the keyring stored under id
func LoadKeyRing(ctx context.Context, store KeyRingStore, id KeyRingID, password string, opts ...keyring.Option) (*keyring.KeyRing, error) {
	data, err := store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	ring, err := keyring.Unmarshal(data, password, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening keyring %s: %w", id, err)
	}
	return ring, nil
}

// SaveKeyRing serializes ring and stores it under id
func SaveKeyRing(ctx context.Context, store KeyRingStore, id KeyRingID, ring *keyring.KeyRing) error {
	data, err := ring.Marshal()
	if err != nil {
		return fmt.Errorf("serializing keyring %s: %w", id, err)
	}
	if err := store.Save(ctx, id, data); err != nil {
		return fmt.Errorf("saving keyring %s: %w", id, err)
	}
	return nil
}
