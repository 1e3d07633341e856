// Package file implements storage.KeyRingStore on the local filesystem
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store keeps each keyring in <dir>/<host>.<partner>.<user>.json
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the directory if needed and returns a store rooted there
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating keyring directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id storage.KeyRingID) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	name := id.String() + ".json"
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid keyring id %q", id.String())
	}
	return filepath.Join(s.dir, name), nil
}

// Load reads the keyring document
func (s *Store) Load(ctx context.Context, id storage.KeyRingID) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	return data, nil
}

// Save writes the document through a temporary file so readers never see a
// partial keyring
func (s *Store) Save(ctx context.Context, id storage.KeyRingID, data []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".keyring-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing keyring: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting keyring permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing keyring: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing keyring: %w", err)
	}
	return nil
}

// Delete removes the keyring document
func (s *Store) Delete(ctx context.Context, id storage.KeyRingID) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting keyring: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error {
	return nil
}
