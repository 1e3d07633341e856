package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

var testID = storage.KeyRingID{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "rings")
	s, err := NewStore(dir)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.Load(ctx, testID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Save(ctx, testID, []byte("first")))
	require.NoError(t, s.Save(ctx, testID, []byte("second")))

	data, err := s.Load(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	info, err := os.Stat(filepath.Join(dir, "EBIXHOST.PARTNER1.USER1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, s.Delete(ctx, testID))
	require.NoError(t, s.Delete(ctx, testID))
	_, err = s.Load(ctx, testID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_IncompleteID(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = s.Save(context.Background(), storage.KeyRingID{HostID: "EBIXHOST"}, []byte("x"))
	assert.Error(t, err)
}

func TestStore_KeyRingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ring, err := keyring.New(version.V25, "secret", keyring.WithKDFCost(16))
	require.NoError(t, err)
	require.NoError(t, ring.GenerateSignatureKey())
	ring.MarkSignatureKeySent()

	require.NoError(t, storage.SaveKeyRing(ctx, s, testID, ring))

	loaded, err := storage.LoadKeyRing(ctx, s, testID, "secret")
	require.NoError(t, err)
	assert.Equal(t, version.V25, loaded.Version())
	assert.Equal(t, ring.State(), loaded.State())

	_, err = storage.LoadKeyRing(ctx, s, testID, "wrong")
	assert.Error(t, err)
}
