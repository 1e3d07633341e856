package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// newTestStore connects to the server named by EBICS_TEST_MONGODB_URI and
// uses a throwaway database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("EBICS_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("EBICS_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database := "ebics_test_" + uuid.NewString()[:8]
	s, err := NewStore(ctx, &Config{URI: uri, Database: database})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.keyrings.Database().Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := storage.KeyRingID{HostID: "EBIXHOST", PartnerID: "PARTNER1", UserID: "USER1"}

	require.NoError(t, s.Ping(ctx))

	_, err := s.Load(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Save(ctx, id, []byte("first")))
	require.NoError(t, s.Save(ctx, id, []byte("second")))

	data, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_IncompleteID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), storage.KeyRingID{UserID: "USER1"})
	assert.Error(t, err)
}
