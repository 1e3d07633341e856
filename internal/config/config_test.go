package config

import (
	"crypto/tls"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

const minimal = `
bank:
  url: https://ebics.example.com/ebicsweb
  hostId: EBIXHOST
subscriber:
  partnerId: PARTNER1
  userId: USER1
`

func withVersion(v string) string {
	return `
bank:
  url: https://ebics.example.com/ebicsweb
  hostId: EBIXHOST
  version: ` + v + `
subscriber:
  partnerId: PARTNER1
  userId: USER1
`
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, version.V25, cfg.Version())
	assert.Equal(t, "file", cfg.KeyRing.Store)
	assert.Equal(t, "keyrings", cfg.KeyRing.File.Dir)
	assert.Equal(t, "EBICS_KEYRING_PASSWORD", cfg.KeyRing.PasswordEnv)
	assert.Equal(t, "ebics", cfg.KeyRing.MongoDB.Database)
	assert.Equal(t, "keyrings", cfg.KeyRing.MongoDB.Collection)
	assert.Equal(t, 60*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, codec.DefaultMaxSegmentSize, cfg.Transaction.MaxSegmentSize)

	minTLS, err := cfg.TLSMinVersion()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), minTLS)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	sub := cfg.Identity()
	assert.Equal(t, "EBIXHOST", sub.HostID)
	assert.Equal(t, "PARTNER1", sub.PartnerID)
	assert.Equal(t, "USER1", sub.UserID)
	assert.Equal(t, "go-ebics", sub.Product)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_EBICS_MONGO", "mongodb://db.example.com:27017")

	cfg, err := Parse([]byte(minimal + `
keyring:
  store: mongodb
  mongodb:
    uri: ${TEST_EBICS_MONGO}
`))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.example.com:27017", cfg.KeyRing.MongoDB.URI)
}

func TestParse_Versions(t *testing.T) {
	tests := []struct {
		value string
		want  version.Version
	}{
		{"H003", version.V24},
		{"2.5", version.V25},
		{"H005", version.V30},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg, err := Parse([]byte(withVersion(tt.value)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Version())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing url", `
bank:
  hostId: EBIXHOST
subscriber:
  partnerId: PARTNER1
  userId: USER1
`},
		{"missing host", `
bank:
  url: https://ebics.example.com
subscriber:
  partnerId: PARTNER1
  userId: USER1
`},
		{"unknown version", withVersion("H009")},
		{"unknown store", minimal + "keyring:\n  store: redis\n"},
		{"mongodb without uri", minimal + "keyring:\n  store: mongodb\n"},
		{"bad tls", minimal + "transport:\n  minTLSVersion: \"1.0\"\n"},
		{"bad level", minimal + "logging:\n  level: chatty\n"},
		{"bad format", minimal + "logging:\n  format: xml\n"},
		{"not yaml", "bank: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Password(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "keyring:\n  passwordEnv: TEST_EBICS_PASSWORD\n"))
	require.NoError(t, err)

	t.Setenv("TEST_EBICS_PASSWORD", "")
	_, err = cfg.Password()
	assert.Error(t, err)

	t.Setenv("TEST_EBICS_PASSWORD", "secret")
	password, err := cfg.Password()
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
}
