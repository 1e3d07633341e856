package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/testbank"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// setup starts an in-process bank behind an HTTP server and writes a
// configuration pointing at it
func setup(t *testing.T) (*testbank.Bank, string) {
	t.Helper()
	bank, err := testbank.New(version.V25, "EBIXHOST")
	require.NoError(t, err)

	server := httptest.NewServer(transport.NewHTTPSServer(":0", nil, bank))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`
bank:
  url: %s
  hostId: EBIXHOST
  version: H004
subscriber:
  partnerId: PARTNER1
  userId: USER1
keyring:
  store: file
  passwordEnv: TEST_EBICS_CLI_PASSWORD
  kdfCost: 16
  file:
    dir: %s
logging:
  level: error
`, server.URL, filepath.Join(dir, "keyrings"))
	path := filepath.Join(dir, "ebics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	t.Setenv("TEST_EBICS_CLI_PASSWORD", "secret")
	return bank, path
}

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", config}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Lifecycle(t *testing.T) {
	bank, config := setup(t)

	out, err := run(t, config, "hev")
	require.NoError(t, err)
	assert.Contains(t, out, "H004")

	_, err = run(t, config, "ini")
	require.NoError(t, err)
	_, err = run(t, config, "hia")
	require.NoError(t, err)

	out, err = run(t, config, "letter")
	require.NoError(t, err)
	assert.Contains(t, out, "PARTNER1")
	assert.Contains(t, out, "A\t")
	assert.Contains(t, out, "E\t")

	out, err = run(t, config, "hpb")
	require.NoError(t, err)
	assert.Contains(t, out, "X002")

	auth, enc, err := bank.KeyDigests()
	require.NoError(t, err)
	_, err = run(t, config, "verify-bank-keys",
		"--authentication", hex.EncodeToString(auth),
		"--encryption", hex.EncodeToString(enc))
	require.NoError(t, err)

	out, err = run(t, config, "keyring", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "EBIXHOST.PARTNER1.USER1")

	statement := []byte(":20:STATEMENT\n:25:DE89370400440532013000\n")
	bank.SetDownload("STA", statement)
	out, err = run(t, config, "download", "STA")
	require.NoError(t, err)
	assert.Equal(t, string(statement), out)

	payment := filepath.Join(t.TempDir(), "pain.001.xml")
	require.NoError(t, os.WriteFile(payment, []byte("<Document>pain.001</Document>"), 0o600))
	_, err = run(t, config, "upload", "CCT", payment)
	require.NoError(t, err)

	uploaded, ok := bank.Uploaded("CCT")
	require.True(t, ok)
	assert.Equal(t, "<Document>pain.001</Document>", string(uploaded))
}

func TestCLI_RepeatedINIFails(t *testing.T) {
	_, config := setup(t)

	_, err := run(t, config, "ini")
	require.NoError(t, err)
	_, err = run(t, config, "ini")
	assert.Error(t, err)
}

func TestCLI_HIAWithoutKeyring(t *testing.T) {
	_, config := setup(t)

	_, err := run(t, config, "hia")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ebics ini")
}

func TestCLI_WrongPassword(t *testing.T) {
	_, config := setup(t)

	_, err := run(t, config, "ini")
	require.NoError(t, err)

	t.Setenv("TEST_EBICS_CLI_PASSWORD", "wrong")
	_, err = run(t, config, "keyring", "check")
	assert.Error(t, err)
}

func TestCLI_Orders(t *testing.T) {
	_, config := setup(t)

	out, err := run(t, config, "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "STA\tdownload")
	assert.Contains(t, out, "CCT\tupload")
}

func TestFormatAndParseHash(t *testing.T) {
	assert.Equal(t, "0A FF 10", formatHash([]byte{0x0a, 0xff, 0x10}))

	verifyBankKeysCmd.Flags().Set("authentication", "0A FF:10")
	hash, err := parseHash(verifyBankKeysCmd, "authentication")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0xff, 0x10}, hash)
}
