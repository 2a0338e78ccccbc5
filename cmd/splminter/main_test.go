package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/splminter-go/common"
)

func TestPrepareServerConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "splminter.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
SOLANA_CLUSTER: localnet
DB_FILE_PATH: /var/lib/splminter/issuances.db
CONFIRM_TIMEOUT: 90s
HTTP_PORT: "9000"
`), 0o600))

	// env wins over the file
	t.Setenv("SOLANA_CLUSTER", "testnet")
	t.Setenv(ENV_CONFIG_FILE_PATH, configFile)
	flagMain.ConfigFile = ""

	require.NoError(t, loadConfig())
	sc := PrepareServerConfig()
	assert.Equal(t, "testnet", sc.SolanaCluster)
	assert.Equal(t, "/var/lib/splminter/issuances.db", sc.DbFilePath)
	assert.Equal(t, "90s", sc.ConfirmTimeout)
	assert.Equal(t, "9000", sc.HttpPort)
	assert.Equal(t, "confirmed", sc.Commitment)

	flagMain.ConfigFile = filepath.Join(dir, "missing.yaml")
	defer func() { flagMain.ConfigFile = "" }()
	assert.Error(t, loadConfig())
}

func TestParseMintAmount(t *testing.T) {
	ctx := context.Background()
	mint := common.RandPublicKey()
	defer func() { flagMint.BaseUnits, flagMint.Decimals = false, -1 }()

	flagMint.BaseUnits = true
	v, err := parseMintAmount(ctx, nil, mint, "42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	flagMint.BaseUnits = false
	flagMint.Decimals = 6
	v, err = parseMintAmount(ctx, nil, mint, "1.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), v)

	flagMint.Decimals = 12
	_, err = parseMintAmount(ctx, nil, mint, "1")
	assert.Error(t, err)
}
