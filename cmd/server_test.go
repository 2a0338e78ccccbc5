package cmd_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/cmd"
	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/issuer"
	"github.com/TEENet-io/splminter-go/reporter"
)

func writeKeypair(t *testing.T) (string, types.Account) {
	t.Helper()
	acc := types.NewAccount()
	data, err := common.EncodeKeypairJSON(acc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, acc
}

func TestIssuerConfig(t *testing.T) {
	cfg, err := (&cmd.ServerConfig{}).IssuerConfig()
	require.NoError(t, err)
	assert.Equal(t, issuer.DefaultConfig(), cfg)

	cfg, err = (&cmd.ServerConfig{
		SolanaCluster:  "localnet",
		Commitment:     "finalized",
		ConfirmTimeout: "90s",
		PollInterval:   "1s",
	}).IssuerConfig()
	require.NoError(t, err)
	assert.Equal(t, agreement.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "localnet", cfg.Cluster)

	_, err = (&cmd.ServerConfig{ConfirmTimeout: "soon"}).IssuerConfig()
	assert.Error(t, err)
	_, err = (&cmd.ServerConfig{Commitment: "max"}).IssuerConfig()
	assert.Error(t, err)
}

func TestNewIssuerStackWallets(t *testing.T) {
	_, err := cmd.NewIssuerStack(&cmd.ServerConfig{})
	assert.ErrorIs(t, err, cmd.ErrNoWallet)

	path, _ := writeKeypair(t)
	_, err = cmd.NewIssuerStack(&cmd.ServerConfig{WalletKeypairPath: path, WalletSignerAddr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, cmd.ErrBothWallets)

	_, err = cmd.NewIssuerStack(&cmd.ServerConfig{WalletKeypairPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	srv, err := cmd.NewIssuerStack(&cmd.ServerConfig{WalletKeypairPath: path})
	require.NoError(t, err)
	assert.Nil(t, srv.Reporter)
	assert.NoError(t, srv.Close())
}

func TestNewServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path, acc := writeKeypair(t)
	dbPath := filepath.Join(t.TempDir(), "splminter.db")

	srv, err := cmd.NewServer(context.Background(), &cmd.ServerConfig{
		SolanaCluster:     "localnet",
		WalletKeypairPath: path,
		DbFilePath:        dbPath,
		HttpIp:            "127.0.0.1",
		HttpPort:          "0",
	})
	require.NoError(t, err)
	defer srv.Close()

	assert.True(t, cmd.FileExists(dbPath))
	assert.Equal(t, "localnet", srv.Network.Cluster())

	code, body, err := reporter.NewHttpReaderURL("http://" + srv.Reporter.Address()).GetHealth()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)

	resp := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, acc.PublicKey.ToBase58(), resp["owner"])
	assert.Equal(t, "localnet", resp["cluster"])

	require.NoError(t, srv.Close())
	_, _, err = reporter.NewHttpReaderURL("http://" + srv.Reporter.Address()).GetHealth()
	assert.Error(t, err)
}
