package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "hardhat", cfg.DefaultNetwork)
	assert.Equal(t, "deployer", cfg.DefaultAccount)
	assert.Equal(t, "fastest", cfg.RPCAlgorithm)
	assert.Equal(t, 30, cfg.KeeperInterval)
	assert.Equal(t, "frontend/my-app/constants/contractAddress.json", cfg.FrontendAddressFile)
	assert.Equal(t, "frontend/my-app/constants/abi.json", cfg.FrontendABIFile)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.HistoryDB())
	assert.Equal(t, filepath.Join(dir, "deployments.json"), cfg.DeploymentsPath())
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.DefaultNetwork = "sepolia"
	cfg.DefaultAccount = "player"
	cfg.RPCAlgorithm = "round-robin"
	cfg.HistoryPath = "/tmp/rounds.db"

	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sepolia", reloaded.DefaultNetwork)
	assert.Equal(t, "player", reloaded.DefaultAccount)
	assert.Equal(t, "round-robin", reloaded.RPCAlgorithm)
	assert.Equal(t, "/tmp/rounds.db", reloaded.HistoryDB())
}

func TestLoadCorruptConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0o600))
	_, err := config.Load(dir)
	assert.ErrorContains(t, err, "parsing config")
}

func TestCustomRPCs(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.AddRPC("sepolia", "https://rpc.sepolia.org"))
	assert.Error(t, cfg.AddRPC("sepolia", "https://rpc.sepolia.org"))
	assert.Equal(t, []string{"https://rpc.sepolia.org"}, cfg.GetRPCs("sepolia"))

	require.NoError(t, cfg.RemoveRPC("sepolia", "https://rpc.sepolia.org"))
	assert.Empty(t, cfg.GetRPCs("sepolia"))
	assert.Error(t, cfg.RemoveRPC("sepolia", "https://rpc.sepolia.org"))
}

func TestLoadEnvFrom(t *testing.T) {
	e, err := config.LoadEnvFrom(map[string]string{
		"SEPOLIA_RPC_URL":   "https://sepolia.example",
		"PRIVATE_KEY":       "0xabc",
		"ETHERSCAN_API_KEY": "KEY",
		"UPDATE_FRONTEND":   "true",
		"TELEGRAM_CHAT_ID":  "-100123,42",
		"RPC_RATE_LIMIT":    "2.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.example", e.SepoliaRPCURL)
	assert.Equal(t, "0xabc", e.PrivateKey)
	assert.Equal(t, "KEY", e.EtherscanAPIKey)
	assert.True(t, e.FrontendUpdates())
	assert.Equal(t, []int64{-100123, 42}, e.TelegramChatIDs)
	assert.InDelta(t, 2.5, e.RPCRateLimit, 0.0001)

	for _, v := range []string{"yes", "on", "1"} {
		e, err = config.LoadEnvFrom(map[string]string{"UPDATE_FRONTEND": v})
		require.NoError(t, err, v)
		assert.True(t, e.FrontendUpdates(), v)
	}
	e, err = config.LoadEnvFrom(map[string]string{})
	require.NoError(t, err)
	assert.False(t, e.FrontendUpdates())

	_, err = config.LoadEnvFrom(map[string]string{"RPC_RATE_LIMIT": "fast"})
	assert.ErrorContains(t, err, "parse env")
}
