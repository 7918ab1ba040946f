package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestBuiltinNetworks(t *testing.T) {
	nets, err := config.LoadNetworks("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"hardhat", "localhost", "sepolia"}, nets.Names())

	sepolia, err := nets.Get("sepolia")
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), sepolia.ChainID)
	assert.Equal(t, uint64(6), sepolia.BlockConfirmations)
	assert.Equal(t, uint64(11499), sepolia.SubscriptionID)
	assert.Equal(t, uint32(500000), sepolia.CallbackGasLimit)
	assert.Equal(t, uint64(20), sepolia.Interval)
	assert.False(t, sepolia.IsDevelopment())

	coord, ok := sepolia.Coordinator()
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625"), coord)

	fee, err := sepolia.EntranceFeeWei()
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", fee.String())

	lane, err := sepolia.GasLaneHash()
	require.NoError(t, err)
	assert.Equal(t, "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c", lane.Hex())

	hh, err := nets.Get("hardhat")
	require.NoError(t, err)
	assert.True(t, hh.IsDevelopment())
	assert.Equal(t, uint64(1), hh.BlockConfirmations)
	_, ok = hh.Coordinator()
	assert.False(t, ok, "development chains deploy their own coordinator")
}

func TestGetUnknownNetwork(t *testing.T) {
	nets, err := config.LoadNetworks("", noEnv)
	require.NoError(t, err)
	_, err = nets.Get("goerli")
	assert.ErrorIs(t, err, config.ErrNetworkNotFound)
}

func TestByChainID(t *testing.T) {
	nets, err := config.LoadNetworks("", noEnv)
	require.NoError(t, err)
	n, err := nets.ByChainID(31337)
	require.NoError(t, err)
	assert.Equal(t, "hardhat", n.Name)
	_, err = nets.ByChainID(1)
	assert.ErrorIs(t, err, config.ErrNetworkNotFound)
}

func TestNetworksTOMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[networks.sepolia]
subscription_id = 42
interval = 60

[networks.base-sepolia]
chain_id = 84532
rpc_urls = ["https://sepolia.base.org"]
vrf_coordinator = "0x5C210eF41CD1a72de73bF76eC39637bB0d3d7BEE"
entrance_fee = "0.001"
gas_lane = "0x9e1344a1247c8a1785d0a4681a27152bffdb43666ae5bf7d14d24a5efd44bf71"
callback_gas_limit = 250000
`), 0o600))

	nets, err := config.LoadNetworks(path, noEnv)
	require.NoError(t, err)

	sepolia, err := nets.Get("sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sepolia.SubscriptionID)
	assert.Equal(t, uint64(60), sepolia.Interval)
	assert.Equal(t, int64(11155111), sepolia.ChainID, "keys not in the file keep built-in values")
	assert.Equal(t, uint64(6), sepolia.BlockConfirmations)

	base, err := nets.Get("base-sepolia")
	require.NoError(t, err)
	assert.Equal(t, "base-sepolia", base.Name)
	assert.Equal(t, int64(84532), base.ChainID)
	assert.Equal(t, uint64(1), base.BlockConfirmations)
	assert.Equal(t, uint32(250000), base.CallbackGasLimit)
}

func TestNetworksTOMLUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	require.NoError(t, os.WriteFile(path, []byte("[networks.sepolia]\nintervall = 5\n"), 0o600))
	_, err := config.LoadNetworks(path, noEnv)
	assert.ErrorContains(t, err, "unknown keys")
}

func TestNetworksMissingFile(t *testing.T) {
	_, err := config.LoadNetworks(filepath.Join(t.TempDir(), "absent.toml"), noEnv)
	assert.NoError(t, err)
}

func TestRPCURLFromEnv(t *testing.T) {
	env := map[string]string{
		"SEPOLIA_RPC_URL":      "https://eth-sepolia.example/v2/key",
		"BASE_SEPOLIA_RPC_URL": "https://base.example",
	}
	path := filepath.Join(t.TempDir(), "networks.toml")
	require.NoError(t, os.WriteFile(path, []byte("[networks.base-sepolia]\nchain_id = 84532\n"), 0o600))

	nets, err := config.LoadNetworks(path, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)

	sepolia, _ := nets.Get("sepolia")
	assert.Equal(t, []string{"https://eth-sepolia.example/v2/key"}, sepolia.RPCURLs)
	base, _ := nets.Get("base-sepolia")
	assert.Equal(t, []string{"https://base.example"}, base.RPCURLs)
	hh, _ := nets.Get("hardhat")
	assert.Equal(t, []string{config.DevRPCURL}, hh.RPCURLs)
}

func TestNetworkTxURL(t *testing.T) {
	n := &config.Network{ExplorerURL: "https://sepolia.etherscan.io/"}
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", n.TxURL("0xabc"))
	assert.Empty(t, (&config.Network{}).TxURL("0xabc"))
}
