package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNetworkNotFound is returned for unknown network names.
var ErrNetworkNotFound = errors.New("network not found")

// DevelopmentChains get mocks deployed and skip verification.
var DevelopmentChains = []string{"hardhat", "localhost"}

// Network is one deployment target and the raffle parameters used on it.
type Network struct {
	Name               string   `toml:"-"`
	ChainID            int64    `toml:"chain_id"`
	RPCURLs            []string `toml:"rpc_urls"`
	BlockConfirmations uint64   `toml:"block_confirmations"`
	VRFCoordinator     string   `toml:"vrf_coordinator"`
	EntranceFee        string   `toml:"entrance_fee"` // ETH, e.g. "0.01"
	GasLane            string   `toml:"gas_lane"`
	SubscriptionID     uint64   `toml:"subscription_id"`
	CallbackGasLimit   uint32   `toml:"callback_gas_limit"`
	Interval           uint64   `toml:"interval"` // seconds
	ExplorerAPI        string   `toml:"explorer_api"`
	ExplorerURL        string   `toml:"explorer_url"`
}

// IsDevelopment reports whether n is a local chain that needs mocks.
func (n *Network) IsDevelopment() bool {
	return slices.Contains(DevelopmentChains, n.Name)
}

// EntranceFeeWei parses EntranceFee.
func (n *Network) EntranceFeeWei() (*big.Int, error) {
	fee, err := chain.ParseEther(n.EntranceFee)
	if err != nil {
		return nil, fmt.Errorf("network %s: entrance_fee: %w", n.Name, err)
	}
	return fee, nil
}

// GasLaneHash returns the VRF key hash.
func (n *Network) GasLaneHash() (common.Hash, error) {
	s := strings.TrimPrefix(n.GasLane, "0x")
	if len(s) != 64 {
		return common.Hash{}, fmt.Errorf("network %s: gas_lane must be 32 bytes of hex", n.Name)
	}
	return common.HexToHash(n.GasLane), nil
}

// Coordinator returns the configured VRF coordinator, if any.
func (n *Network) Coordinator() (common.Address, bool) {
	if !common.IsHexAddress(n.VRFCoordinator) {
		return common.Address{}, false
	}
	return common.HexToAddress(n.VRFCoordinator), true
}

// TxURL links a transaction on the network's explorer.
func (n *Network) TxURL(hash string) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + hash
}

// Mirrors helper-hardhat-config.js.
const (
	defaultGasLane          = "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c"
	defaultEntranceFee      = "0.01"
	defaultCallbackGasLimit = 500000
	defaultInterval         = 20
)

func builtinNetworks() map[string]*Network {
	dev := func(name string) *Network {
		return &Network{
			Name:               name,
			ChainID:            31337,
			RPCURLs:            []string{DevRPCURL},
			BlockConfirmations: 1,
			EntranceFee:        defaultEntranceFee,
			GasLane:            defaultGasLane,
			CallbackGasLimit:   defaultCallbackGasLimit,
			Interval:           defaultInterval,
		}
	}
	return map[string]*Network{
		"hardhat":   dev("hardhat"),
		"localhost": dev("localhost"),
		"sepolia": {
			Name:               "sepolia",
			ChainID:            11155111,
			BlockConfirmations: 6,
			VRFCoordinator:     "0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625",
			EntranceFee:        defaultEntranceFee,
			GasLane:            defaultGasLane,
			SubscriptionID:     11499,
			CallbackGasLimit:   defaultCallbackGasLimit,
			Interval:           defaultInterval,
			ExplorerAPI:        "https://api.etherscan.io/v2/api",
			ExplorerURL:        "https://sepolia.etherscan.io",
		},
	}
}

// Networks is the resolved network table.
type Networks struct {
	byName map[string]*Network
}

type networksFileData struct {
	Networks map[string]Network `toml:"networks"`
}

// LoadNetworks builds the network table: built-in networks, then the
// networks.toml at path (missing is fine), then <NAME>_RPC_URL variables
// looked up through lookup (os.LookupEnv when nil).
func LoadNetworks(path string, lookup func(string) (string, bool)) (*Networks, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	nets := &Networks{byName: builtinNetworks()}

	if path != "" {
		var file networksFileData
		md, err := toml.DecodeFile(path, &file)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
			}
			for name, n := range file.Networks {
				nets.merge(name, n, md)
			}
		}
	}

	for name, n := range nets.byName {
		if url, ok := lookup(envName(name) + "_RPC_URL"); ok && url != "" {
			n.RPCURLs = []string{url}
		}
	}
	return nets, nil
}

// merge overlays the keys defined in networks.toml onto the built-in entry.
func (ns *Networks) merge(name string, n Network, md toml.MetaData) {
	base, ok := ns.byName[name]
	if !ok {
		n.Name = name
		if n.BlockConfirmations == 0 {
			n.BlockConfirmations = 1
		}
		ns.byName[name] = &n
		return
	}
	set := func(key string) bool { return md.IsDefined("networks", name, key) }
	if set("chain_id") {
		base.ChainID = n.ChainID
	}
	if set("rpc_urls") {
		base.RPCURLs = n.RPCURLs
	}
	if set("block_confirmations") {
		base.BlockConfirmations = n.BlockConfirmations
	}
	if set("vrf_coordinator") {
		base.VRFCoordinator = n.VRFCoordinator
	}
	if set("entrance_fee") {
		base.EntranceFee = n.EntranceFee
	}
	if set("gas_lane") {
		base.GasLane = n.GasLane
	}
	if set("subscription_id") {
		base.SubscriptionID = n.SubscriptionID
	}
	if set("callback_gas_limit") {
		base.CallbackGasLimit = n.CallbackGasLimit
	}
	if set("interval") {
		base.Interval = n.Interval
	}
	if set("explorer_api") {
		base.ExplorerAPI = n.ExplorerAPI
	}
	if set("explorer_url") {
		base.ExplorerURL = n.ExplorerURL
	}
}

func envName(network string) string {
	return strings.ToUpper(strings.ReplaceAll(network, "-", "_"))
}

// Get returns the network called name.
func (ns *Networks) Get(name string) (*Network, error) {
	n, ok := ns.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrNetworkNotFound, name, strings.Join(ns.Names(), ", "))
	}
	return n, nil
}

// ByChainID returns the first network (by name) with chainID.
func (ns *Networks) ByChainID(chainID int64) (*Network, error) {
	for _, name := range ns.Names() {
		if ns.byName[name].ChainID == chainID {
			return ns.byName[name], nil
		}
	}
	return nil, fmt.Errorf("%w: chain id %d", ErrNetworkNotFound, chainID)
}

// Names returns all network names sorted.
func (ns *Networks) Names() []string {
	names := make([]string, 0, len(ns.byName))
	for name := range ns.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every network sorted by name.
func (ns *Networks) All() []*Network {
	out := make([]*Network, 0, len(ns.byName))
	for _, name := range ns.Names() {
		out = append(out, ns.byName[name])
	}
	return out
}
