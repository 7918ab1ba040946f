package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/frontend"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/rpc"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
	"github.com/Mohsinsiddi/w3raffle/internal/wallet"
)

// newLogger builds the slog logger used by long-running commands.
func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(logFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// errorLine renders err for the terminal, spelling out decoded reverts.
func errorLine(err error) string {
	var notNeeded *raffle.UpkeepNotNeededError
	switch {
	case errors.As(err, &notNeeded):
		return ui.Err(fmt.Sprintf("Upkeep not needed: balance %s ETH, %d players, state %s",
			chain.WeiToETH(notNeeded.CurrentBalance), notNeeded.NumPlayers, notNeeded.RaffleState))
	case errors.Is(err, raffle.ErrNotEnoughETHEntered):
		return ui.Err("Not enough ETH entered: send at least the entrance fee")
	case errors.Is(err, raffle.ErrLotteryNotOpen):
		return ui.Err("The lottery is calculating a winner, try again shortly")
	case errors.Is(err, vrf.ErrNonexistentRequest):
		return ui.Err("nonexistent request")
	}
	return ui.Err(err.Error())
}

// currentNetwork resolves --network or the configured default.
func currentNetwork() (*config.Network, error) {
	name := networkFlag
	if name == "" {
		name = cfg.DefaultNetwork
	}
	n, err := networks.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: run `w3raffle network list`", err)
	}
	return n, nil
}

// dial picks an RPC endpoint for n and returns a client.
func dial(ctx context.Context, n *config.Network) (*chain.EVMClient, error) {
	urls := append(append([]string(nil), n.RPCURLs...), cfg.GetRPCs(n.Name)...)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC configured for %s: set %s_RPC_URL or add rpc_urls in %s",
			n.Name, strings.ToUpper(n.Name), cfg.NetworksPath())
	}
	sctx, cancel := context.WithTimeout(ctx, config.RPCSelectTimeout)
	defer cancel()
	url, err := rpc.Select(sctx, urls, rpc.ParseAlgorithm(cfg.RPCAlgorithm))
	if err != nil {
		return nil, fmt.Errorf("selecting RPC for %s: %w", n.Name, err)
	}
	var opts []chain.Option
	if env.RPCRateLimit > 0 {
		opts = append(opts, chain.WithRateLimit(env.RPCRateLimit, 1))
	}
	return chain.NewEVMClient(url, opts...), nil
}

func walletManager() (*wallet.Manager, error) {
	keys, err := wallet.DefaultKeystore(cfg.Dir())
	if err != nil {
		return nil, err
	}
	return wallet.NewManager(wallet.NewJSONStore(cfg.AccountsPath()), keys), nil
}

// resolveSigner picks the signing key: --account, then PRIVATE_KEY, then
// the configured default account.
func resolveSigner() (*wallet.Signer, error) {
	if accountFlag == "" && env.PrivateKey != "" {
		return wallet.NewSigner(env.PrivateKey)
	}
	name := accountFlag
	if name == "" {
		name = cfg.DefaultAccount
	}
	mgr, err := walletManager()
	if err != nil {
		return nil, err
	}
	s, err := mgr.Signer(name)
	if err != nil {
		return nil, fmt.Errorf("%w: import one with `w3raffle wallet import %s` or set PRIVATE_KEY", err, name)
	}
	return s, nil
}

func txOpts(n *config.Network, s *wallet.Signer) contract.TransactOpts {
	return contract.TransactOpts{Signer: s, Confirmations: n.BlockConfirmations}
}

func loadRegistry() (*contract.Registry, error) {
	reg := contract.NewRegistry(cfg.DeploymentsPath())
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("loading deployments: %w", err)
	}
	return reg, nil
}

// addressFlag is shared by commands that act on a deployed raffle.
var addressFlag string

func addAddressFlag(c *cobra.Command) {
	c.Flags().StringVar(&addressFlag, "address", "", "raffle address (default: recorded deployment, then frontend constants)")
}

// resolveRaffle finds the raffle address for n: --address, the deployment
// registry, then the frontend address file.
func resolveRaffle(ctx context.Context, n *config.Network, client *chain.EVMClient) (common.Address, error) {
	if addressFlag != "" {
		if !common.IsHexAddress(addressFlag) {
			return common.Address{}, fmt.Errorf("invalid --address %q", addressFlag)
		}
		return common.HexToAddress(addressFlag), nil
	}
	reg, err := loadRegistry()
	if err != nil {
		return common.Address{}, err
	}
	if d, err := reg.Get(raffle.ContractName, n.Name); err == nil {
		return common.HexToAddress(d.Address), nil
	}
	addrs, err := frontend.ReadAddresses(cfg.FrontendAddressFile)
	if err == nil {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return common.Address{}, err
		}
		if a, ok := addrs.Latest(chainID); ok {
			return a, nil
		}
	}
	return common.Address{}, fmt.Errorf("no raffle deployed on %s: run `w3raffle deploy` or pass --address", n.Name)
}

// resolveCoordinator returns the VRF coordinator mock deployed on a
// development network.
func resolveCoordinator(n *config.Network) (common.Address, error) {
	if addr, ok := n.Coordinator(); ok {
		return addr, nil
	}
	reg, err := loadRegistry()
	if err != nil {
		return common.Address{}, err
	}
	d, err := reg.Get(vrf.ContractName, n.Name)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: run `w3raffle deploy mocks`", err)
	}
	return common.HexToAddress(d.Address), nil
}

// session bundles what most raffle commands need.
type session struct {
	network *config.Network
	client  *chain.EVMClient
	raffle  *raffle.Raffle
}

func openSession(ctx context.Context) (*session, error) {
	n, err := currentNetwork()
	if err != nil {
		return nil, err
	}
	client, err := dial(ctx, n)
	if err != nil {
		return nil, err
	}
	addr, err := resolveRaffle(ctx, n, client)
	if err != nil {
		return nil, err
	}
	return &session{network: n, client: client, raffle: raffle.New(addr, client)}, nil
}

func requireDevelopment(n *config.Network, what string) error {
	if !n.IsDevelopment() {
		return fmt.Errorf("%s only works on development networks (%s), not %s",
			what, strings.Join(config.DevelopmentChains, ", "), n.Name)
	}
	return nil
}
