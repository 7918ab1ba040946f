package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/deploy"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
	"github.com/Mohsinsiddi/w3raffle/internal/verify"
)

var (
	deployArtifacts string
	deployNoVerify  bool
	deployFrontend  bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the raffle (and VRF mocks on local chains)",
	Long: `Deploy the Raffle contract to the selected network.

On hardhat/localhost a VRFCoordinatorV2Mock is deployed (or reused), a
subscription is created, funded and the raffle added as consumer. On live
networks the configured coordinator and subscription are used and the
contract is verified when ETHERSCAN_API_KEY is set.

Examples:
  w3raffle deploy
  w3raffle deploy -n sepolia
  UPDATE_FRONTEND=true w3raffle deploy -n localhost`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		d, client, err := newDeployer(cmd.Context(), n)
		if err != nil {
			return err
		}
		if !n.IsDevelopment() && !ui.Confirm(fmt.Sprintf("Deploy Raffle to %s from %s?", n.Name, d.Opts.Signer.Address().Hex())) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.TxDeployTimeout)
		defer cancel()
		res, err := d.Run(ctx)
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"Network", ui.ChainName(n.Name)},
			{"Raffle", ui.Addr(res.Raffle.Hex())},
			{"Coordinator", ui.Addr(res.Coordinator.Hex())},
			{"Subscription", fmt.Sprint(res.SubscriptionID)},
			{"Tx", res.TxHash.Hex()},
			{"Block", fmt.Sprint(res.BlockNumber)},
		}
		if !n.IsDevelopment() {
			pairs = append(pairs, [2]string{"Verified", fmt.Sprint(res.Verified)})
		}
		if res.FrontendUpdated {
			pairs = append(pairs, [2]string{"Frontend", cfg.FrontendAddressFile})
		}
		fmt.Println(ui.KeyValueBlock("Raffle deployed", pairs))
		if url := n.TxURL(res.TxHash.Hex()); url != "" {
			fmt.Println(ui.Meta("  " + url))
		}
		if bal, err := client.Balance(cmd.Context(), d.Opts.Signer.Address()); err == nil {
			fmt.Println(ui.Meta("  deployer balance: " + chain.WeiToETH(bal) + " ETH"))
		}
		if !n.IsDevelopment() && res.SubscriptionID != 0 {
			fmt.Println(ui.Hint("Add the raffle as a consumer of subscription " + fmt.Sprint(res.SubscriptionID) + " at vrf.chain.link and register an upkeep"))
		}
		return nil
	},
}

var deployMocksCmd = &cobra.Command{
	Use:   "mocks",
	Short: "Deploy only the VRF coordinator mock (development networks)",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		if err := requireDevelopment(n, "deploy mocks"); err != nil {
			return err
		}
		d, _, err := newDeployer(cmd.Context(), n)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), config.TxDeployTimeout)
		defer cancel()
		addr, err := d.DeployMocks(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("VRFCoordinatorV2Mock at " + ui.Addr(addr.Hex())))
		return nil
	},
}

// newDeployer wires a Deployer for n from flags, config and environment.
func newDeployer(ctx context.Context, n *config.Network) (*deploy.Deployer, *chain.EVMClient, error) {
	client, err := dial(ctx, n)
	if err != nil {
		return nil, nil, err
	}
	signer, err := resolveSigner()
	if err != nil {
		return nil, nil, err
	}
	reg, err := loadRegistry()
	if err != nil {
		return nil, nil, err
	}
	root := deployArtifacts
	if root == "" {
		root = cfg.ArtifactsDir
	}
	d := &deploy.Deployer{
		Backend:      client,
		Network:      n,
		Opts:         txOpts(n, signer),
		Artifacts:    deploy.HardhatArtifacts(root),
		Registry:     reg,
		Logger:       newLogger(),
		BuildInfoDir: deploy.BuildInfoDir(root),
	}
	if v := newVerifier(n); v != nil && !deployNoVerify {
		d.Verifier = v
	}
	if env.FrontendUpdates() || deployFrontend {
		d.Frontend = &deploy.FrontendFiles{
			AddressFile: filepath.Clean(cfg.FrontendAddressFile),
			ABIFile:     filepath.Clean(cfg.FrontendABIFile),
		}
	}
	return d, client, nil
}

// newVerifier returns an explorer client for n, or nil when verification
// is not possible there.
func newVerifier(n *config.Network) *verify.Client {
	if n.IsDevelopment() || env.EtherscanAPIKey == "" || n.ExplorerAPI == "" {
		return nil
	}
	return verify.NewClient(n.ExplorerAPI, env.EtherscanAPIKey, n.ChainID)
}

func init() {
	deployCmd.PersistentFlags().StringVar(&deployArtifacts, "artifacts", "", "Hardhat artifacts directory (default: config artifacts_dir)")
	deployCmd.Flags().BoolVar(&deployNoVerify, "no-verify", false, "skip explorer verification")
	deployCmd.Flags().BoolVar(&deployFrontend, "update-frontend", false, "update frontend constants (same as UPDATE_FRONTEND=true)")
	deployCmd.AddCommand(deployMocksCmd)
}
