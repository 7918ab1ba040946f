package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3raffle/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir      string
	cfg         *config.Config
	env         *config.Env
	networks    *config.Networks
	networkFlag string
	accountFlag string
	verbose     bool
	logFormat   string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3raffle",
	Short: "Deploy, play and keep a verifiably random raffle",
	Long: `w3raffle drives a Chainlink VRF raffle contract from the terminal.

  Deploy the raffle (with a VRF coordinator mock on local chains), enter it,
  inspect its state, run the upkeep keeper that closes rounds and picks
  winners, and export addresses and ABI for the web frontend.

Networks come from the built-in table (hardhat, localhost, sepolia) plus
networks.toml in the config directory. Environment variables such as
SEPOLIA_RPC_URL, PRIVATE_KEY and ETHERSCAN_API_KEY are honoured.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		env, err = config.LoadEnv()
		if err != nil {
			return err
		}
		dir := cfgDir
		if dir == "" {
			dir = env.ConfigDir
		}
		cfg, err = config.Load(dir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		networks, err = config.LoadNetworks(cfg.NetworksPath(), os.LookupEnv)
		if err != nil {
			return fmt.Errorf("loading networks: %w", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: $W3RAFFLE_CONFIG_DIR or ~/.w3raffle)")
	rootCmd.PersistentFlags().StringVarP(&networkFlag, "network", "n", "", "network name (default: configured default network)")
	rootCmd.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "signing account name (default: PRIVATE_KEY or configured default account)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format for long-running commands: text or json")

	rootCmd.AddCommand(
		deployCmd,
		enterCmd,
		statusCmd,
		playerCmd,
		dashboardCmd,
		upkeepCmd,
		keeperCmd,
		fulfillCmd,
		timeCmd,
		eventsCmd,
		watchCmd,
		frontendCmd,
		verifyCmd,
		historyCmd,
		simulateCmd,
		walletCmd,
		networkCmd,
	)
}
