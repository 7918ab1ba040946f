package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the recorded raffle deployment on the block explorer",
	Long: `Submit the raffle's source (from Hardhat build-info) and constructor
arguments to the network's Etherscan-compatible API. Requires
ETHERSCAN_API_KEY and a live network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		if n.IsDevelopment() {
			return errors.New("development networks cannot be verified")
		}
		if newVerifier(n) == nil {
			return fmt.Errorf("verification on %s needs ETHERSCAN_API_KEY and explorer_api", n.Name)
		}
		d, _, err := newDeployer(cmd.Context(), n)
		if err != nil {
			return err
		}
		rec, err := d.Registry.Get(raffle.ContractName, n.Name)
		if err != nil {
			return fmt.Errorf("%w: deploy with `w3raffle deploy -n %s` first", err, n.Name)
		}
		ctorArgs, err := raffle.ParseConstructorArgs(rec.Args)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), config.TxDeployTimeout)
		defer cancel()
		sp := ui.NewSpinner("Verifying " + rec.Address + "...")
		sp.Start()
		err = d.Verify(ctx, common.HexToAddress(rec.Address), ctorArgs)
		sp.Stop()
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("Verified " + ui.Addr(rec.Address)))
		return nil
	},
}
