package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/deploy"
	"github.com/Mohsinsiddi/w3raffle/internal/frontend"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Manage the web app's contract constants",
}

var frontendUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Write the raffle address and ABI into the frontend constants",
	Long: `Append the raffle address to contractAddress.json under the chain id
(skipping duplicates) and overwrite abi.json with the raffle ABI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		chainID, err := s.client.ChainID(ctx)
		if err != nil {
			return err
		}
		files := deploy.FrontendFiles{AddressFile: cfg.FrontendAddressFile, ABIFile: cfg.FrontendABIFile}
		if err := deploy.UpdateFrontend(files, chainID, s.raffle.Address(), raffleABI(s.network.Name)); err != nil {
			return err
		}
		fmt.Println(ui.Success("Frontend constants updated"))
		fmt.Println(ui.Meta("  " + files.AddressFile))
		fmt.Println(ui.Meta("  " + files.ABIFile))
		return nil
	},
}

// raffleABI prefers the ABI recorded at deployment over the embedded one.
func raffleABI(network string) []byte {
	if reg, err := loadRegistry(); err == nil {
		if d, err := reg.Get(raffle.ContractName, network); err == nil && len(d.ABI) > 0 {
			return d.ABI
		}
	}
	return raffle.RawABI()
}

var frontendShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the addresses in contractAddress.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := frontend.ReadAddresses(cfg.FrontendAddressFile)
		if err != nil {
			return err
		}
		t := ui.NewTable([]ui.Column{{Title: "Chain", Width: 10}, {Title: "Address", Width: 44}, {Title: "Latest", Width: 6}})
		t.Empty = "No addresses recorded in " + cfg.FrontendAddressFile
		for id, list := range addrs {
			for i, a := range list {
				latest := ""
				if i == len(list)-1 {
					latest = "✓"
				}
				t.AddRow(id, common.HexToAddress(a).Hex(), latest)
			}
		}
		fmt.Print(t.Render())
		return nil
	},
}

func init() {
	frontendCmd.AddCommand(frontendUpdateCmd, frontendShowCmd)
	addAddressFlag(frontendUpdateCmd)
}
