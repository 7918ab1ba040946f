package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/rpc"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Inspect networks and manage RPC endpoints",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(networksTable(networks.All(), cfg.DefaultNetwork).Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d network(s), overrides in %s", len(networks.All()), cfg.NetworksPath())))
		return nil
	},
}

func networksTable(all []*config.Network, def string) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "Name", Width: 12},
		{Title: "Chain ID", Width: 10},
		{Title: "Kind", Width: 12},
		{Title: "Fee (ETH)", Width: 10},
		{Title: "Interval", Width: 9},
		{Title: "Confs", Width: 6},
		{Title: "Default", Width: 8},
	})
	for _, n := range all {
		kind := "live"
		if n.IsDevelopment() {
			kind = "development"
		}
		mark := ""
		if n.Name == def {
			mark = ui.StyleSuccess.Render("✓")
		}
		t.AddRow(ui.ChainName(n.Name), fmt.Sprint(n.ChainID), kind, n.EntranceFee,
			fmt.Sprintf("%ds", n.Interval), fmt.Sprint(n.BlockConfirmations), mark)
	}
	return t
}

var networkUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := networks.Get(args[0]); err != nil {
			return fmt.Errorf("%w: run `w3raffle network list`", err)
		}
		cfg.DefaultNetwork = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Default network set to " + ui.ChainName(args[0])))
		return nil
	},
}

var networkRPCCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Manage custom RPC endpoints for the selected network",
}

var networkRPCAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add an RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		if err := cfg.AddRPC(n.Name, args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC added for %s", ui.ChainName(n.Name))))
		return nil
	},
}

var networkRPCRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove an RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		if err := cfg.RemoveRPC(n.Name, args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC removed for %s", ui.ChainName(n.Name))))
		return nil
	},
}

var networkRPCTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe every RPC endpoint of the selected network",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		urls := append(append([]string(nil), n.RPCURLs...), cfg.GetRPCs(n.Name)...)
		if len(urls) == 0 {
			fmt.Println(ui.Warn("No RPC endpoints configured for " + n.Name))
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCSelectTimeout)
		defer cancel()
		sp := ui.NewSpinner(fmt.Sprintf("Probing %d endpoint(s)...", len(urls)))
		sp.Start()
		results := rpc.Probe(ctx, urls)
		sp.Stop()

		t := ui.NewTable([]ui.Column{
			{Title: "URL", Width: 48},
			{Title: "Latency", Width: 10},
			{Title: "Block", Width: 12},
			{Title: "Status", Width: 24},
		})
		for _, e := range results {
			status := ui.StyleSuccess.Render("ok")
			if !e.Healthy() {
				status = ui.StyleError.Render(e.Err.Error())
			}
			t.AddRow(e.URL, e.Latency.Round(time.Millisecond).String(), fmt.Sprint(e.BlockNumber), status)
		}
		fmt.Print(t.Render())
		return nil
	},
}

func init() {
	networkRPCCmd.AddCommand(networkRPCAddCmd, networkRPCRemoveCmd, networkRPCTestCmd)
	networkCmd.AddCommand(networkListCmd, networkUseCmd, networkRPCCmd)
}
