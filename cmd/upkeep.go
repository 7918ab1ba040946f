package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
)

var upkeepData string

var upkeepCmd = &cobra.Command{
	Use:   "upkeep",
	Short: "Check or perform the raffle's Automation upkeep",
	Long: `An upkeep is needed once the raffle is open, the interval has passed,
and it has at least one player and a non-zero balance. Performing it closes
the round and requests a random winner.

Examples:
  w3raffle upkeep check
  w3raffle upkeep perform -n localhost`,
}

var upkeepCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Call checkUpkeep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		data, err := parseCheckData(upkeepData)
		if err != nil {
			return err
		}
		needed, perform, err := s.raffle.CheckUpkeep(ctx, data)
		if err != nil {
			return err
		}
		if needed {
			fmt.Println(ui.Success("Upkeep needed"))
		} else {
			fmt.Println(ui.Info("No upkeep needed"))
		}
		if len(perform) > 0 {
			fmt.Println(ui.Meta("  performData: 0x" + hex.EncodeToString(perform)))
		}
		return nil
	},
}

var upkeepPerformCmd = &cobra.Command{
	Use:   "perform",
	Short: "Send performUpkeep and print the VRF request id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		signer, err := resolveSigner()
		if err != nil {
			return err
		}
		data, err := parseCheckData(upkeepData)
		if err != nil {
			return err
		}
		tctx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
		defer cancel()
		id, receipt, err := s.raffle.PerformUpkeep(tctx, txOpts(s.network, signer), data)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("Upkeep performed, request " + ui.Val(id.String())))
		fmt.Println(ui.Meta("  tx " + receipt.TxHash.Hex()))
		if s.network.IsDevelopment() {
			fmt.Println(ui.Hint("Play the oracle with `w3raffle fulfill " + id.String() + "`"))
		}
		return nil
	},
}

func parseCheckData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid --data: %w", err)
	}
	return b, nil
}

var fulfillCmd = &cobra.Command{
	Use:   "fulfill <requestId>",
	Short: "Fulfil a VRF request through the coordinator mock (development networks)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := new(big.Int).SetString(args[0], 10)
		if !ok || id.Sign() <= 0 {
			return fmt.Errorf("invalid request id %q", args[0])
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		if err := requireDevelopment(s.network, "fulfill"); err != nil {
			return err
		}
		coordAddr, err := resolveCoordinator(s.network)
		if err != nil {
			return err
		}
		signer, err := resolveSigner()
		if err != nil {
			return err
		}
		tctx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
		defer cancel()
		f, err := vrf.New(coordAddr, s.client).FulfillRandomWords(tctx, txOpts(s.network, signer), id, s.raffle.Address())
		if err != nil {
			return err
		}
		if !f.Success {
			fmt.Println(ui.Warn("Coordinator accepted the words but the raffle callback reverted"))
			return nil
		}
		winner, err := s.raffle.RecentWinner(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("Request " + id.String() + " fulfilled, winner " + ui.Addr(winner.Hex())))
		return nil
	},
}

var timeCmd = &cobra.Command{
	Use:   "time",
	Short: "Manipulate the clock of a development chain",
}

var timeAdvanceCmd = &cobra.Command{
	Use:   "advance <seconds>",
	Short: "evm_increaseTime then evm_mine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secs, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seconds %q", args[0])
		}
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		if err := requireDevelopment(n, "time advance"); err != nil {
			return err
		}
		ctx := cmd.Context()
		client, err := dial(ctx, n)
		if err != nil {
			return err
		}
		if err := client.IncreaseTime(ctx, secs); err != nil {
			return err
		}
		if err := client.Mine(ctx); err != nil {
			return err
		}
		ts, err := client.BlockTimestamp(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Advanced %ds, block timestamp now %d", secs, ts)))
		return nil
	},
}

func init() {
	upkeepCmd.PersistentFlags().StringVar(&upkeepData, "data", "", "checkData as hex (default: empty)")
	upkeepCmd.AddCommand(upkeepCheckCmd, upkeepPerformCmd)
	for _, c := range []*cobra.Command{upkeepCheckCmd, upkeepPerformCmd, fulfillCmd} {
		addAddressFlag(c)
	}
	timeCmd.AddCommand(timeAdvanceCmd)
}
