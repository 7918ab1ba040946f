package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/price"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var (
	enterValue   string
	enterYes     bool
	dashReadOnly bool
)

var enterCmd = &cobra.Command{
	Use:   "enter",
	Short: "Enter the raffle by paying the entrance fee",
	Long: `Buy one entry. The value defaults to the contract's entrance fee;
--value overrides it (entries below the fee revert).

Examples:
  w3raffle enter
  w3raffle enter -a player --value 0.02`,
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
		value, err := entryValue(ctx, s.raffle)
		if err != nil {
			return err
		}
		if !s.network.IsDevelopment() && !enterYes &&
			!ui.Confirm(fmt.Sprintf("Enter raffle %s on %s for %s ETH?", ui.TruncateAddr(s.raffle.Address().Hex()), s.network.Name, chain.WeiToETH(value))) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}

		sp := ui.NewSpinner("Entering raffle...")
		sp.Start()
		tctx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
		defer cancel()
		opts := txOpts(s.network, signer)
		opts.Value = value
		receipt, err := s.raffle.Enter(tctx, opts)
		sp.Stop()
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(ui.NoticeEntered + " " + ui.Meta(receipt.TxHash.Hex())))
		if url := s.network.TxURL(receipt.TxHash.Hex()); url != "" {
			fmt.Println(ui.Meta("  " + url))
		}
		return nil
	},
}

func entryValue(ctx context.Context, r *raffle.Raffle) (*big.Int, error) {
	if enterValue != "" {
		return chain.ParseEther(enterValue)
	}
	return r.EntranceFee(ctx)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the raffle's entrance fee, prize pool, players and state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		snap, err := s.raffle.Snapshot(ctx)
		if err != nil {
			return err
		}
		needed, _, err := s.raffle.CheckUpkeep(ctx, nil)
		if err != nil {
			return err
		}
		pairs := statusPairs(snap, needed, time.Now())
		if statusFiat != "" {
			pairs = append(pairs, fiatPair(ctx, price.NewFetcher(statusFiat), snap.PrizePool))
		}
		fmt.Println(ui.KeyValueBlock("Raffle on "+s.network.Name, pairs))
		return nil
	},
}

var statusFiat string

// fiatPair values the prize pool at the mainnet ETH price. A failed
// quote is shown in place of the value.
func fiatPair(ctx context.Context, f *price.Fetcher, pool *big.Int) [2]string {
	v, err := f.Value(ctx, pool)
	if err != nil {
		return [2]string{"Prize pool (fiat)", ui.Meta("unavailable: " + err.Error())}
	}
	return [2]string{"Prize pool (fiat)", ui.Val("≈ " + price.Format(v, f.Currency()))}
}

// statusPairs renders a snapshot as key/value rows.
func statusPairs(snap *raffle.Snapshot, upkeepNeeded bool, now time.Time) [][2]string {
	winner := "none yet"
	if snap.RecentWinner != (common.Address{}) {
		winner = ui.Addr(snap.RecentWinner.Hex())
	}
	next := time.Unix(int64(snap.LatestTimestamp+snap.Interval), 0)
	due := "due"
	if next.After(now) {
		due = "in " + next.Sub(now).Round(time.Second).String()
	}
	return [][2]string{
		{"Address", ui.Addr(snap.Address.Hex())},
		{"Entrance fee", ui.Val(chain.WeiToETH(snap.EntranceFee) + " ETH")},
		{"Prize pool", ui.Val(chain.WeiToETH(snap.PrizePool) + " ETH")},
		{"Players", strconv.FormatUint(snap.NumPlayers, 10)},
		{"State", ui.LotteryState(snap.State == raffle.StateOpen) + ui.Meta(" ("+snap.State.String()+")")},
		{"Recent winner", winner},
		{"Interval", (time.Duration(snap.Interval) * time.Second).String()},
		{"Next draw", due},
		{"Upkeep needed", strconv.FormatBool(upkeepNeeded)},
	}
}

var playerCmd = &cobra.Command{
	Use:   "player <index>",
	Short: "Show the player at an index of the current round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		p, err := s.raffle.Player(ctx, idx)
		if err != nil {
			return err
		}
		fmt.Println(ui.Addr(p.Hex()))
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"ui"},
	Short:   "Interactive entrance screen",
	Long: `Open the raffle entrance screen: entrance fee, prize pool, number of
players, recent winner and lottery state, refreshed periodically. Press e to
enter with the selected account, r to refresh, q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		var enter ui.EnterFunc
		if !dashReadOnly {
			if signer, err := resolveSigner(); err == nil {
				opts := txOpts(s.network, signer)
				enter = func(ctx context.Context) (common.Hash, error) {
					return enterAtFee(ctx, s.raffle, opts)
				}
			}
		}
		interval := time.Duration(cfg.WatchInterval) * time.Second
		m := ui.NewEntrance(ctx, s.network.Name, interval, s.raffle.Snapshot, enter)
		return ui.RunEntrance(m)
	},
}

func enterAtFee(ctx context.Context, r *raffle.Raffle, opts contract.TransactOpts) (common.Hash, error) {
	fee, err := r.EntranceFee(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Value = fee
	tctx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
	defer cancel()
	receipt, err := r.Enter(tctx, opts)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func init() {
	enterCmd.Flags().StringVar(&enterValue, "value", "", "ETH to send (default: entrance fee)")
	enterCmd.Flags().BoolVarP(&enterYes, "yes", "y", false, "skip confirmation on live networks")
	statusCmd.Flags().StringVar(&statusFiat, "fiat", "", "also value the prize pool in this currency (e.g. usd)")
	dashboardCmd.Flags().BoolVar(&dashReadOnly, "read-only", false, "disable entering")
	for _, c := range []*cobra.Command{enterCmd, statusCmd, playerCmd, dashboardCmd} {
		addAddressFlag(c)
	}
}
