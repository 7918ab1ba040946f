package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/keeper"
	"github.com/Mohsinsiddi/w3raffle/internal/metrics"
	"github.com/Mohsinsiddi/w3raffle/internal/notify"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
)

var (
	keeperInterval  time.Duration
	keeperMetrics   string
	keeperNoHistory bool
	keeperNoFulfill bool
	keeperSubID     uint64
)

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Automate upkeep: close rounds and pick winners",
	Long: `The keeper plays the Chainlink Automation node: it calls checkUpkeep,
sends performUpkeep when a draw is due and waits for WinnerPicked. On
development chains it also plays the VRF oracle through the coordinator
mock. Completed rounds are stored in the history database and announced
on Telegram when TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are set.

Examples:
  w3raffle keeper once -n localhost
  w3raffle keeper run --interval 30s --metrics 127.0.0.1:9464`,
}

var keeperOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single keeper pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		k, cleanup, err := newKeeper(ctx, newLogger())
		if err != nil {
			return err
		}
		defer cleanup()
		res, err := k.RunOnce(ctx)
		if err != nil {
			return err
		}
		switch {
		case !res.Needed:
			fmt.Println(ui.Info(res.Message()))
		case res.Winner == (common.Address{}):
			fmt.Println(ui.Warn(res.Message()))
		default:
			fmt.Println(ui.Success(res.Message()))
		}
		return nil
	},
}

var keeperRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the keeper loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := newLogger()
		k, cleanup, err := newKeeper(ctx, log)
		if err != nil {
			return err
		}
		defer cleanup()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return k.Run(gctx) })
		if addr := metricsAddr(); addr != "" {
			handler := metrics.NewRouter(k.Metrics, k.Raffle.Snapshot, log)
			g.Go(func() error { return metrics.Serve(gctx, addr, handler, log) })
		}
		return g.Wait()
	},
}

func metricsAddr() string {
	if keeperMetrics != "" {
		return keeperMetrics
	}
	return cfg.MetricsAddr
}

// newKeeper wires a Keeper for the selected network. cleanup closes the
// history store.
func newKeeper(ctx context.Context, log *slog.Logger) (*keeper.Keeper, func(), error) {
	s, err := openSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	signer, err := resolveSigner()
	if err != nil {
		return nil, nil, err
	}
	opts := txOpts(s.network, signer)

	interval := keeperInterval
	if interval <= 0 {
		interval = time.Duration(cfg.KeeperInterval) * time.Second
	}
	k := &keeper.Keeper{
		Raffle:        &keeper.OnChain{Raffle: s.raffle, Opts: opts, Poll: pollInterval(s.network)},
		Network:       s.network.Name,
		Logger:        log,
		Metrics:       metrics.New(),
		Notifier:      newNotifier(log),
		Interval:      interval,
		WinnerTimeout: config.WinnerTimeout,
		TxURL: func(h common.Hash) string {
			return s.network.TxURL(h.Hex())
		},
	}
	if s.network.IsDevelopment() {
		k.WinnerTimeout = config.TxConfirmTimeout
		if !keeperNoFulfill {
			coord, err := resolveCoordinator(s.network)
			if err != nil {
				return nil, nil, err
			}
			subID := subscriptionID(s.network, s.raffle.Address())
			if subID == 0 {
				log.Warn("VRF subscription unknown, consumer registration skipped: pass --sub-id")
			}
			k.Fulfiller = &keeper.MockFulfiller{Coordinator: vrf.New(coord, s.client), Opts: opts, SubID: subID}
		}
	}

	cleanup := func() {}
	if !keeperNoHistory {
		store, err := history.Open(cfg.HistoryDB(), log)
		if err != nil {
			return nil, nil, err
		}
		k.History = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				log.Warn("closing history", "error", err)
			}
		}
	}
	return k, cleanup, nil
}

// subscriptionID finds the VRF subscription addr bills: --sub-id, then the
// recorded deployment's constructor args, then the network config.
func subscriptionID(n *config.Network, addr common.Address) uint64 {
	if keeperSubID != 0 {
		return keeperSubID
	}
	if reg, err := loadRegistry(); err == nil {
		if d, err := reg.Get(raffle.ContractName, n.Name); err == nil && common.HexToAddress(d.Address) == addr {
			if args, err := raffle.ParseConstructorArgs(d.Args); err == nil {
				return args.SubscriptionID
			}
		}
	}
	return n.SubscriptionID
}

func pollInterval(n *config.Network) time.Duration {
	if n.IsDevelopment() {
		return 500 * time.Millisecond
	}
	return 5 * time.Second
}

// newNotifier returns the Telegram notifier when configured, otherwise a
// no-op.
func newNotifier(log *slog.Logger) notify.Notifier {
	if env.TelegramBotToken == "" || len(env.TelegramChatIDs) == 0 {
		return notify.Nop{}
	}
	tg, err := notify.NewTelegramChats(env.TelegramBotToken, env.TelegramChatIDs, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		log.Warn("telegram notifications disabled", "error", err)
		return notify.Nop{}
	}
	return tg
}

func init() {
	keeperCmd.PersistentFlags().DurationVar(&keeperInterval, "interval", 0, "time between passes (default: config keeper_interval)")
	keeperCmd.PersistentFlags().BoolVar(&keeperNoHistory, "no-history", false, "do not record rounds")
	keeperCmd.PersistentFlags().BoolVar(&keeperNoFulfill, "no-fulfill", false, "do not play the VRF oracle on development chains")
	keeperCmd.PersistentFlags().Uint64Var(&keeperSubID, "sub-id", 0, "VRF subscription of the raffle on development chains (default: from the deployment record)")
	keeperRunCmd.Flags().StringVar(&keeperMetrics, "metrics", "", "metrics listen address (default: config metrics_addr, empty disables)")
	keeperCmd.AddCommand(keeperOnceCmd, keeperRunCmd)
	addAddressFlag(keeperOnceCmd)
	addAddressFlag(keeperRunCmd)
}
