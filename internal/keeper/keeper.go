// Package keeper automates raffle upkeep: it checks whether a draw is due,
// performs the upkeep, plays the VRF oracle on development chains and
// reports the winner.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/metrics"
	"github.com/Mohsinsiddi/w3raffle/internal/notify"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

// ErrNoWinner is returned by AwaitWinner when no WinnerPicked event has
// been seen for an upkeep yet.
var ErrNoWinner = errors.New("no winner picked yet")

// Upkeep identifies one performUpkeep transaction.
type Upkeep struct {
	RequestID *big.Int
	TxHash    common.Hash
	Block     uint64
}

// Raffle is the contract surface the keeper drives.
type Raffle interface {
	Address() common.Address
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (*Upkeep, error)
	Snapshot(ctx context.Context) (*raffle.Snapshot, error)
	// AwaitWinner blocks until the WinnerPicked event for u is seen.
	AwaitWinner(ctx context.Context, u *Upkeep) (common.Address, error)
}

// Fulfiller delivers random words for a request. Only development chains
// have one; on live chains the oracle network fulfils.
type Fulfiller interface {
	FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) error
}

// ConsumerRegistrar makes sure the raffle may bill the VRF subscription.
// Development-chain fulfillers implement it; the keeper calls it once before
// its first upkeep.
type ConsumerRegistrar interface {
	EnsureConsumer(ctx context.Context, consumer common.Address) (added bool, err error)
}

// Recorder persists completed rounds.
type Recorder interface {
	Record(ctx context.Context, r *history.Round) error
}

// Result is the outcome of one keeper pass.
type Result struct {
	Needed    bool
	RequestID *big.Int
	UpkeepTx  common.Hash
	Winner    common.Address
	Prize     *big.Int
	Players   uint64
}

// Message is the one-line human summary of r.
func (r *Result) Message() string {
	switch {
	case !r.Needed:
		return "No upkeep needed"
	case r.Winner == (common.Address{}):
		return fmt.Sprintf("Upkeep performed, request %s awaiting fulfilment", r.RequestID)
	default:
		return fmt.Sprintf("Winner %s takes %s ETH (request %s)", r.Winner.Hex(), chain.WeiToETH(r.Prize), r.RequestID)
	}
}

// Keeper runs upkeep passes against one raffle.
type Keeper struct {
	Raffle    Raffle
	Fulfiller Fulfiller
	Network   string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	History   Recorder
	Notifier  notify.Notifier
	// Interval between passes in Run.
	Interval time.Duration
	// WinnerTimeout bounds the wait for WinnerPicked after an upkeep.
	WinnerTimeout time.Duration
	// TxURL renders an explorer link for notifications. Optional.
	TxURL func(common.Hash) string

	consumerReady bool
}

func (k *Keeper) logger() *slog.Logger {
	if k.Logger == nil {
		return slog.Default()
	}
	return k.Logger
}

// RunOnce performs a single check/perform/fulfil pass.
func (k *Keeper) RunOnce(ctx context.Context) (*Result, error) {
	log := k.logger().With("raffle", k.Raffle.Address().Hex(), "network", k.Network)

	before, err := k.Raffle.Snapshot(ctx)
	if err != nil {
		k.observeError("snapshot")
		return nil, fmt.Errorf("reading raffle state: %w", err)
	}
	k.observeSnapshot(before)

	needed, err := k.Raffle.CheckUpkeep(ctx)
	if k.Metrics != nil {
		k.Metrics.ObserveCheck(needed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("checkUpkeep: %w", err)
	}
	res := &Result{Needed: needed, Players: before.NumPlayers, Prize: before.PrizePool}
	if !needed {
		log.Debug("no upkeep needed", "players", before.NumPlayers, "state", before.State.String())
		return res, nil
	}

	if err := k.ensureConsumer(ctx, log); err != nil {
		k.observeError("add_consumer")
		return res, err
	}

	up, err := k.Raffle.PerformUpkeep(ctx)
	if k.Metrics != nil {
		k.Metrics.ObserveUpkeep(err)
	}
	if err != nil {
		return res, err
	}
	res.RequestID, res.UpkeepTx = up.RequestID, up.TxHash
	log.Info("upkeep performed", "requestId", up.RequestID.String(), "tx", up.TxHash.Hex())

	if k.Fulfiller != nil {
		err := k.Fulfiller.FulfillRandomWords(ctx, up.RequestID, k.Raffle.Address())
		if k.Metrics != nil {
			k.Metrics.ObserveFulfillment(err)
		}
		if err != nil {
			return res, fmt.Errorf("fulfilling request %s: %w", up.RequestID, err)
		}
		log.Info("randomness fulfilled", "requestId", up.RequestID.String())
	}

	waitCtx := ctx
	if k.WinnerTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, k.WinnerTimeout)
		defer cancel()
	}
	winner, err := k.Raffle.AwaitWinner(waitCtx, up)
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNoWinner)) {
			log.Warn("winner not picked yet", "requestId", up.RequestID.String(), "error", err)
			return res, nil
		}
		k.observeError("await_winner")
		return res, fmt.Errorf("awaiting winner: %w", err)
	}
	res.Winner = winner
	if k.Metrics != nil {
		k.Metrics.ObserveWinner(res.Prize)
	}
	log.Info("winner picked", "winner", winner.Hex(), "prizeEth", chain.WeiToETH(res.Prize), "players", res.Players)

	k.report(ctx, log, res)
	if after, err := k.Raffle.Snapshot(ctx); err == nil {
		k.observeSnapshot(after)
	}
	return res, nil
}

func (k *Keeper) ensureConsumer(ctx context.Context, log *slog.Logger) error {
	if k.consumerReady {
		return nil
	}
	reg, ok := k.Fulfiller.(ConsumerRegistrar)
	if !ok {
		k.consumerReady = true
		return nil
	}
	added, err := reg.EnsureConsumer(ctx, k.Raffle.Address())
	if err != nil {
		return fmt.Errorf("adding VRF consumer: %w", err)
	}
	if added {
		log.Info("raffle added as VRF consumer")
	}
	k.consumerReady = true
	return nil
}

// report stores and announces a completed round. Failures are logged only.
func (k *Keeper) report(ctx context.Context, log *slog.Logger, res *Result) {
	if k.History != nil {
		err := k.History.Record(ctx, &history.Round{
			Network:   k.Network,
			Raffle:    k.Raffle.Address().Hex(),
			RequestID: res.RequestID.String(),
			UpkeepTx:  res.UpkeepTx.Hex(),
			Winner:    res.Winner.Hex(),
			PrizeWei:  res.Prize,
			Players:   res.Players,
			PickedAt:  time.Now().UTC(),
		})
		if err != nil {
			k.observeError("history")
			log.Error("recording round", "error", err)
		}
	}
	if k.Notifier != nil {
		w := notify.Winner{
			Network:   k.Network,
			Raffle:    k.Raffle.Address().Hex(),
			Winner:    res.Winner.Hex(),
			PrizeETH:  chain.WeiToETH(res.Prize),
			Players:   res.Players,
			RequestID: res.RequestID.String(),
		}
		if k.TxURL != nil {
			w.TxURL = k.TxURL(res.UpkeepTx)
		}
		if err := k.Notifier.NotifyWinner(ctx, w); err != nil {
			k.observeError("notify")
			log.Error("notifying winner", "error", err)
		}
	}
}

// Run repeats RunOnce every Interval until ctx is cancelled. Pass errors are
// logged and do not stop the loop.
func (k *Keeper) Run(ctx context.Context) error {
	interval := k.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := k.logger()
	log.Info("keeper started", "raffle", k.Raffle.Address().Hex(), "network", k.Network, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := k.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			// shutting down
		case err != nil:
			log.Error("keeper pass failed", "error", err)
		default:
			log.Debug(res.Message())
		}

		select {
		case <-ctx.Done():
			log.Info("keeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (k *Keeper) observeSnapshot(s *raffle.Snapshot) {
	if k.Metrics != nil {
		k.Metrics.ObserveSnapshot(s)
	}
}

func (k *Keeper) observeError(op string) {
	if k.Metrics != nil {
		k.Metrics.ObserveError(op)
	}
}
