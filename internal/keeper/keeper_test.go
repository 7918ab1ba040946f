package keeper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/metrics"
	"github.com/Mohsinsiddi/w3raffle/internal/notify"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/sim"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
)

var (
	fee      = big.NewInt(10_000_000_000_000_000)
	oneEther = big.NewInt(1_000_000_000_000_000_000)
)

const interval = 30

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newNetwork(t *testing.T) *sim.Network {
	t.Helper()
	n, err := sim.Setup(1_700_000_000, sim.RaffleParams{
		EntranceFee:      fee,
		CallbackGasLimit: 500000,
		Interval:         interval,
	})
	require.NoError(t, err)
	return n
}

func enter(t *testing.T, n *sim.Network, labels ...string) []common.Address {
	t.Helper()
	var out []common.Address
	for _, l := range labels {
		p := sim.Account(l)
		n.Chain.Fund(p, oneEther)
		require.NoError(t, n.Raffle.Enter(p, fee))
		out = append(out, p)
	}
	return out
}

func elapse(n *sim.Network) {
	n.Chain.IncreaseTime(interval + 1)
	n.Chain.Mine()
}

type notifications struct{ got []notify.Winner }

func (r *notifications) NotifyWinner(_ context.Context, w notify.Winner) error {
	r.got = append(r.got, w)
	return nil
}

func newKeeper(t *testing.T, n *sim.Network) (*Keeper, *history.Store, *notifications) {
	t.Helper()
	store, err := history.Open(":memory:", discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	rec := &notifications{}
	adapter := &Simulated{Net: n}
	return &Keeper{
		Raffle:    adapter,
		Fulfiller: adapter,
		Network:   "hardhat",
		Logger:    discard(),
		Metrics:   metrics.New(),
		History:   store,
		Notifier:  rec,
		TxURL:     func(h common.Hash) string { return "https://explorer/tx/" + h.Hex() },
	}, store, rec
}

func TestRunOnceNoUpkeepNeeded(t *testing.T) {
	n := newNetwork(t)
	k, store, rec := newKeeper(t, n)

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Needed)
	assert.Equal(t, "No upkeep needed", res.Message())
	assert.Nil(t, res.RequestID)
	assert.Empty(t, rec.got)

	rounds, err := store.Recent(context.Background(), "hardhat", "", 10)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestRunOnceBeforeIntervalDoesNothing(t *testing.T) {
	n := newNetwork(t)
	enter(t, n, "alice")
	k, _, _ := newKeeper(t, n)

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Needed)
	assert.Equal(t, raffle.StateOpen, n.Raffle.State())
}

func TestRunOncePicksWinner(t *testing.T) {
	n := newNetwork(t)
	players := enter(t, n, "alice", "bob", "carol")
	elapse(n)
	k, store, rec := newKeeper(t, n)

	balances := map[common.Address]*big.Int{}
	for _, p := range players {
		balances[p] = n.Chain.Balance(p)
	}
	pool := n.Chain.Balance(n.Raffle.Address())

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, res.Needed)
	assert.Equal(t, big.NewInt(1), res.RequestID)
	assert.Equal(t, uint64(3), res.Players)
	assert.Equal(t, pool, res.Prize)
	assert.Contains(t, players, res.Winner)
	assert.Contains(t, res.Message(), res.Winner.Hex())

	want := new(big.Int).Add(balances[res.Winner], pool)
	assert.Equal(t, want, n.Chain.Balance(res.Winner))

	snap := n.Raffle.Snapshot()
	assert.Equal(t, raffle.StateOpen, snap.State)
	assert.Zero(t, snap.NumPlayers)
	assert.Equal(t, res.Winner, snap.RecentWinner)

	rounds, err := store.Recent(context.Background(), "hardhat", n.Raffle.Address().Hex(), 10)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "1", rounds[0].RequestID)
	assert.Equal(t, res.Winner.Hex(), rounds[0].Winner)
	assert.Equal(t, pool, rounds[0].PrizeWei)

	require.Len(t, rec.got, 1)
	assert.Equal(t, "0.03", rec.got[0].PrizeETH)
	assert.Contains(t, rec.got[0].TxURL, "https://explorer/tx/")

	expected := `
# HELP w3raffle_winners_total Total number of winners picked
# TYPE w3raffle_winners_total counter
w3raffle_winners_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(k.Metrics.Registry(), strings.NewReader(expected), "w3raffle_winners_total"))
}

func TestRunOnceConsecutiveRounds(t *testing.T) {
	n := newNetwork(t)
	k, store, _ := newKeeper(t, n)

	for i := 1; i <= 3; i++ {
		enter(t, n, "alice", "bob")
		elapse(n)
		res, err := k.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(int64(i)), res.RequestID)
		assert.NotEqual(t, common.Address{}, res.Winner)
	}

	rounds, err := store.Recent(context.Background(), "hardhat", "", 10)
	require.NoError(t, err)
	assert.Len(t, rounds, 3)
	assert.Len(t, n.Coordinator.Fulfillments(), 3)
}

// liveRaffle wraps the simulator but never sees a winner, as on a live
// chain where the oracle has not answered yet.
type liveRaffle struct{ *Simulated }

func (l liveRaffle) AwaitWinner(ctx context.Context, _ *Upkeep) (common.Address, error) {
	<-ctx.Done()
	return common.Address{}, ctx.Err()
}

func TestRunOnceWithoutFulfillerTimesOut(t *testing.T) {
	n := newNetwork(t)
	enter(t, n, "alice")
	elapse(n)
	k, store, rec := newKeeper(t, n)
	k.Raffle = liveRaffle{&Simulated{Net: n}}
	k.Fulfiller = nil
	k.WinnerTimeout = 20 * time.Millisecond

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Needed)
	assert.Equal(t, big.NewInt(1), res.RequestID)
	assert.Equal(t, common.Address{}, res.Winner)
	assert.Contains(t, res.Message(), "awaiting fulfilment")
	assert.Equal(t, raffle.StateCalculating, n.Raffle.State())
	assert.True(t, n.Coordinator.Pending(res.RequestID))
	assert.Empty(t, rec.got)

	rounds, err := store.Recent(context.Background(), "hardhat", "", 10)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestRunOnceNoWinnerWithoutFulfilment(t *testing.T) {
	n := newNetwork(t)
	enter(t, n, "alice")
	elapse(n)
	k, _, _ := newKeeper(t, n)
	k.Fulfiller = nil

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, res.Winner)

	// the next pass sees a calculating raffle
	res, err = k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Needed)
}

type failingFulfiller struct{ err error }

func (f failingFulfiller) FulfillRandomWords(context.Context, *big.Int, common.Address) error {
	return f.err
}

func TestRunOnceFulfilmentError(t *testing.T) {
	n := newNetwork(t)
	enter(t, n, "alice")
	elapse(n)
	k, _, rec := newKeeper(t, n)
	boom := errors.New("oracle down")
	k.Fulfiller = failingFulfiller{err: boom}

	res, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, big.NewInt(1), res.RequestID)
	assert.Empty(t, rec.got)
}

func TestSimulatedFulfilUnknownRequest(t *testing.T) {
	n := newNetwork(t)
	s := &Simulated{Net: n}
	err := s.FulfillRandomWords(context.Background(), big.NewInt(99), n.Raffle.Address())
	assert.ErrorIs(t, err, vrf.ErrNonexistentRequest)
}

type racingRaffle struct{ *Simulated }

func (r racingRaffle) CheckUpkeep(context.Context) (bool, error) { return true, nil }

func TestRunOncePerformRevertIsTyped(t *testing.T) {
	n := newNetwork(t)
	k, _, _ := newKeeper(t, n)
	k.Raffle = racingRaffle{&Simulated{Net: n}}

	_, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, raffle.ErrUpkeepNotNeeded)
	var notNeeded *raffle.UpkeepNotNeededError
	require.ErrorAs(t, err, &notNeeded)
	assert.Zero(t, notNeeded.NumPlayers)
}

func TestRunStopsOnCancel(t *testing.T) {
	n := newNetwork(t)
	enter(t, n, "alice")
	elapse(n)

	var buf bytes.Buffer
	k, store, _ := newKeeper(t, n)
	k.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	k.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		rounds, err := store.Recent(context.Background(), "hardhat", "", 10)
		return err == nil && len(rounds) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop")
	}
	assert.Contains(t, buf.String(), "keeper stopped")
}

// unregisteredNetwork deploys a raffle on a funded subscription without
// adding it as a consumer, like a raffle deployed by another tool.
func unregisteredNetwork(t *testing.T) *sim.Network {
	t.Helper()
	c := sim.NewChain(1_700_000_000)
	deployer := sim.Account("deployer")
	coord := c.DeployCoordinator(deployer, vrf.BaseFee, vrf.GasPriceLink)
	sub := coord.CreateSubscription(deployer)
	require.NoError(t, coord.FundSubscription(sub, vrf.FundAmount))
	r := c.DeployRaffle(deployer, coord, sim.RaffleParams{
		EntranceFee:      fee,
		SubscriptionID:   sub,
		CallbackGasLimit: 500000,
		Interval:         interval,
	})
	return &sim.Network{Chain: c, Deployer: deployer, Coordinator: coord, Raffle: r, SubID: sub}
}

func TestRunOnceAddsConsumerBeforeUpkeep(t *testing.T) {
	n := unregisteredNetwork(t)
	require.False(t, n.Coordinator.ConsumerIsAdded(n.SubID, n.Raffle.Address()))
	players := enter(t, n, "alice", "bob")
	elapse(n)
	k, _, rec := newKeeper(t, n)

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, n.Coordinator.ConsumerIsAdded(n.SubID, n.Raffle.Address()))
	assert.Contains(t, players, res.Winner)
	assert.Len(t, rec.got, 1)
}

type countingRegistrar struct {
	*Simulated
	calls int
	err   error
}

func (c *countingRegistrar) EnsureConsumer(ctx context.Context, consumer common.Address) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.Simulated.EnsureConsumer(ctx, consumer)
}

func TestRunOnceEnsuresConsumerOnce(t *testing.T) {
	n := unregisteredNetwork(t)
	k, _, _ := newKeeper(t, n)
	reg := &countingRegistrar{Simulated: &Simulated{Net: n}}
	k.Fulfiller = reg

	for i := 0; i < 2; i++ {
		enter(t, n, "alice")
		elapse(n)
		res, err := k.RunOnce(context.Background())
		require.NoError(t, err)
		require.True(t, res.Needed)
	}
	assert.Equal(t, 1, reg.calls)

	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Needed)
	assert.Equal(t, 1, reg.calls)
}

func TestRunOnceConsumerErrorSkipsUpkeep(t *testing.T) {
	n := unregisteredNetwork(t)
	enter(t, n, "alice")
	elapse(n)
	k, _, _ := newKeeper(t, n)
	boom := errors.New("must be sub owner")
	reg := &countingRegistrar{Simulated: &Simulated{Net: n}, err: boom}
	k.Fulfiller = reg

	_, err := k.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, raffle.StateOpen, n.Raffle.State())

	reg.err = nil
	res, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, res.Winner)
	assert.Equal(t, 2, reg.calls)
}
