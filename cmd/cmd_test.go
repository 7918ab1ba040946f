package cmd

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/price"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/sim"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
)

var player = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func testNetworks(t *testing.T) *config.Networks {
	t.Helper()
	nets, err := config.LoadNetworks("", func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	return nets
}

func TestErrorLine(t *testing.T) {
	out := errorLine(&raffle.UpkeepNotNeededError{CurrentBalance: big.NewInt(0), NumPlayers: 0, RaffleState: raffle.StateOpen})
	assert.Contains(t, out, "Upkeep not needed")
	assert.Contains(t, out, "0 players")

	assert.Contains(t, errorLine(raffle.ErrNotEnoughETHEntered), "Not enough ETH entered")
	assert.Contains(t, errorLine(raffle.ErrLotteryNotOpen), "calculating a winner")
	assert.Contains(t, errorLine(vrf.ErrNonexistentRequest), "nonexistent request")
	assert.Contains(t, errorLine(errors.New("boom")), "boom")
}

func TestEventNames(t *testing.T) {
	got, err := eventNames([]string{"winnerpicked", "RaffleEntered"})
	require.NoError(t, err)
	assert.Equal(t, []string{raffle.EventWinnerPicked, raffle.EventRaffleEntered}, got)

	_, err = eventNames([]string{"Transfer"})
	assert.ErrorContains(t, err, "unknown event")
}

func TestEventsTable(t *testing.T) {
	out := eventsTable([]*raffle.Event{
		{Name: raffle.EventRaffleEntered, Player: player, BlockNumber: 3},
		{Name: raffle.EventRequestedRaffleWinner, RequestID: big.NewInt(1), BlockNumber: 4},
		{Name: raffle.EventWinnerPicked, Winner: player, BlockNumber: 5},
	}).Render()
	assert.Contains(t, out, "request 1")
	assert.Contains(t, out, player.Hex())
	assert.Contains(t, eventsTable(nil).Render(), "No raffle events in range")
}

func TestStatusPairs(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	snap := &raffle.Snapshot{
		Address:         common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		EntranceFee:     big.NewInt(10_000_000_000_000_000),
		PrizePool:       big.NewInt(30_000_000_000_000_000),
		NumPlayers:      3,
		State:           raffle.StateOpen,
		Interval:        30,
		LatestTimestamp: uint64(now.Unix()) - 10,
	}
	block := ui.KeyValueBlock("", statusPairs(snap, false, now))
	assert.Contains(t, block, "0.01 ETH")
	assert.Contains(t, block, "0.03 ETH")
	assert.Contains(t, block, "none yet")
	assert.Contains(t, block, "in 20s")
	assert.Contains(t, block, "On")

	snap.LatestTimestamp = uint64(now.Unix()) - 60
	snap.RecentWinner = player
	block = ui.KeyValueBlock("", statusPairs(snap, true, now))
	assert.Contains(t, block, "due")
	assert.Contains(t, block, player.Hex())
	assert.Contains(t, block, "true")
}

func TestParseCheckData(t *testing.T) {
	b, err := parseCheckData("")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = parseCheckData("0x0102")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	_, err = parseCheckData("0xzz")
	assert.ErrorContains(t, err, "invalid --data")
}

func TestRequireDevelopment(t *testing.T) {
	nets := testNetworks(t)
	hh, err := nets.Get("hardhat")
	require.NoError(t, err)
	assert.NoError(t, requireDevelopment(hh, "fulfill"))

	sep, err := nets.Get("sepolia")
	require.NoError(t, err)
	assert.ErrorContains(t, requireDevelopment(sep, "fulfill"), "hardhat, localhost")
}

func TestNetworksTable(t *testing.T) {
	out := networksTable(testNetworks(t).All(), "sepolia").Render()
	assert.Contains(t, out, "11155111")
	assert.Contains(t, out, "development")
	assert.Contains(t, out, "live")
}

func TestRoundsTable(t *testing.T) {
	out := roundsTable([]*history.Round{{
		RequestID: "7",
		Winner:    player.Hex(),
		PrizeWei:  big.NewInt(20_000_000_000_000_000),
		Players:   2,
		PickedAt:  time.Now(),
	}}).Render()
	assert.Contains(t, out, "0.02")
	assert.Contains(t, out, "7")
	assert.Contains(t, roundsTable(nil).Render(), "No rounds recorded yet")
}

func TestSimParamsAndRun(t *testing.T) {
	hh, err := testNetworks(t).Get("hardhat")
	require.NoError(t, err)
	params, err := simParams(hh)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", params.EntranceFee.String())
	assert.Equal(t, uint64(20), params.Interval)

	net, err := sim.Setup(1_700_000_000, params)
	require.NoError(t, err)
	rounds, err := net.Run(sim.Scenario{Players: 2, Rounds: 2}, nil)
	require.NoError(t, err)
	require.Len(t, rounds, 2)

	out := simRoundsTable(rounds).Render()
	assert.Contains(t, out, "0.02")
	assert.Contains(t, out, rounds[1].Winner.Hex())
}

type fakeEvents struct {
	mu     sync.Mutex
	ranges [][2]uint64
	events []*raffle.Event
}

func (f *fakeEvents) Events(_ context.Context, from, to uint64, _ ...string) ([]*raffle.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]uint64{from, to})
	var out []*raffle.Event
	for _, ev := range f.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeBlocks struct {
	mu    sync.Mutex
	heads []uint64
	err   error
}

func (f *fakeBlocks) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	h := f.heads[0]
	if len(f.heads) > 1 {
		f.heads = f.heads[1:]
	}
	return h, nil
}

func collect(t *testing.T, src eventSource, blocks blockSource, from uint64, polls int) []tea.Msg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(polls)*10*time.Millisecond+5*time.Millisecond)
	defer cancel()
	var (
		mu   sync.Mutex
		msgs []tea.Msg
	)
	pollEvents(ctx, src, blocks, from, 10*time.Millisecond, func(m tea.Msg) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
	})
	return msgs
}

func TestPollEventsFromHead(t *testing.T) {
	src := &fakeEvents{events: []*raffle.Event{
		{Name: raffle.EventRaffleEntered, Player: player, BlockNumber: 5},
		{Name: raffle.EventWinnerPicked, Winner: player, BlockNumber: 12},
	}}
	msgs := collect(t, src, &fakeBlocks{heads: []uint64{10, 12, 12}}, 0, 3)

	var evs []*raffle.Event
	for _, m := range msgs {
		if e, ok := m.(ui.WatchEventMsg); ok {
			evs = append(evs, e.Event)
		}
	}
	require.Len(t, evs, 1, "events before the starting head are not replayed")
	assert.Equal(t, raffle.EventWinnerPicked, evs[0].Name)
	require.NotEmpty(t, src.ranges)
	assert.Equal(t, [2]uint64{11, 12}, src.ranges[0])
}

func TestPollEventsReplay(t *testing.T) {
	src := &fakeEvents{events: []*raffle.Event{{Name: raffle.EventRaffleEntered, BlockNumber: 5}}}
	msgs := collect(t, src, &fakeBlocks{heads: []uint64{8}}, 1, 1)

	found := false
	for _, m := range msgs {
		if e, ok := m.(ui.WatchEventMsg); ok && e.Event.BlockNumber == 5 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPollEventsReportsErrors(t *testing.T) {
	msgs := collect(t, &fakeEvents{}, &fakeBlocks{err: errors.New("connection refused")}, 0, 1)
	require.NotEmpty(t, msgs)
	st, ok := msgs[0].(ui.WatchStatusMsg)
	require.True(t, ok)
	assert.True(t, strings.Contains(st.ErrMsg, "connection refused"))
}

func TestFiatPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer srv.Close()

	pair := fiatPair(context.Background(), price.NewFetcher("usd", price.WithBaseURL(srv.URL)), big.NewInt(30_000_000_000_000_000))
	assert.Equal(t, "Prize pool (fiat)", pair[0])
	assert.Contains(t, pair[1], "60.00 USD")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	pair = fiatPair(context.Background(), price.NewFetcher("usd", price.WithBaseURL(down.URL)), big.NewInt(1))
	assert.Contains(t, pair[1], "unavailable")
}

func TestSubscriptionID(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg, keeperSubID = saved, 0 })
	var err error
	cfg, err = config.Load(t.TempDir())
	require.NoError(t, err)

	hh, err := testNetworks(t).Get("hardhat")
	require.NoError(t, err)
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	assert.Equal(t, hh.SubscriptionID, subscriptionID(hh, addr), "falls back to the network config")

	reg := contract.NewRegistry(cfg.DeploymentsPath())
	reg.Add(&contract.Deployment{
		Name:    raffle.ContractName,
		Network: "hardhat",
		Address: addr.Hex(),
		Args: raffle.ConstructorArgs{
			EntranceFee:      big.NewInt(1),
			SubscriptionID:   7,
			CallbackGasLimit: 500000,
			Interval:         big.NewInt(30),
		}.Strings(),
	})
	require.NoError(t, reg.Save())
	assert.Equal(t, uint64(7), subscriptionID(hh, addr))
	assert.Equal(t, hh.SubscriptionID, subscriptionID(hh, common.HexToAddress("0x01")), "record of another raffle is ignored")

	keeperSubID = 3
	assert.Equal(t, uint64(3), subscriptionID(hh, addr))
}
