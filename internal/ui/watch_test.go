package ui

import (
	"math/big"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

func watchUpdate(t *testing.T, m WatchModel, msg tea.Msg) WatchModel {
	t.Helper()
	next, _ := m.Update(msg)
	wm, ok := next.(WatchModel)
	require.True(t, ok)
	return wm
}

func TestWatchModelPrependsEvents(t *testing.T) {
	m := WatchModel{Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", Network: "localhost"}
	assert.Contains(t, m.View(), "Waiting for raffle events")

	player := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventRaffleEntered, Player: player, BlockNumber: 5}})
	m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventRequestedRaffleWinner, RequestID: big.NewInt(1), BlockNumber: 6}})
	m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventWinnerPicked, Winner: player, BlockNumber: 7}})

	require.Len(t, m.Events, 3)
	assert.Equal(t, raffle.EventWinnerPicked, m.Events[0].Name)
	assert.Equal(t, raffle.EventRaffleEntered, m.Events[2].Name)

	view := m.View()
	assert.Contains(t, view, "request 1")
	assert.Contains(t, view, "#7")
	assert.Contains(t, view, "3 event(s)")
	assert.Contains(t, view, "Winner picked: "+player.Hex())
}

func TestWatchModelCapsRows(t *testing.T) {
	m := WatchModel{}
	for i := 0; i < maxWatchRows+10; i++ {
		m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventRaffleEntered, BlockNumber: uint64(i)}})
	}
	assert.Len(t, m.Events, maxWatchRows)
	assert.Equal(t, uint64(maxWatchRows+9), m.Events[0].BlockNumber)
}

func TestWatchModelStatusAndNavigation(t *testing.T) {
	m := WatchModel{}
	assert.Contains(t, m.View(), "connecting")

	m = watchUpdate(t, m, WatchStatusMsg{BlockNum: 42, Fetching: true})
	assert.Contains(t, m.View(), "polling block #42")
	m = watchUpdate(t, m, WatchStatusMsg{BlockNum: 42})
	assert.Contains(t, m.View(), "last checked: block #42")
	m = watchUpdate(t, m, WatchStatusMsg{ErrMsg: "connection refused"})
	assert.Contains(t, m.View(), "connection refused")

	m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventRaffleEntered}})
	m = watchUpdate(t, m, WatchEventMsg{Event: &raffle.Event{Name: raffle.EventRaffleEntered}})
	m = watchUpdate(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = watchUpdate(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)
	m = watchUpdate(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)

	m = watchUpdate(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	assert.Contains(t, m.View(), "No explorer URL available")

	m = watchUpdate(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.Quitting)
	assert.Empty(t, m.View())
}
