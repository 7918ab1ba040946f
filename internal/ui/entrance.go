package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

// NoticeEntered is shown once an entry transaction is confirmed.
const NoticeEntered = "Transaction Complete!"

// SnapshotFunc reads the raffle's public state.
type SnapshotFunc func(ctx context.Context) (*raffle.Snapshot, error)

// EnterFunc buys one entry at the current fee and waits for the receipt.
type EnterFunc func(ctx context.Context) (common.Hash, error)

// SnapshotMsg carries a fresh read of the raffle.
type SnapshotMsg struct {
	Snapshot *raffle.Snapshot
	Err      error
}

// EnteredMsg reports the outcome of an entry transaction.
type EnteredMsg struct {
	TxHash common.Hash
	Err    error
}

type entranceRefreshMsg struct{}
type entranceSpinMsg struct{}

// EntranceModel is the Bubble Tea model for the raffle entrance screen:
// entrance fee, prize pool, players, recent winner and lottery state, with
// a key to enter.
type EntranceModel struct {
	ctx      context.Context
	network  string
	interval time.Duration
	fetch    SnapshotFunc
	enter    EnterFunc

	snap       *raffle.Snapshot
	lastUpdate time.Time
	entering   bool
	frame      int
	notice     string
	err        string
	quitting   bool
}

// NewEntrance builds the entrance screen. enter may be nil for a read-only
// view; interval <= 0 disables auto refresh.
func NewEntrance(ctx context.Context, network string, interval time.Duration, fetch SnapshotFunc, enter EnterFunc) EntranceModel {
	return EntranceModel{ctx: ctx, network: network, interval: interval, fetch: fetch, enter: enter}
}

// Snapshot returns the last state read, or nil.
func (m EntranceModel) Snapshot() *raffle.Snapshot { return m.snap }

// Notice returns the current notification line.
func (m EntranceModel) Notice() string { return m.notice }

// Entering reports whether an entry transaction is in flight.
func (m EntranceModel) Entering() bool { return m.entering }

func (m EntranceModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchCmd()}
	if m.interval > 0 {
		cmds = append(cmds, refreshAfter(m.interval))
	}
	return tea.Batch(cmds...)
}

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return entranceRefreshMsg{} })
}

func entranceSpin() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return entranceSpinMsg{} })
}

func (m EntranceModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch(m.ctx)
		return SnapshotMsg{Snapshot: snap, Err: err}
	}
}

func (m EntranceModel) enterCmd() tea.Cmd {
	return func() tea.Msg {
		hash, err := m.enter(m.ctx)
		return EnteredMsg{TxHash: hash, Err: err}
	}
}

func (m EntranceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		case "e", "enter":
			if m.entering {
				return m, nil
			}
			if m.enter == nil {
				m.err = "read-only view: pass --account to enter"
				return m, nil
			}
			m.entering = true
			m.notice, m.err = "", ""
			return m, tea.Batch(m.enterCmd(), entranceSpin())
		}

	case SnapshotMsg:
		if msg.Err != nil {
			m.err = trimErr(msg.Err.Error())
			return m, nil
		}
		m.snap = msg.Snapshot
		m.lastUpdate = time.Now()

	case EnteredMsg:
		m.entering = false
		if msg.Err != nil {
			m.err = trimErr(msg.Err.Error())
			return m, nil
		}
		m.notice = NoticeEntered
		if msg.TxHash != (common.Hash{}) {
			m.notice += " " + TruncateAddr(msg.TxHash.Hex())
		}
		m.err = ""
		return m, m.fetchCmd()

	case entranceRefreshMsg:
		return m, tea.Batch(m.fetchCmd(), refreshAfter(m.interval))

	case entranceSpinMsg:
		if m.entering {
			m.frame = (m.frame + 1) % len(spinFrames)
			return m, entranceSpin()
		}
	}
	return m, nil
}

func (m EntranceModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("🎟  Raffle  ·  "+m.network) + "\n")

	if m.snap == nil {
		if m.err != "" {
			sb.WriteString(Err(m.err) + "\n")
		} else {
			sb.WriteString(StyleMeta.Render("  Loading raffle state…") + "\n")
		}
		sb.WriteString("\n" + entranceControls(m.enter != nil) + "\n")
		return sb.String()
	}

	s := m.snap
	sb.WriteString(StyleMeta.Render("  contract ") + Addr(s.Address.Hex()) + "\n\n")

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card(chain.WeiToETH(s.EntranceFee), "entrance fee"),
		card(chain.WeiToETH(s.PrizePool), "prize pool"),
		card(fmt.Sprintf("%d", s.NumPlayers), "number of players"),
	)
	sb.WriteString(cards + "\n\n")

	winner := StyleMeta.Render("none yet")
	if s.RecentWinner != (common.Address{}) {
		winner = StyleSuccess.Render(s.RecentWinner.Hex())
	}
	sb.WriteString("  " + winner + "\n")
	sb.WriteString(StyleMeta.Render("  recent winner") + "\n\n")
	sb.WriteString("  The Lottery State is: " + LotteryState(s.State == raffle.StateOpen) + "\n\n")

	if m.entering {
		sb.WriteString("  " + StyleButton.Render(spinFrames[m.frame]+"  Processing ...") + "\n")
	} else {
		sb.WriteString("  " + StyleButton.Render("Enter Lottery") + "\n")
	}

	sb.WriteString("\n")
	switch {
	case m.err != "":
		sb.WriteString("  " + Err(m.err) + "\n")
	case m.notice != "":
		sb.WriteString("  " + Info(m.notice) + "\n")
	}
	if !m.lastUpdate.IsZero() {
		sb.WriteString(StyleMeta.Render("  updated "+m.lastUpdate.Format("15:04:05")) + "\n")
	}
	sb.WriteString(entranceControls(m.enter != nil) + "\n")
	return sb.String()
}

func card(value, label string) string {
	return StyleCard.Render(StyleValue.Render(value) + "\n" + StyleMeta.Render(label))
}

func entranceControls(canEnter bool) string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	if canEnter {
		sb.WriteString(StyleInfo.Render("[ e ]"))
		sb.WriteString(StyleMeta.Render(" enter"))
		sb.WriteString(sep)
	}
	sb.WriteString(StyleWarning.Render("[ r ]"))
	sb.WriteString(StyleMeta.Render(" refresh"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ] quit"))
	return sb.String()
}

// RunEntrance runs the entrance screen until the user quits.
func RunEntrance(m EntranceModel) error {
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("entrance: %w", err)
	}
	return nil
}
