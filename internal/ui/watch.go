package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

// WatchEventMsg is sent for every new raffle event found while polling.
type WatchEventMsg struct {
	Event *raffle.Event
}

// WatchStatusMsg updates the polling status bar.
type WatchStatusMsg struct {
	BlockNum uint64
	Fetching bool
	ErrMsg   string
}

// WatchModel is the Bubble Tea model for the live raffle event stream.
type WatchModel struct {
	Address string
	Network string
	// TxURL renders an explorer link for a tx hash; nil disables "o".
	TxURL func(hash string) string

	Events   []*raffle.Event
	Status   WatchStatusMsg
	Frame    int
	Quitting bool
	cursor   int
	flash    string
}

const maxWatchRows = 200

type watchTickMsg struct{}

func watchSpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

func (m WatchModel) Init() tea.Cmd { return watchSpinTick() }

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.flash = ""
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.Events)-1 {
				m.cursor++
			}
		case "o":
			if ev := m.selected(); ev != nil && m.TxURL != nil {
				openBrowser(m.TxURL(ev.TxHash.Hex()))
				m.flash = "Opening in browser…"
			} else {
				m.flash = "No explorer URL available"
			}
		case "c":
			if ev := m.selected(); ev != nil {
				hash := ev.TxHash.Hex()
				if err := copyToClipboard(hash); err == nil {
					m.flash = "Copied: " + hash[:10] + "…"
				} else {
					m.flash = "Copy failed"
				}
			}
		}

	case watchTickMsg:
		m.Frame = (m.Frame + 1) % len(spinFrames)
		return m, watchSpinTick()

	case WatchEventMsg:
		// newest first
		m.Events = append([]*raffle.Event{msg.Event}, m.Events...)
		if len(m.Events) > maxWatchRows {
			m.Events = m.Events[:maxWatchRows]
		}
		if msg.Event.Name == raffle.EventWinnerPicked {
			m.flash = "Winner picked: " + msg.Event.Winner.Hex()
		}

	case WatchStatusMsg:
		m.Status = msg
	}
	return m, nil
}

func (m WatchModel) selected() *raffle.Event {
	if m.cursor < len(m.Events) {
		return m.Events[m.cursor]
	}
	return nil
}

func (m WatchModel) View() string {
	if m.Quitting {
		return ""
	}
	var sb strings.Builder
	spin := spinFrames[m.Frame]

	title := fmt.Sprintf("👁  Raffle events  ·  %s  ·  %s", TruncateAddr(m.Address), m.Network)
	sb.WriteString(StyleTitle.Render(title) + "\n")

	switch {
	case m.Status.ErrMsg != "":
		sb.WriteString(StyleError.Render("✗ "+trimErr(m.Status.ErrMsg)) + "\n\n")
	case m.Status.Fetching:
		sb.WriteString(StyleInfo.Render(fmt.Sprintf("%s polling block #%d…", spin, m.Status.BlockNum)) + "\n\n")
	case m.Status.BlockNum > 0:
		sb.WriteString(StyleMeta.Render(fmt.Sprintf("  last checked: block #%d", m.Status.BlockNum)) + "\n\n")
	default:
		sb.WriteString(StyleMeta.Render("  connecting…") + "\n\n")
	}

	const (
		wEvent = 22
		wWho   = 44
		wBlk   = 10
	)
	sep := StyleMeta.Render(strings.Repeat("─", wEvent+wWho+wBlk+14))
	sb.WriteString(
		padR(StyleDim.Render("EVENT"), wEvent) + "  " +
			padR(StyleDim.Render("DETAIL"), wWho) + "  " +
			padR(StyleDim.Render("BLOCK"), wBlk) + "  " +
			StyleDim.Render("TX") + "\n",
	)
	sb.WriteString(sep + "\n")

	if len(m.Events) == 0 {
		sb.WriteString(StyleMeta.Render("  Waiting for raffle events…") + "\n")
	} else {
		for i, ev := range m.Events {
			line := padR(eventName(ev), wEvent) + "  " +
				padR(eventDetail(ev), wWho) + "  " +
				padR(StyleMeta.Render(fmt.Sprintf("#%d", ev.BlockNumber)), wBlk) + "  " +
				StyleAddress.Render(TruncateAddr(ev.TxHash.Hex()))
			if i == m.cursor {
				sb.WriteString(StyleSelected.Render(line) + "\n")
			} else {
				sb.WriteString(line + "\n")
			}
		}
		sb.WriteString(sep + "\n")
		sb.WriteString(StyleMeta.Render(fmt.Sprintf("  %d event(s)", len(m.Events))) + "\n")
	}

	sb.WriteString("\n")
	if m.flash != "" {
		sb.WriteString(StyleSuccess.Render("  ✓ " + m.flash))
	} else {
		sb.WriteString(watchControls())
	}
	sb.WriteString("\n")
	return sb.String()
}

func eventName(ev *raffle.Event) string {
	switch ev.Name {
	case raffle.EventWinnerPicked:
		return StyleSuccess.Render(ev.Name)
	case raffle.EventRequestedRaffleWinner:
		return StyleWarning.Render(ev.Name)
	}
	return StyleInfo.Render(ev.Name)
}

func eventDetail(ev *raffle.Event) string {
	switch ev.Name {
	case raffle.EventRaffleEntered:
		return Addr(ev.Player.Hex())
	case raffle.EventRequestedRaffleWinner:
		return Val("request " + ev.RequestID.String())
	case raffle.EventWinnerPicked:
		return Addr(ev.Winner.Hex())
	}
	return ""
}

func watchControls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ ]"))
	sb.WriteString(StyleMeta.Render(" navigate"))
	sb.WriteString(sep)
	sb.WriteString(StyleInfo.Render("[ o ]"))
	sb.WriteString(StyleMeta.Render(" open in browser"))
	sb.WriteString(sep)
	sb.WriteString(StyleWarning.Render("[ c ]"))
	sb.WriteString(StyleMeta.Render(" copy hash"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// openBrowser opens url in the OS default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

// copyToClipboard writes text to the system clipboard.
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("clip")
	default:
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	_, _ = io.WriteString(stdin, text)
	stdin.Close()
	return cmd.Wait()
}
