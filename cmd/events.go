package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var (
	eventsFrom  uint64
	eventsTo    uint64
	eventsNames []string
	watchFrom   uint64
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List raffle events (RaffleEntered, RequestedRaffleWinner, WinnerPicked)",
	Long: `Print the raffle's decoded logs over a block range.

Examples:
  w3raffle events
  w3raffle events --event WinnerPicked --from 4200000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		names, err := eventNames(eventsNames)
		if err != nil {
			return err
		}
		evs, err := s.raffle.Events(ctx, eventsFrom, eventsTo, names...)
		if err != nil {
			return err
		}
		fmt.Print(eventsTable(evs).Render())
		return nil
	},
}

// eventNames canonicalises --event values case-insensitively.
func eventNames(in []string) ([]string, error) {
	known := []string{raffle.EventRaffleEntered, raffle.EventRequestedRaffleWinner, raffle.EventWinnerPicked}
	out := make([]string, 0, len(in))
	for _, n := range in {
		found := false
		for _, k := range known {
			if strings.EqualFold(n, k) {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown event %q (want one of %s)", n, strings.Join(known, ", "))
		}
	}
	return out, nil
}

func eventsTable(evs []*raffle.Event) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "Block", Width: 10},
		{Title: "Event", Width: 22},
		{Title: "Detail", Width: 44},
		{Title: "Tx", Width: 14},
	})
	t.Empty = "No raffle events in range"
	for _, ev := range evs {
		var detail string
		switch ev.Name {
		case raffle.EventRaffleEntered:
			detail = ev.Player.Hex()
		case raffle.EventRequestedRaffleWinner:
			detail = "request " + ev.RequestID.String()
		case raffle.EventWinnerPicked:
			detail = ev.Winner.Hex()
		}
		t.AddRow(fmt.Sprint(ev.BlockNumber), ev.Name, detail, ui.TruncateAddr(ev.TxHash.Hex()))
	}
	return t
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream raffle events live",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		m := ui.WatchModel{
			Address: s.raffle.Address().Hex(),
			Network: s.network.Name,
		}
		if s.network.ExplorerURL != "" {
			m.TxURL = s.network.TxURL
		}
		p := tea.NewProgram(m, tea.WithAltScreen())

		interval := time.Duration(cfg.WatchInterval) * time.Second
		pctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go pollEvents(pctx, s.raffle, s.client, watchFrom, interval, p.Send)

		_, err = p.Run()
		return err
	},
}

type eventSource interface {
	Events(ctx context.Context, fromBlock, toBlock uint64, names ...string) ([]*raffle.Event, error)
}

type blockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// pollEvents sends every new raffle event and a status update per poll
// until ctx is done. from = 0 starts at the current head.
func pollEvents(ctx context.Context, src eventSource, blocks blockSource, from uint64, interval time.Duration, send func(tea.Msg)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	next := from
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		head, err := blocks.BlockNumber(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			send(ui.WatchStatusMsg{ErrMsg: err.Error()})
		case next == 0:
			next = head + 1
			send(ui.WatchStatusMsg{BlockNum: head})
		case head >= next:
			send(ui.WatchStatusMsg{BlockNum: head, Fetching: true})
			evs, err := src.Events(ctx, next, head)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(ui.WatchStatusMsg{BlockNum: head, ErrMsg: err.Error()})
				break
			}
			for _, ev := range evs {
				send(ui.WatchEventMsg{Event: ev})
			}
			next = head + 1
			send(ui.WatchStatusMsg{BlockNum: head})
		default:
			send(ui.WatchStatusMsg{BlockNum: head})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	eventsCmd.Flags().Uint64Var(&eventsFrom, "from", 0, "first block")
	eventsCmd.Flags().Uint64Var(&eventsTo, "to", 0, "last block (0 = latest)")
	eventsCmd.Flags().StringSliceVar(&eventsNames, "event", nil, "only these events (repeatable)")
	watchCmd.Flags().Uint64Var(&watchFrom, "from", 0, "replay from this block (default: head)")
	addAddressFlag(eventsCmd)
	addAddressFlag(watchCmd)
}
