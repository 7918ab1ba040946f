package raffle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted by the raffle.
const (
	EventRaffleEntered         = "RaffleEntered"
	EventRequestedRaffleWinner = "RequestedRaffleWinner"
	EventWinnerPicked          = "WinnerPicked"
)

// Event is one decoded raffle log. Only the field matching Name is set.
type Event struct {
	Name        string
	Player      common.Address
	RequestID   *big.Int
	Winner      common.Address
	BlockNumber uint64
	TxHash      common.Hash
}

func (e *Event) String() string {
	switch e.Name {
	case EventRaffleEntered:
		return fmt.Sprintf("%s player=%s", e.Name, e.Player.Hex())
	case EventRequestedRaffleWinner:
		return fmt.Sprintf("%s requestId=%s", e.Name, e.RequestID)
	case EventWinnerPicked:
		return fmt.Sprintf("%s winner=%s", e.Name, e.Winner.Hex())
	}
	return e.Name
}

// ParseEvent decodes a raffle log.
func ParseEvent(log chain.Log) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	ev := &Event{BlockNumber: uint64(log.BlockNumber), TxHash: log.TxHash}
	switch log.Topics[0] {
	case ABI.Events[EventRaffleEntered].ID:
		var out struct{ Player common.Address }
		if err := contract.UnpackLog(ABI, &out, EventRaffleEntered, log); err != nil {
			return nil, err
		}
		ev.Name, ev.Player = EventRaffleEntered, out.Player
	case ABI.Events[EventRequestedRaffleWinner].ID:
		var out struct{ RequestId *big.Int } //nolint:revive
		if err := contract.UnpackLog(ABI, &out, EventRequestedRaffleWinner, log); err != nil {
			return nil, err
		}
		ev.Name, ev.RequestID = EventRequestedRaffleWinner, out.RequestId
	case ABI.Events[EventWinnerPicked].ID:
		var out struct{ Winner common.Address }
		if err := contract.UnpackLog(ABI, &out, EventWinnerPicked, log); err != nil {
			return nil, err
		}
		ev.Name, ev.Winner = EventWinnerPicked, out.Winner
	default:
		return nil, fmt.Errorf("unknown raffle event topic %s", log.Topics[0].Hex())
	}
	return ev, nil
}

// Events returns the raffle events between fromBlock and toBlock (0 = latest),
// optionally restricted to the given event names.
func (r *Raffle) Events(ctx context.Context, fromBlock, toBlock uint64, names ...string) ([]*Event, error) {
	q := chain.FilterQuery{Address: r.Address(), FromBlock: fromBlock, ToBlock: toBlock}
	for _, n := range names {
		ev, ok := ABI.Events[n]
		if !ok {
			return nil, fmt.Errorf("unknown raffle event %q", n)
		}
		q.Topics = append(q.Topics, ev.ID)
	}
	logs, err := r.backend.Logs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching raffle logs: %w", err)
	}
	out := make([]*Event, 0, len(logs))
	for _, l := range logs {
		ev, err := ParseEvent(l)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// WaitForWinner polls for a WinnerPicked event at or after fromBlock and
// returns the first one seen.
func (r *Raffle) WaitForWinner(ctx context.Context, fromBlock uint64, poll time.Duration) (*Event, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		evs, err := r.Events(ctx, fromBlock, 0, EventWinnerPicked)
		if err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			return evs[0], nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", EventWinnerPicked, ctx.Err())
		case <-ticker.C:
		}
	}
}
