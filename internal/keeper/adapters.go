package keeper

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/Mohsinsiddi/w3raffle/internal/sim"
	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
)

// ErrCallbackFailed is returned when the coordinator accepted a fulfilment
// but the raffle's callback reverted.
var ErrCallbackFailed = errors.New("consumer callback failed")

// OnChain drives a deployed raffle over JSON-RPC.
type OnChain struct {
	Raffle *raffle.Raffle
	Opts   contract.TransactOpts
	// Poll is the WinnerPicked polling period.
	Poll time.Duration
}

func (o *OnChain) Address() common.Address { return o.Raffle.Address() }

func (o *OnChain) CheckUpkeep(ctx context.Context) (bool, error) {
	needed, _, err := o.Raffle.CheckUpkeep(ctx, nil)
	return needed, err
}

func (o *OnChain) PerformUpkeep(ctx context.Context) (*Upkeep, error) {
	id, receipt, err := o.Raffle.PerformUpkeep(ctx, o.Opts, nil)
	if err != nil {
		return nil, err
	}
	return &Upkeep{RequestID: id, TxHash: receipt.TxHash, Block: uint64(receipt.BlockNumber)}, nil
}

func (o *OnChain) Snapshot(ctx context.Context) (*raffle.Snapshot, error) {
	return o.Raffle.Snapshot(ctx)
}

func (o *OnChain) AwaitWinner(ctx context.Context, u *Upkeep) (common.Address, error) {
	ev, err := o.Raffle.WaitForWinner(ctx, u.Block, o.Poll)
	if err != nil {
		return common.Address{}, err
	}
	return ev.Winner, nil
}

// MockFulfiller plays the VRF oracle through a deployed coordinator mock.
type MockFulfiller struct {
	Coordinator *vrf.Coordinator
	Opts        contract.TransactOpts
	// SubID is the subscription the raffle bills. Zero skips consumer
	// registration.
	SubID uint64
}

// EnsureConsumer adds consumer to SubID unless it is already registered.
func (m *MockFulfiller) EnsureConsumer(ctx context.Context, consumer common.Address) (bool, error) {
	if m.SubID == 0 {
		return false, nil
	}
	ok, err := m.Coordinator.ConsumerIsAdded(ctx, m.SubID, consumer)
	if err != nil || ok {
		return false, err
	}
	if err := m.Coordinator.AddConsumer(ctx, m.Opts, m.SubID, consumer); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MockFulfiller) FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) error {
	f, err := m.Coordinator.FulfillRandomWords(ctx, m.Opts, requestID, consumer)
	if err != nil {
		return err
	}
	if !f.Success {
		return ErrCallbackFailed
	}
	return nil
}

// Simulated drives an in-process sim network. It is both the Raffle and
// the Fulfiller.
type Simulated struct {
	Net *sim.Network
}

func (s *Simulated) Address() common.Address { return s.Net.Raffle.Address() }

func (s *Simulated) CheckUpkeep(context.Context) (bool, error) {
	return s.Net.Raffle.CheckUpkeep(), nil
}

func (s *Simulated) PerformUpkeep(context.Context) (*Upkeep, error) {
	id, err := s.Net.Raffle.PerformUpkeep()
	if err != nil {
		return nil, err
	}
	return &Upkeep{RequestID: id, Block: s.Net.Chain.BlockNumber()}, nil
}

func (s *Simulated) Snapshot(context.Context) (*raffle.Snapshot, error) {
	return s.Net.Raffle.Snapshot(), nil
}

func (s *Simulated) AwaitWinner(_ context.Context, u *Upkeep) (common.Address, error) {
	for _, ev := range s.Net.Raffle.Events(u.Block) {
		if ev.Name == raffle.EventWinnerPicked {
			return ev.Winner, nil
		}
	}
	return common.Address{}, ErrNoWinner
}

func (s *Simulated) EnsureConsumer(_ context.Context, consumer common.Address) (bool, error) {
	if s.Net.Coordinator.ConsumerIsAdded(s.Net.SubID, consumer) {
		return false, nil
	}
	if err := s.Net.Coordinator.AddConsumer(s.Net.Deployer, s.Net.SubID, consumer); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulated) FulfillRandomWords(_ context.Context, requestID *big.Int, consumer common.Address) error {
	f, err := s.Net.Coordinator.FulfillRandomWords(requestID, consumer)
	if err != nil {
		return err
	}
	if !f.Success {
		return ErrCallbackFailed
	}
	return nil
}
