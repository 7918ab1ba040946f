package raffle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/contract"
)

// Contract revert signals.
var (
	ErrNotEnoughETHEntered = errors.New("raffle: not enough ETH entered")
	ErrLotteryNotOpen      = errors.New("raffle: lottery not open")
	ErrTransferFailed      = errors.New("raffle: transfer to winner failed")
	ErrUpkeepNotNeeded     = errors.New("raffle: upkeep not needed")
	ErrOnlyCoordinator     = errors.New("raffle: only the VRF coordinator can fulfill")
)

// UpkeepNotNeededError carries the contract state reported by a rejected
// performUpkeep. It matches ErrUpkeepNotNeeded with errors.Is.
type UpkeepNotNeededError struct {
	CurrentBalance *big.Int
	NumPlayers     uint64
	RaffleState    State
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%v (balance %s wei, %d players, state %s)",
		ErrUpkeepNotNeeded, e.CurrentBalance, e.NumPlayers, e.RaffleState)
}

// Is makes errors.Is(err, ErrUpkeepNotNeeded) work.
func (e *UpkeepNotNeededError) Is(target error) bool { return target == ErrUpkeepNotNeeded }

// translate maps decoded contract reverts onto the package errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var rev *contract.RevertError
	if !errors.As(err, &rev) {
		return err
	}
	switch rev.Name {
	case "Raffle__NotEnoughETHEntered":
		return ErrNotEnoughETHEntered
	case "Raffle__LotteryNotOpen":
		return ErrLotteryNotOpen
	case "Raffle__TransferFailed":
		return ErrTransferFailed
	case "OnlyCoordinatorCanFulfill":
		return fmt.Errorf("%w: %v", ErrOnlyCoordinator, rev.Args)
	case "Raffle__UpkeepNotNeeded":
		e := &UpkeepNotNeededError{CurrentBalance: new(big.Int)}
		if len(rev.Args) == 3 {
			if b, ok := rev.Args[0].(*big.Int); ok {
				e.CurrentBalance = b
			}
			if n, ok := rev.Args[1].(*big.Int); ok {
				e.NumPlayers = n.Uint64()
			}
			if s, ok := rev.Args[2].(*big.Int); ok {
				e.RaffleState = State(s.Uint64())
			}
		}
		return e
	}
	return err
}
