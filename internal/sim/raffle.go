package sim

import (
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
	"github.com/ethereum/go-ethereum/common"
)

const numWords = 1

// RaffleParams are the raffle constructor arguments.
type RaffleParams struct {
	EntranceFee      *big.Int
	GasLane          common.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         uint64
}

// Raffle models the Raffle contract on a Chain.
type Raffle struct {
	chain       *Chain
	coordinator *Coordinator
	address     common.Address
	params      RaffleParams

	players       []common.Address
	state         raffle.State
	lastTimestamp uint64
	recentWinner  common.Address
	events        []*raffle.Event
}

// DeployRaffle deploys a raffle bound to coordinator.
func (c *Chain) DeployRaffle(deployer common.Address, coordinator *Coordinator, p RaffleParams) *Raffle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine()
	return &Raffle{
		chain:         c,
		coordinator:   coordinator,
		address:       c.newContractAddress(deployer),
		params:        p,
		state:         raffle.StateOpen,
		lastTimestamp: c.now,
	}
}

// Address returns the raffle address.
func (r *Raffle) Address() common.Address { return r.address }

// Enter adds player to the round paying value wei.
func (r *Raffle) Enter(player common.Address, value *big.Int) error {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()

	if value.Cmp(r.params.EntranceFee) < 0 {
		return raffle.ErrNotEnoughETHEntered
	}
	if r.state != raffle.StateOpen {
		return raffle.ErrLotteryNotOpen
	}
	if err := r.chain.transfer(player, r.address, value); err != nil {
		return err
	}
	block := r.chain.mine()
	r.players = append(r.players, player)
	r.emit(&raffle.Event{Name: raffle.EventRaffleEntered, Player: player, BlockNumber: block})
	return nil
}

// CheckUpkeep reports whether a draw is due: open, interval elapsed, at
// least one player and a non-empty pool.
func (r *Raffle) CheckUpkeep() bool {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.upkeepNeeded()
}

func (r *Raffle) upkeepNeeded() bool {
	isOpen := r.state == raffle.StateOpen
	timePassed := r.chain.now-r.lastTimestamp > r.params.Interval
	hasPlayers := len(r.players) > 0
	hasBalance := r.chain.balance(r.address).Sign() > 0
	return isOpen && timePassed && hasPlayers && hasBalance
}

// PerformUpkeep closes the round and requests a random word. Anyone may
// call it once CheckUpkeep is true.
func (r *Raffle) PerformUpkeep() (*big.Int, error) {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()

	if !r.upkeepNeeded() {
		return nil, &raffle.UpkeepNotNeededError{
			CurrentBalance: r.chain.balance(r.address),
			NumPlayers:     uint64(len(r.players)),
			RaffleState:    r.state,
		}
	}
	id, err := r.coordinator.requestRandomWords(r.address, r, r.params.SubscriptionID, r.params.CallbackGasLimit, numWords)
	if err != nil {
		return nil, fmt.Errorf("requesting random words: %w", err)
	}
	block := r.chain.mine()
	r.state = raffle.StateCalculating
	r.emit(&raffle.Event{Name: raffle.EventRequestedRaffleWinner, RequestID: id, BlockNumber: block})
	return id, nil
}

// fulfillRandomWords runs with the chain lock held by the coordinator.
func (r *Raffle) fulfillRandomWords(_ *big.Int, words []*big.Int) error {
	if len(r.players) == 0 || len(words) == 0 {
		return fmt.Errorf("no players to pick from")
	}
	idx := new(big.Int).Mod(words[0], big.NewInt(int64(len(r.players)))).Int64()
	winner := r.players[idx]

	if err := r.chain.transfer(r.address, winner, r.chain.balance(r.address)); err != nil {
		return fmt.Errorf("%w: %v", raffle.ErrTransferFailed, err)
	}
	r.recentWinner = winner
	r.players = nil
	r.state = raffle.StateOpen
	r.lastTimestamp = r.chain.now
	r.emit(&raffle.Event{Name: raffle.EventWinnerPicked, Winner: winner, BlockNumber: r.chain.block})
	return nil
}

func (r *Raffle) emit(ev *raffle.Event) {
	r.events = append(r.events, ev)
}

// Player returns the entrant at index.
func (r *Raffle) Player(index uint64) (common.Address, error) {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	if index >= uint64(len(r.players)) {
		return common.Address{}, fmt.Errorf("player index %d out of range (%d players)", index, len(r.players))
	}
	return r.players[index], nil
}

// State returns the raffle state.
func (r *Raffle) State() raffle.State {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.state
}

// RecentWinner returns the last winner.
func (r *Raffle) RecentWinner() common.Address {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.recentWinner
}

// LatestTimestamp returns the timestamp of the last draw (or deployment).
func (r *Raffle) LatestTimestamp() uint64 {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return r.lastTimestamp
}

// Snapshot returns the same view raffle.Raffle.Snapshot reads on chain.
func (r *Raffle) Snapshot() *raffle.Snapshot {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	return &raffle.Snapshot{
		Address:         r.address,
		EntranceFee:     new(big.Int).Set(r.params.EntranceFee),
		PrizePool:       r.chain.balance(r.address),
		NumPlayers:      uint64(len(r.players)),
		RecentWinner:    r.recentWinner,
		State:           r.state,
		Interval:        r.params.Interval,
		LatestTimestamp: r.lastTimestamp,
	}
}

// Events returns the events emitted at or after fromBlock.
func (r *Raffle) Events(fromBlock uint64) []*raffle.Event {
	r.chain.mu.Lock()
	defer r.chain.mu.Unlock()
	var out []*raffle.Event
	for _, ev := range r.events {
		if ev.BlockNumber >= fromBlock {
			out = append(out, ev)
		}
	}
	return out
}
