package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/w3raffle/internal/vrf"
	"github.com/ethereum/go-ethereum/common"
)

// Network is a ready-to-use development deployment: a coordinator mock with
// a funded subscription and a raffle registered as its consumer.
type Network struct {
	Chain       *Chain
	Deployer    common.Address
	Coordinator *Coordinator
	Raffle      *Raffle
	SubID       uint64
}

// Setup mirrors the development deployment: deploy the mock, create and
// fund a subscription, deploy the raffle and add it as consumer.
func Setup(genesis uint64, p RaffleParams) (*Network, error) {
	c := NewChain(genesis)
	deployer := Account("deployer")
	coord := c.DeployCoordinator(deployer, vrf.BaseFee, vrf.GasPriceLink)

	subID := coord.CreateSubscription(deployer)
	if err := coord.FundSubscription(subID, vrf.FundAmount); err != nil {
		return nil, err
	}
	p.SubscriptionID = subID
	r := c.DeployRaffle(deployer, coord, p)
	if err := coord.AddConsumer(deployer, subID, r.Address()); err != nil {
		return nil, err
	}
	return &Network{Chain: c, Deployer: deployer, Coordinator: coord, Raffle: r, SubID: subID}, nil
}

// Round is the outcome of one simulated draw.
type Round struct {
	Number    int
	RequestID *big.Int
	Players   int
	Winner    common.Address
	Prize     *big.Int
	Payment   *big.Int
	Timestamp uint64
}

// Scenario describes a multi-round rehearsal.
type Scenario struct {
	Players int
	Rounds  int
	// Starting balance given to each player.
	Allowance *big.Int
}

// ErrNoPlayers is returned for scenarios without entrants.
var ErrNoPlayers = errors.New("sim: scenario needs at least one player")

// Run plays s on n: every player enters once per round, time moves past
// the interval, the keeper performs upkeep and the coordinator fulfils.
// onRound, if set, is called after each round.
func (n *Network) Run(s Scenario, onRound func(Round)) ([]Round, error) {
	if s.Players <= 0 {
		return nil, ErrNoPlayers
	}
	fee := n.Raffle.params.EntranceFee
	allowance := s.Allowance
	if allowance == nil {
		allowance = new(big.Int).Mul(fee, big.NewInt(int64(s.Rounds+1)))
	}
	players := make([]common.Address, s.Players)
	for i := range players {
		players[i] = Account(fmt.Sprintf("player-%d", i))
		n.Chain.Fund(players[i], allowance)
	}

	var rounds []Round
	for i := 1; i <= s.Rounds; i++ {
		for _, p := range players {
			if err := n.Raffle.Enter(p, fee); err != nil {
				return rounds, fmt.Errorf("round %d: %s entering: %w", i, p.Hex(), err)
			}
		}
		pool := n.Chain.Balance(n.Raffle.Address())

		n.Chain.IncreaseTime(n.Raffle.params.Interval + 1)
		n.Chain.Mine()

		reqID, err := n.Raffle.PerformUpkeep()
		if err != nil {
			return rounds, fmt.Errorf("round %d: %w", i, err)
		}
		f, err := n.Coordinator.FulfillRandomWords(reqID, n.Raffle.Address())
		if err != nil {
			return rounds, fmt.Errorf("round %d: %w", i, err)
		}
		if !f.Success {
			return rounds, fmt.Errorf("round %d: consumer rejected request %s", i, reqID)
		}
		round := Round{
			Number:    i,
			RequestID: reqID,
			Players:   len(players),
			Winner:    n.Raffle.RecentWinner(),
			Prize:     pool,
			Payment:   f.Payment,
			Timestamp: n.Raffle.LatestTimestamp(),
		}
		rounds = append(rounds, round)
		if onRound != nil {
			onRound(round)
		}
	}
	return rounds, nil
}
