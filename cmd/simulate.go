package cmd

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/keeper"
	"github.com/Mohsinsiddi/w3raffle/internal/metrics"
	"github.com/Mohsinsiddi/w3raffle/internal/notify"
	"github.com/Mohsinsiddi/w3raffle/internal/sim"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var (
	simPlayers int
	simRounds  int
	simKeeper  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Rehearse raffle rounds on an in-process chain",
	Long: `Run complete rounds against an in-memory model of the raffle and the
VRF coordinator mock: players enter, time passes the interval, upkeep is
performed and the request fulfilled. Parameters come from the selected
network. Nothing is sent to any node.

Examples:
  w3raffle simulate --players 5 --rounds 3
  w3raffle simulate --keeper -v`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		params, err := simParams(n)
		if err != nil {
			return err
		}
		net, err := sim.Setup(uint64(time.Now().Unix()), params)
		if err != nil {
			return err
		}

		var rounds []sim.Round
		if simKeeper {
			rounds, err = simulateWithKeeper(cmd, net, n.Name)
		} else {
			rounds, err = net.Run(sim.Scenario{Players: simPlayers, Rounds: simRounds}, nil)
		}
		if err != nil {
			return err
		}
		fmt.Print(simRoundsTable(rounds).Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d round(s) on a simulated %s, subscription %d",
			len(rounds), n.Name, net.SubID)))
		return nil
	},
}

// simParams takes the raffle constructor arguments from n.
func simParams(n *config.Network) (sim.RaffleParams, error) {
	fee, err := n.EntranceFeeWei()
	if err != nil {
		return sim.RaffleParams{}, err
	}
	lane, err := n.GasLaneHash()
	if err != nil {
		return sim.RaffleParams{}, err
	}
	return sim.RaffleParams{
		EntranceFee:      fee,
		GasLane:          lane,
		CallbackGasLimit: n.CallbackGasLimit,
		Interval:         n.Interval,
	}, nil
}

// simulateWithKeeper drives rounds through the keeper instead of the
// scripted scenario, so logging, metrics and history behave as in
// `keeper run`.
func simulateWithKeeper(cmd *cobra.Command, net *sim.Network, network string) ([]sim.Round, error) {
	if simPlayers <= 0 {
		return nil, sim.ErrNoPlayers
	}
	ctx := cmd.Context()
	log := newLogger()
	store, err := history.Open(":memory:", log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	adapter := &keeper.Simulated{Net: net}
	k := &keeper.Keeper{
		Raffle:    adapter,
		Fulfiller: adapter,
		Network:   network,
		Logger:    log,
		Metrics:   metrics.New(),
		History:   store,
		Notifier:  notify.Nop{},
	}

	snap := net.Raffle.Snapshot()
	var rounds []sim.Round
	for i := 1; i <= simRounds; i++ {
		for j := 0; j < simPlayers; j++ {
			p := sim.Account(fmt.Sprintf("player-%d", j))
			net.Chain.Fund(p, snap.EntranceFee)
			if err := net.Raffle.Enter(p, snap.EntranceFee); err != nil {
				return rounds, err
			}
		}
		net.Chain.IncreaseTime(snap.Interval + 1)
		net.Chain.Mine()

		res, err := k.RunOnce(ctx)
		if err != nil {
			return rounds, err
		}
		if !res.Needed {
			return rounds, fmt.Errorf("round %d: upkeep not needed", i)
		}
		rounds = append(rounds, sim.Round{
			Number:    i,
			RequestID: res.RequestID,
			Players:   int(res.Players),
			Winner:    res.Winner,
			Prize:     res.Prize,
			Timestamp: net.Raffle.LatestTimestamp(),
		})
	}
	return rounds, nil
}

func simRoundsTable(rounds []sim.Round) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "Round", Width: 6},
		{Title: "Request", Width: 8},
		{Title: "Players", Width: 8},
		{Title: "Winner", Width: 44},
		{Title: "Prize (ETH)", Width: 12},
		{Title: "VRF fee (LINK)", Width: 14},
	})
	t.Empty = "No rounds played"
	for _, r := range rounds {
		fee := "-"
		if r.Payment != nil {
			fee = chain.WeiToETH(r.Payment)
		}
		prize := new(big.Int)
		if r.Prize != nil {
			prize = r.Prize
		}
		t.AddRow(fmt.Sprint(r.Number), r.RequestID.String(), fmt.Sprint(r.Players),
			r.Winner.Hex(), chain.WeiToETH(prize), fee)
	}
	return t
}

func init() {
	simulateCmd.Flags().IntVarP(&simPlayers, "players", "p", 3, "players per round")
	simulateCmd.Flags().IntVarP(&simRounds, "rounds", "r", 1, "rounds to play")
	simulateCmd.Flags().BoolVar(&simKeeper, "keeper", false, "drive rounds through the keeper")
}
