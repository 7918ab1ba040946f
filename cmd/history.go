package cmd

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/history"
	"github.com/Mohsinsiddi/w3raffle/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show rounds completed by the keeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		n, err := currentNetwork()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.HistoryDB(), newLogger())
		if err != nil {
			return err
		}
		defer store.Close()

		raffleAddr := ""
		if addressFlag != "" {
			if !common.IsHexAddress(addressFlag) {
				return fmt.Errorf("invalid --address %q", addressFlag)
			}
			raffleAddr = common.HexToAddress(addressFlag).Hex()
		}
		rounds, err := store.Recent(ctx, n.Name, raffleAddr, historyLimit)
		if err != nil {
			return err
		}
		stats, err := store.Stats(ctx, n.Name)
		if err != nil {
			return err
		}
		fmt.Print(roundsTable(rounds).Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d round(s), %d distinct winner(s), %s ETH paid out on %s",
			stats.Rounds, stats.Winners, chain.WeiToETH(stats.TotalPrize), n.Name)))
		return nil
	},
}

func roundsTable(rounds []*history.Round) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "Request", Width: 8},
		{Title: "Winner", Width: 44},
		{Title: "Prize (ETH)", Width: 12},
		{Title: "Players", Width: 8},
		{Title: "Picked", Width: 20},
	})
	t.Empty = "No rounds recorded yet, run `w3raffle keeper`"
	for _, r := range rounds {
		t.AddRow(r.RequestID, r.Winner, chain.WeiToETH(r.PrizeWei),
			strconv.FormatUint(r.Players, 10), r.PickedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return t
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "rounds to show")
	addAddressFlag(historyCmd)
}
