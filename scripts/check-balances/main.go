// check-balances: queries the native balance of every stored account and
// of each recorded raffle on every configured network in parallel, and
// prints a summary table.
//
// Run from the module root:
//
//	go run ./scripts/check-balances
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/config"
	"github.com/Mohsinsiddi/w3raffle/internal/contract"
	"github.com/Mohsinsiddi/w3raffle/internal/wallet"
)

const rpcTimeout = 12 * time.Second

type target struct {
	label   string
	address common.Address
}

type result struct {
	network string
	label   string
	address string // short form
	balance string
	err     string
}

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fail(err)
	}
	cfg, err := config.Load(env.ConfigDir)
	if err != nil {
		fail(err)
	}
	nets, err := config.LoadNetworks(cfg.NetworksPath(), os.LookupEnv)
	if err != nil {
		fail(err)
	}

	accounts, err := wallet.NewJSONStore(cfg.AccountsPath()).Load()
	if err != nil {
		fail(err)
	}
	reg := contract.NewRegistry(cfg.DeploymentsPath())
	if err := reg.Load(); err != nil {
		fail(err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []result
	)

	for _, n := range nets.All() {
		urls := append(append([]string(nil), n.RPCURLs...), cfg.GetRPCs(n.Name)...)
		if len(urls) == 0 {
			continue
		}
		targets := make([]target, 0, len(accounts))
		for _, a := range accounts {
			targets = append(targets, target{label: a.Name, address: common.HexToAddress(a.Address)})
		}
		for _, d := range reg.All() {
			if d.Network == n.Name {
				targets = append(targets, target{label: d.Name, address: common.HexToAddress(d.Address)})
			}
		}

		for _, t := range targets {
			wg.Add(1)
			go func(network, rpcURL string, t target) {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
				defer cancel()

				client := chain.NewEVMClient(rpcURL)
				r := result{network: network, label: t.label, address: shortAddr(t.address.Hex())}

				// Quick ping first, skip networks that don't respond.
				if _, _, err := client.Ping(ctx); err != nil {
					r.balance, r.err = "-", "unreachable"
				} else if bal, err := client.Balance(ctx, t.address); err != nil {
					r.balance, r.err = "-", shortErr(err)
				} else {
					r.balance = chain.WeiToETH(bal)
				}

				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}(n.Name, urls[0], t)
		}
	}

	wg.Wait()
	printTable(results)
}

func printTable(results []result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.network != b.network {
			return a.network < b.network
		}
		return a.label < b.label
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tNAME\tADDRESS\tBALANCE (ETH)\tNOTE")
	fmt.Fprintln(w, strings.Repeat("-", 10)+"\t"+
		strings.Repeat("-", 12)+"\t"+
		strings.Repeat("-", 14)+"\t"+
		strings.Repeat("-", 16)+"\t"+
		strings.Repeat("-", 12))

	lastNetwork := ""
	for _, r := range results {
		if r.network != lastNetwork {
			if lastNetwork != "" {
				fmt.Fprintln(w, "\t\t\t\t")
			}
			lastNetwork = r.network
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.network, r.label, r.address, r.balance, r.err)
	}
	w.Flush()
}

func shortAddr(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 30 {
		return s[:30] + "…"
	}
	return s
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "check-balances:", err)
	os.Exit(1)
}
