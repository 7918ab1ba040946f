package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
)

// probeTimeout bounds a single endpoint probe.
const probeTimeout = 5 * time.Second

// Probe pings every URL in parallel and returns the results in input order.
func Probe(ctx context.Context, urls []string) []Endpoint {
	out := make([]Endpoint, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			latency, block, err := chain.NewEVMClient(u).Ping(pctx)
			out[i] = Endpoint{URL: u, Latency: latency, BlockNumber: block, Err: err}
		}(i, u)
	}
	wg.Wait()
	return out
}

// Select returns the URL to use from urls. A single URL is returned without
// probing.
func Select(ctx context.Context, urls []string, algo Algorithm) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	e, err := NewPicker(algo).Pick(Probe(ctx, urls))
	if err != nil {
		return "", err
	}
	return e.URL, nil
}
