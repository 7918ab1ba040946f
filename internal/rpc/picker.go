// Package rpc picks which of a network's RPC endpoints to talk to.
package rpc

import (
	"errors"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no healthy RPC endpoint is available.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Endpoints further behind the best head than this are skipped.
	staleBlockThreshold = 3
)

// ParseAlgorithm maps a config string to an Algorithm, defaulting to fastest.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case AlgorithmRoundRobin, AlgorithmFailover:
		return Algorithm(s)
	default:
		return AlgorithmFastest
	}
}

// Endpoint is one probed RPC URL.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// Healthy reports whether the probe succeeded.
func (e Endpoint) Healthy() bool { return e.Err == nil }

// Picker selects an endpoint from a probe round. It is safe for concurrent use;
// round-robin state survives across calls.
type Picker struct {
	algo Algorithm

	mu   sync.Mutex
	next int
}

// NewPicker creates a Picker with the given algorithm.
func NewPicker(algo Algorithm) *Picker {
	return &Picker{algo: algo}
}

// Pick selects an endpoint according to the algorithm.
func (p *Picker) Pick(endpoints []Endpoint) (Endpoint, error) {
	switch p.algo {
	case AlgorithmFailover:
		// Configured order wins; only skip endpoints that failed.
		for _, e := range endpoints {
			if e.Healthy() {
				return e, nil
			}
		}
		return Endpoint{}, ErrNoHealthyRPC
	case AlgorithmRoundRobin:
		live := fresh(endpoints)
		if len(live) == 0 {
			return Endpoint{}, ErrNoHealthyRPC
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		e := live[p.next%len(live)]
		p.next = (p.next + 1) % len(live)
		return e, nil
	default:
		live := fresh(endpoints)
		if len(live) == 0 {
			return Endpoint{}, ErrNoHealthyRPC
		}
		best := live[0]
		for _, e := range live[1:] {
			if e.Latency < best.Latency {
				best = e
			}
		}
		return best, nil
	}
}

// fresh returns healthy endpoints whose head is within staleBlockThreshold
// of the best head seen.
func fresh(endpoints []Endpoint) []Endpoint {
	var head uint64
	for _, e := range endpoints {
		if e.Healthy() && e.BlockNumber > head {
			head = e.BlockNumber
		}
	}
	var out []Endpoint
	for _, e := range endpoints {
		if !e.Healthy() {
			continue
		}
		if head-e.BlockNumber > staleBlockThreshold {
			continue
		}
		out = append(out, e)
	}
	return out
}
