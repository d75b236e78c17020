package rpc

import (
	"errors"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no usable RPC endpoint is available.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Nodes more than this many blocks behind the best one are skipped.
	staleBlockThreshold = 3
)

// Endpoint is one RPC URL with its probe results.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool // meaningful only when Checked
	Checked     bool
	Err         error
}

// Picker chooses an endpoint according to an Algorithm.
type Picker struct {
	algo    Algorithm
	mu      sync.Mutex
	rrIndex int
}

// NewPicker creates a Picker. Unknown algorithms behave as fastest.
func NewPicker(algo Algorithm) *Picker {
	return &Picker{algo: algo}
}

// Pick returns the selected endpoint or ErrNoHealthyRPC.
func (p *Picker) Pick(endpoints []Endpoint) (*Endpoint, error) {
	candidates := usable(endpoints)
	if len(candidates) == 0 {
		return nil, ErrNoHealthyRPC
	}

	switch p.algo {
	case AlgorithmFailover:
		return candidates[0], nil
	case AlgorithmRoundRobin:
		p.mu.Lock()
		defer p.mu.Unlock()
		e := candidates[p.rrIndex%len(candidates)]
		p.rrIndex = (p.rrIndex + 1) % len(candidates)
		return e, nil
	default:
		return fastest(candidates), nil
	}
}

func fastest(candidates []*Endpoint) *Endpoint {
	var best uint64
	for _, e := range candidates {
		if e.BlockNumber > best {
			best = e.BlockNumber
		}
	}

	var winner *Endpoint
	for _, e := range candidates {
		if best-e.BlockNumber > staleBlockThreshold {
			continue
		}
		if winner == nil || e.Latency < winner.Latency {
			winner = e
		}
	}
	return winner
}

// usable keeps unchecked endpoints and checked healthy ones, in input order.
func usable(endpoints []Endpoint) []*Endpoint {
	var out []*Endpoint
	for i := range endpoints {
		e := &endpoints[i]
		if e.Checked && !e.Healthy {
			continue
		}
		out = append(out, e)
	}
	return out
}
