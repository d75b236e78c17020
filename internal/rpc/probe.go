package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Mohsinsiddi/koneko/internal/chain"
)

const probeTimeout = 5 * time.Second

// Probe checks every URL in parallel. An endpoint is healthy when it answers
// eth_blockNumber and, if wantChainID is non-zero, reports that chain ID.
func Probe(ctx context.Context, urls []string, wantChainID int64) []Endpoint {
	out := make([]Endpoint, len(urls))
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			out[idx] = probeOne(ctx, u, wantChainID)
		}(i, url)
	}

	wg.Wait()
	return out
}

func probeOne(ctx context.Context, url string, wantChainID int64) Endpoint {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c := chain.NewClient(url)
	ep := Endpoint{URL: url, Checked: true}

	ep.Latency, ep.BlockNumber, ep.Err = c.Ping(ctx)
	if ep.Err != nil {
		return ep
	}
	if wantChainID != 0 {
		id, err := c.ChainID(ctx)
		if err != nil {
			ep.Err = err
			return ep
		}
		if id.Int64() != wantChainID {
			ep.Err = fmt.Errorf("chain ID mismatch: expected %d, got %s", wantChainID, id)
			return ep
		}
	}
	ep.Healthy = true
	return ep
}

// Select probes urls and returns the URL chosen by algo. A single URL is
// returned without probing.
func Select(ctx context.Context, urls []string, algo Algorithm, wantChainID int64) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	if algo == "" {
		algo = AlgorithmFastest
	}

	winner, err := NewPicker(algo).Pick(Probe(ctx, urls, wantChainID))
	if err != nil {
		return "", err
	}
	return winner.URL, nil
}
