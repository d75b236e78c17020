package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/koneko/internal/provider"
)

// receiptLog is the subset of a log this client decodes.
type receiptLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// receipt is the subset of eth_getTransactionReceipt this client uses.
type receipt struct {
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	Logs        []receiptLog
}

func (r *receipt) UnmarshalJSON(b []byte) error {
	var raw struct {
		Status      hexutil.Uint64 `json:"status"`
		BlockNumber hexutil.Uint64 `json:"blockNumber"`
		GasUsed     hexutil.Uint64 `json:"gasUsed"`
		Logs        []receiptLog   `json:"logs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = receipt{
		Status:      uint64(raw.Status),
		BlockNumber: uint64(raw.BlockNumber),
		GasUsed:     uint64(raw.GasUsed),
		Logs:        raw.Logs,
	}
	return nil
}

// waitMined polls for the receipt until it appears or the confirmation
// timeout expires. A null result means still pending.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		rcpt, err := g.fetchReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if rcpt != nil {
			return rcpt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: transaction %s not mined: %w", provider.ErrTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Gateway) fetchReceipt(ctx context.Context, hash common.Hash) (*receipt, error) {
	raw, err := g.p.Request(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("fetching receipt for %s: %w", hash.Hex(), err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rcpt receipt
	if err := json.Unmarshal(raw, &rcpt); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	return &rcpt, nil
}

// mintedIDs extracts token IDs from the token's Transfer(0x0 → recipient)
// logs. All three Transfer parameters are indexed, so the ID is topic 3.
func (g *Gateway) mintedIDs(rcpt *receipt, recipient common.Address) ([]uint64, error) {
	transfer := g.tokenABI.Events["Transfer"].ID

	var ids []uint64
	for _, l := range rcpt.Logs {
		if l.Address != g.token || len(l.Topics) != 4 || l.Topics[0] != transfer {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != recipient {
			continue
		}
		id := l.Topics[3].Big()
		if !id.IsUint64() {
			return nil, fmt.Errorf("%w: %s", ErrTokenIDOverflow, id)
		}
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}
