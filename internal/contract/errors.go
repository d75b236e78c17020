package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/provider"
)

// Errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for mint")
	ErrInvalidQuantity   = errors.New("invalid mint quantity")
	ErrDuplicateToken    = errors.New("duplicate token id in enumeration")
	ErrTokenIDOverflow   = errors.New("token id does not fit in 64 bits")
)

// RevertError is a contract-level rejection. Reason is the revert string
// when the node returned one ("paused", "blocked", "Insufficient fees", ...).
// Err is set when the rejection was caught before sending.
type RevertError struct {
	Reason string
	TxHash string // set when the transaction was mined and reverted
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "transaction reverted"
	}
	return "transaction reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error { return e.Err }

// ReadError wraps a failed contract read. Reads are retryable.
type ReadError struct {
	Call string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("reading %s: %v", e.Call, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// IncompatibleContractError reports an ABI missing what the client needs.
type IncompatibleContractError struct {
	Contract       string
	MissingMethods []string
	MissingEvents  []string
}

func (e *IncompatibleContractError) Error() string {
	var parts []string
	if len(e.MissingMethods) > 0 {
		parts = append(parts, "methods "+strings.Join(e.MissingMethods, ", "))
	}
	if len(e.MissingEvents) > 0 {
		parts = append(parts, "events "+strings.Join(e.MissingEvents, ", "))
	}
	return fmt.Sprintf("contract %s is incompatible: missing %s", e.Contract, strings.Join(parts, "; "))
}

// txError maps a provider/node failure from sending a mint onto the
// contract error taxonomy. Provider sentinels (rejected, timeout, network)
// pass through.
func txError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, provider.ErrUserRejected) || errors.Is(err, provider.ErrTimeout) || errors.Is(err, provider.ErrNetwork) {
		return err
	}

	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, rpcErr.Message)
	case strings.Contains(msg, "revert"):
		return &RevertError{Reason: revertReason(rpcErr)}
	}
	return err
}

// revertReason prefers the ABI-encoded Error(string) payload, then the text
// after "execution reverted:".
func revertReason(e *chain.RPCError) string {
	if len(e.Data) > 0 {
		var hexData string
		if json.Unmarshal(e.Data, &hexData) == nil {
			if data, err := hexutil.Decode(hexData); err == nil {
				if reason, err := abi.UnpackRevert(data); err == nil {
					return reason
				}
			}
		}
	}
	msg := e.Message
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	if idx := strings.Index(msg, "revert "); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("revert "):])
	}
	return ""
}
