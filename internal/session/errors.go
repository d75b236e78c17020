package session

import (
	"errors"

	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/provider"
)

// Errors.
var (
	ErrNotConnected      = errors.New("wallet not connected")
	ErrConnectAborted    = errors.New("wallet disconnected while connecting")
	ErrNotInitialized    = errors.New("contract session not initialized")
	ErrMintInFlight      = errors.New("a mint is already in progress")
	ErrNoAccounts        = errors.New("wallet returned no accounts")
	ErrSignatureMismatch = errors.New("login signature does not match account")
)

// UserMessage turns err into the short text shown to the user and kept in
// LastError.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		revert       *contract.RevertError
		incompatible *contract.IncompatibleContractError
		readErr      *contract.ReadError
	)
	switch {
	case errors.Is(err, provider.ErrNoProvider):
		return "No wallet found. Import a wallet to continue."
	case errors.Is(err, provider.ErrUserRejected):
		return "Request was rejected by user"
	case errors.Is(err, contract.ErrInsufficientFunds):
		return "Insufficient funds for transaction"
	case errors.Is(err, provider.ErrTimeout):
		return "The wallet did not respond in time"
	case errors.Is(err, provider.ErrNetwork):
		return "Network error, check your RPC endpoint"
	case errors.Is(err, provider.ErrUnauthorized):
		return "Account is not authorized, connect first"
	case errors.Is(err, ErrNotConnected):
		return "Wallet is not connected"
	case errors.Is(err, ErrConnectAborted):
		return "Wallet was disconnected before the connection finished"
	case errors.Is(err, ErrNotInitialized):
		return "Contracts are not loaded yet"
	case errors.Is(err, ErrMintInFlight):
		return "A mint is already in progress"
	case errors.As(err, &revert):
		if revert.Reason == "" {
			return "Transaction reverted"
		}
		return "Transaction reverted: " + revert.Reason
	case errors.As(err, &incompatible):
		return incompatible.Error()
	case errors.As(err, &readErr):
		return "Could not read contract state, try again"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "An unknown error occurred"
}
