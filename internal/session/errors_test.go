package session_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/session"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no provider", provider.ErrNoProvider, "No wallet found. Import a wallet to continue."},
		{"rejected code", &provider.Error{Code: provider.CodeUserRejected, Message: "x"}, "Request was rejected by user"},
		{"insufficient funds", fmt.Errorf("mint: %w", contract.ErrInsufficientFunds), "Insufficient funds for transaction"},
		{"revert", &contract.RevertError{Reason: "paused"}, "Transaction reverted: paused"},
		{"revert no reason", &contract.RevertError{}, "Transaction reverted"},
		{"timeout inside read", &contract.ReadError{Call: "getMintFee", Err: provider.ErrTimeout}, "The wallet did not respond in time"},
		{"read", &contract.ReadError{Call: "getMintFee", Err: errors.New("boom")}, "Could not read contract state, try again"},
		{"in flight", session.ErrMintInFlight, "A mint is already in progress"},
		{"connect aborted", session.ErrConnectAborted, "Wallet was disconnected before the connection finished"},
		{"batch limit", &contract.RevertError{Reason: "exceeds batch limit 10", Err: contract.ErrInvalidQuantity}, "Transaction reverted: exceeds batch limit 10"},
		{"other", errors.New("something odd"), "something odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.UserMessage(tt.err))
		})
	}
}
