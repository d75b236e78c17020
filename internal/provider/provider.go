// Package provider defines the EIP-1193 style wallet boundary the sessions
// talk to, and a local implementation backed by the keychain wallet.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
)

// Errors.
var (
	ErrNoProvider        = errors.New("no wallet provider available")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrUnauthorized      = errors.New("account not authorized")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("provider request timed out")
	ErrClosed            = errors.New("provider closed")
)

// Error is a provider-level failure carrying an EIP-1193 code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is match the code-specific sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	case ErrUnauthorized:
		return e.Code == CodeUnauthorized
	case ErrUnsupportedMethod:
		return e.Code == CodeUnsupportedMethod
	case ErrClosed:
		return e.Code == CodeDisconnected
	}
	return false
}

func rejected(what string) *Error {
	return &Error{Code: CodeUserRejected, Message: "user rejected " + what}
}

// EventKind names a provider notification.
type EventKind string

const (
	AccountsChanged EventKind = "accountsChanged"
	ChainChanged    EventKind = "chainChanged"
)

// Event is one provider notification. Accounts is set for AccountsChanged
// (empty means the wallet revoked access or locked), ChainID (hex) for
// ChainChanged.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  string
}

// Provider is the wallet boundary.
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	// Events delivers notifications until the provider is closed.
	Events() <-chan Event
}
