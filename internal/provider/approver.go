package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovalKind is what the user is asked to approve.
type ApprovalKind string

const (
	ApproveConnect     ApprovalKind = "connect"
	ApproveSignature   ApprovalKind = "sign"
	ApproveTransaction ApprovalKind = "transaction"
)

// Approval describes one request awaiting the user's decision.
type Approval struct {
	Kind    ApprovalKind
	Account common.Address
	ChainID *big.Int

	Message string // ApproveSignature

	To    *common.Address // ApproveTransaction
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// Approver is the wallet-native confirmation UI.
type Approver interface {
	Approve(ctx context.Context, req Approval) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req Approval) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req Approval) (bool, error) {
	return f(ctx, req)
}

// AutoApprove accepts every request.
var AutoApprove Approver = ApproverFunc(func(context.Context, Approval) (bool, error) { return true, nil })

// DenyAll rejects every request.
var DenyAll Approver = ApproverFunc(func(context.Context, Approval) (bool, error) { return false, nil })
