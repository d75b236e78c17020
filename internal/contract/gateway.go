package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/Mohsinsiddi/koneko/internal/provider"
)

// MetadataSource resolves token metadata, falling back to a placeholder.
type MetadataSource interface {
	Lookup(id uint64) catalog.TokenMetadataEntry
}

// OwnedToken is a token held by an account joined with its metadata.
type OwnedToken struct {
	ID       uint64
	Metadata catalog.TokenMetadataEntry
}

// MintResult describes a confirmed mint.
type MintResult struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Value       *big.Int // wei paid
	TokenIDs    []uint64
}

// Gateway is the typed facade over the token and mint controller.
type Gateway struct {
	p          provider.Provider
	token      common.Address
	controller common.Address
	tokenABI   abi.ABI
	ctrlABI    abi.ABI
	meta       MetadataSource

	callTimeout    time.Duration
	promptTimeout  time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            zerolog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMetadata sets the catalog used to label owned tokens.
func WithMetadata(m MetadataSource) GatewayOption {
	return func(g *Gateway) { g.meta = m }
}

// WithTimeouts overrides the read, approval and confirmation timeouts.
// Zero values keep the defaults.
func WithTimeouts(call, prompt, confirm time.Duration) GatewayOption {
	return func(g *Gateway) {
		if call > 0 {
			g.callTimeout = call
		}
		if prompt > 0 {
			g.promptTimeout = prompt
		}
		if confirm > 0 {
			g.confirmTimeout = confirm
		}
	}
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.pollInterval = d }
}

// WithGatewayLogger sets the gateway's logger.
func WithGatewayLogger(l zerolog.Logger) GatewayOption {
	return func(g *Gateway) { g.log = l }
}

// NewGateway binds both contracts. The embedded ABIs are validated up front
// and an *IncompatibleContractError is returned if either lacks a required
// method or event.
func NewGateway(p provider.Provider, token, controller common.Address, opts ...GatewayOption) (*Gateway, error) {
	if p == nil {
		return nil, provider.ErrNoProvider
	}
	tk, _ := GetBuiltin(TokenContract)
	ctrl, _ := GetBuiltin(ControllerContract)
	for _, kind := range []BuiltinKind{tk, ctrl} {
		if err := Validate(kind, kind.ABI); err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		p:              p,
		token:          token,
		controller:     controller,
		tokenABI:       tk.ABI,
		ctrlABI:        ctrl.ABI,
		callTimeout:    config.ProviderCallTimeout,
		promptTimeout:  config.PromptTimeout,
		confirmTimeout: config.TxConfirmTimeout,
		pollInterval:   config.ReceiptPollInterval,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Token returns the ERC-721 address.
func (g *Gateway) Token() common.Address { return g.token }

// Controller returns the mint controller address.
func (g *Gateway) Controller() common.Address { return g.controller }

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

// MintFee returns the per-token fee in wei, as reported by getMintFee().
func (g *Gateway) MintFee(ctx context.Context) (*big.Int, error) {
	return g.readBig(ctx, g.controller, g.ctrlABI, "getMintFee")
}

// TotalSupply returns the number of tokens minted so far.
func (g *Gateway) TotalSupply(ctx context.Context) (*big.Int, error) {
	return g.readBig(ctx, g.token, g.tokenABI, "totalSupply")
}

// MaxBatchSize returns the largest quantity mintBatch accepts.
func (g *Gateway) MaxBatchSize(ctx context.Context) (uint64, error) {
	n, err := g.readBig(ctx, g.controller, g.ctrlABI, "maxBatchSize")
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, &ReadError{Call: "maxBatchSize", Err: ErrTokenIDOverflow}
	}
	return n.Uint64(), nil
}

// IsPaused reports whether the controller rejects mints.
func (g *Gateway) IsPaused(ctx context.Context) (bool, error) {
	out, err := g.read(ctx, g.controller, g.ctrlABI, "isPaused")
	if err != nil {
		return false, err
	}
	paused, ok := out[0].(bool)
	if !ok {
		return false, &ReadError{Call: "isPaused", Err: fmt.Errorf("unexpected result %T", out[0])}
	}
	return paused, nil
}

// BalanceOf returns how many tokens owner holds.
func (g *Gateway) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return g.readBig(ctx, g.token, g.tokenABI, "balanceOf", owner)
}

// ControllerCanMint reports whether the controller holds MINTER_ROLE on the
// token. Without it every mint reverts.
func (g *Gateway) ControllerCanMint(ctx context.Context) (bool, error) {
	out, err := g.read(ctx, g.token, g.tokenABI, "hasRole", [32]byte(RoleID("MINTER_ROLE")), g.controller)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

// OwnedTokens enumerates owner's tokens with balanceOf and
// tokenOfOwnerByIndex and joins each to the catalog. A repeated ID fails the
// whole enumeration.
func (g *Gateway) OwnedTokens(ctx context.Context, owner common.Address) ([]OwnedToken, error) {
	bal, err := g.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !bal.IsUint64() {
		return nil, &ReadError{Call: "balanceOf", Err: ErrTokenIDOverflow}
	}

	n := bal.Uint64()
	out := make([]OwnedToken, 0, n)
	seen := make(map[uint64]struct{}, n)
	for i := uint64(0); i < n; i++ {
		raw, err := g.readBig(ctx, g.token, g.tokenABI, "tokenOfOwnerByIndex", owner, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, err
		}
		if !raw.IsUint64() {
			return nil, &ReadError{Call: "tokenOfOwnerByIndex", Err: fmt.Errorf("%w: %s", ErrTokenIDOverflow, raw)}
		}
		id := raw.Uint64()
		if _, dup := seen[id]; dup {
			return nil, &ReadError{Call: "tokenOfOwnerByIndex", Err: fmt.Errorf("%w: %d", ErrDuplicateToken, id)}
		}
		seen[id] = struct{}{}
		out = append(out, OwnedToken{ID: id, Metadata: g.metadata(id)})
	}
	return out, nil
}

func (g *Gateway) metadata(id uint64) catalog.TokenMetadataEntry {
	if g.meta == nil {
		return catalog.Placeholder(id)
	}
	return g.meta.Lookup(id)
}

func (g *Gateway) readBig(ctx context.Context, to common.Address, a abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	out, err := g.read(ctx, to, a, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, &ReadError{Call: method, Err: fmt.Errorf("unexpected result %T", out[0])}
	}
	return n, nil
}

// read performs eth_call under the call timeout. Every failure, including
// reverts, is a *ReadError.
func (g *Gateway) read(ctx context.Context, to common.Address, a abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, &ReadError{Call: method, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	raw, err := g.p.Request(ctx, "eth_call", map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}, "latest")
	if err != nil {
		return nil, &ReadError{Call: method, Err: err}
	}

	var hexOut hexutil.Bytes
	if err := json.Unmarshal(raw, &hexOut); err != nil {
		return nil, &ReadError{Call: method, Err: fmt.Errorf("decoding result: %w", err)}
	}
	out, err := a.Unpack(method, hexOut)
	if err != nil {
		return nil, &ReadError{Call: method, Err: err}
	}
	if len(out) == 0 {
		return nil, &ReadError{Call: method, Err: fmt.Errorf("empty result")}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// mint
// ---------------------------------------------------------------------------

// Mint sends mint(recipient) for qty 1 or mintBatch(recipient, qty)
// otherwise, paying fee × qty from from, then waits for the receipt and
// returns the new token IDs.
func (g *Gateway) Mint(ctx context.Context, from, recipient common.Address, qty uint64) (*MintResult, error) {
	if qty == 0 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidQuantity)
	}
	maxBatch, err := g.MaxBatchSize(ctx)
	if err != nil {
		return nil, err
	}
	if qty > maxBatch {
		// the controller would revert the same way
		return nil, &RevertError{
			Reason: fmt.Sprintf("exceeds batch limit %d", maxBatch),
			Err:    fmt.Errorf("%w: %d > %d", ErrInvalidQuantity, qty, maxBatch),
		}
	}

	fee, err := g.MintFee(ctx)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(fee, new(big.Int).SetUint64(qty))

	if err := g.checkBalance(ctx, from, value); err != nil {
		return nil, err
	}

	var data []byte
	if qty == 1 {
		data, err = g.ctrlABI.Pack("mint", recipient)
	} else {
		data, err = g.ctrlABI.Pack("mintBatch", recipient, new(big.Int).SetUint64(qty))
	}
	if err != nil {
		return nil, fmt.Errorf("encoding mint call: %w", err)
	}

	hash, err := g.send(ctx, from, value, data, qty)
	if err != nil {
		return nil, err
	}
	g.log.Info().Str("tx", hash.Hex()).Uint64("qty", qty).Str("value", chain.FormatEther(value)).Msg("mint submitted")

	rcpt, err := g.waitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if rcpt.Status != 1 {
		return nil, &RevertError{TxHash: hash.Hex()}
	}

	ids, err := g.mintedIDs(rcpt, recipient)
	if err != nil {
		return nil, err
	}
	return &MintResult{
		TxHash:      hash,
		BlockNumber: rcpt.BlockNumber,
		GasUsed:     rcpt.GasUsed,
		Value:       value,
		TokenIDs:    ids,
	}, nil
}

func (g *Gateway) checkBalance(ctx context.Context, from common.Address, value *big.Int) error {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	raw, err := g.p.Request(callCtx, "eth_getBalance", from.Hex(), "latest")
	if err != nil {
		return &ReadError{Call: "eth_getBalance", Err: err}
	}
	bal, err := chain.ParseQuantity(raw)
	if err != nil {
		return &ReadError{Call: "eth_getBalance", Err: err}
	}
	if bal.Cmp(value) < 0 {
		return fmt.Errorf("%w: balance %s ETH, need %s ETH", ErrInsufficientFunds, chain.FormatEther(bal), chain.FormatEther(value))
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, from common.Address, value *big.Int, data []byte, qty uint64) (common.Hash, error) {
	gas := hexutil.Uint64(config.GasLimitMint + config.GasLimitMintPerToken*(qty-1))
	args := provider.TxArgs{
		From:  from,
		To:    &g.controller,
		Value: (*hexutil.Big)(value),
		Gas:   &gas,
		Data:  data,
	}

	ctx, cancel := context.WithTimeout(ctx, g.promptTimeout)
	defer cancel()

	raw, err := g.p.Request(ctx, "eth_sendTransaction", args)
	if err != nil {
		return common.Hash{}, txError(err)
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("decoding transaction hash: %w", err)
	}
	return hash, nil
}
