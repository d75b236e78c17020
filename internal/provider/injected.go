package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/wallet"
)

const eventBuffer = 32

// Transport carries raw JSON-RPC calls to a node. *chain.Client satisfies it.
type Transport interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"` // used when estimation is unavailable
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// Injected is a local wallet exposed through the Provider boundary. It holds
// signers for the imported accounts, asks the Approver before releasing an
// account, signing or sending, and forwards everything else to a node.
type Injected struct {
	mu         sync.Mutex
	transport  Transport
	chainID    *big.Int
	signers    []*wallet.Signer
	selected   int
	authorized bool

	approver Approver
	log      zerolog.Logger

	events    chan Event
	closeOnce sync.Once
	closed    bool
}

// InjectedOption configures an Injected provider.
type InjectedOption func(*Injected)

// WithProviderLogger sets the provider's logger.
func WithProviderLogger(l zerolog.Logger) InjectedOption {
	return func(p *Injected) { p.log = l }
}

// WithAuthorized starts the provider with account access already granted,
// as a wallet that remembers a previously approved site does.
func WithAuthorized() InjectedOption {
	return func(p *Injected) { p.authorized = true }
}

// NewInjected creates a provider over transport. Without signers there is no
// wallet to inject and ErrNoProvider is returned.
func NewInjected(transport Transport, signers []*wallet.Signer, approver Approver, opts ...InjectedOption) (*Injected, error) {
	if len(signers) == 0 {
		return nil, ErrNoProvider
	}
	if approver == nil {
		approver = DenyAll
	}
	p := &Injected{
		transport: transport,
		signers:   signers,
		approver:  approver,
		log:       zerolog.Nop(),
		events:    make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Events implements Provider.
func (p *Injected) Events() <-chan Event { return p.events }

// Close stops event delivery. Requests after Close fail with ErrClosed.
func (p *Injected) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
	})
}

// SelectAccount switches the active account and notifies listeners when the
// site is authorized.
func (p *Injected) SelectAccount(addr common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.signers {
		if s.Address() == addr {
			p.selected = i
			if p.authorized {
				p.emitLocked(Event{Kind: AccountsChanged, Accounts: []string{addr.Hex()}})
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", wallet.ErrWalletNotFound, addr.Hex())
}

// Lock revokes account access. Listeners receive an empty accountsChanged.
func (p *Injected) Lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return
	}
	p.authorized = false
	p.emitLocked(Event{Kind: AccountsChanged, Accounts: []string{}})
}

// SwitchChain points the provider at another node and announces the new
// chain ID.
func (p *Injected) SwitchChain(ctx context.Context, transport Transport) error {
	id, err := fetchChainID(ctx, transport)
	if err != nil {
		return classify(err, "wallet_switchEthereumChain")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.transport = transport
	p.chainID = id
	p.emitLocked(Event{Kind: ChainChanged, ChainID: hexutil.EncodeBig(id)})
	return nil
}

// emitLocked queues an event. Callers hold p.mu. A full buffer drops the
// event rather than blocking the wallet.
func (p *Injected) emitLocked(ev Event) {
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warn().Str("event", string(ev.Kind)).Msg("event buffer full, dropping")
	}
}

// Request implements Provider.
func (p *Injected) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, &Error{Code: CodeDisconnected, Message: "provider closed"}
	}

	res, err := p.dispatch(ctx, method, params)
	if err != nil {
		p.log.Debug().Str("method", method).Err(err).Msg("provider request failed")
		return nil, classify(err, method)
	}
	return res, nil
}

func (p *Injected) dispatch(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		return p.requestAccounts(ctx)
	case "eth_accounts":
		return json.Marshal(p.accounts())
	case "eth_chainId":
		id, err := p.chain(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(hexutil.EncodeBig(id))
	case "personal_sign":
		return p.personalSign(ctx, params)
	case "eth_sendTransaction":
		return p.sendTransaction(ctx, params)
	case "eth_sign", "eth_signTypedData_v4", "eth_signTransaction":
		return nil, &Error{Code: CodeUnsupportedMethod, Message: method + " is not supported"}
	default:
		return p.node().Call(ctx, method, params...)
	}
}

func (p *Injected) requestAccounts(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	authorized := p.authorized
	signer := p.signers[p.selected]
	p.mu.Unlock()

	if !authorized {
		ok, err := p.approver.Approve(ctx, Approval{Kind: ApproveConnect, Account: signer.Address()})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, rejected("the connection request")
		}
		p.mu.Lock()
		p.authorized = true
		p.mu.Unlock()
	}
	return json.Marshal([]string{signer.Address().Hex()})
}

func (p *Injected) accounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []string{}
	}
	return []string{p.signers[p.selected].Address().Hex()}
}

// active returns the selected signer if from matches it and access is granted.
func (p *Injected) active(from common.Address) (*wallet.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.signers[p.selected]
	if !p.authorized || s.Address() != from {
		return nil, &Error{Code: CodeUnauthorized, Message: "account " + from.Hex() + " is not authorized"}
	}
	return s, nil
}

func (p *Injected) node() Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}

func (p *Injected) chain(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	id, transport := p.chainID, p.transport
	p.mu.Unlock()
	if id != nil {
		return id, nil
	}

	id, err := fetchChainID(ctx, transport)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
	return id, nil
}

func fetchChainID(ctx context.Context, t Transport) (*big.Int, error) {
	raw, err := t.Call(ctx, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return chain.ParseQuantity(raw)
}

// personalSign expects (message, address). Hex-encoded messages are decoded
// first, as wallets do.
func (p *Injected) personalSign(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("personal_sign: expected message and address")
	}
	msg, _ := params[0].(string)
	addr, _ := params[1].(string)
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("personal_sign: invalid address %q", addr)
	}

	signer, err := p.active(common.HexToAddress(addr))
	if err != nil {
		return nil, err
	}

	data := []byte(msg)
	if b, err := hexutil.Decode(msg); err == nil {
		data = b
	}

	ok, err := p.approver.Approve(ctx, Approval{Kind: ApproveSignature, Account: signer.Address(), Message: string(data)})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rejected("the signature request")
	}

	sig, err := signer.SignMessage(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hexutil.Encode(sig))
}

func (p *Injected) sendTransaction(ctx context.Context, params []interface{}) (json.RawMessage, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("eth_sendTransaction: missing transaction object")
	}
	args, err := decodeTxArgs(params[0])
	if err != nil {
		return nil, err
	}

	signer, err := p.active(args.From)
	if err != nil {
		return nil, err
	}
	chainID, err := p.chain(ctx)
	if err != nil {
		return nil, err
	}
	node := p.node()

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	gas, err := estimateGas(ctx, node, args)
	if err != nil {
		return nil, err
	}

	tip, feeCap, err := fees(ctx, node)
	if err != nil {
		return nil, err
	}
	nonce, err := quantity(ctx, node, "eth_getTransactionCount", args.From.Hex(), "pending")
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	ok, err := p.approver.Approve(ctx, Approval{
		Kind:    ApproveTransaction,
		Account: args.From,
		ChainID: chainID,
		To:      args.To,
		Value:   value,
		Data:    args.Data,
		Gas:     gas,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rejected("the transaction")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce.Uint64(),
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      args.Data,
	})

	raw, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}
	return node.Call(ctx, "eth_sendRawTransaction", hexutil.Encode(raw))
}

// fees derives EIP-1559 caps from eth_gasPrice (base fee + tip) and
// eth_maxPriorityFeePerGas: the fee cap leaves room for the base fee to
// double. Nodes without eth_maxPriorityFeePerGas get gasPrice as both caps.
func fees(ctx context.Context, node Transport) (tip, feeCap *big.Int, err error) {
	gasPrice, err := quantity(ctx, node, "eth_gasPrice")
	if err != nil {
		return nil, nil, fmt.Errorf("getting gas price: %w", err)
	}
	tip, err = quantity(ctx, node, "eth_maxPriorityFeePerGas")
	var rpcErr *chain.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return gasPrice, gasPrice, nil
	case err != nil:
		return nil, nil, fmt.Errorf("getting priority fee: %w", err)
	}
	if tip.Cmp(gasPrice) >= 0 {
		return gasPrice, gasPrice, nil
	}

	base := new(big.Int).Sub(gasPrice, tip)
	feeCap = new(big.Int).Add(base.Mul(base, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

// estimateGas asks the node first. Node-side failures (reverts, insufficient
// funds) are returned as-is; other failures fall back to args.Gas.
func estimateGas(ctx context.Context, node Transport, args *TxArgs) (uint64, error) {
	call := map[string]interface{}{"from": args.From}
	if args.To != nil {
		call["to"] = args.To
	}
	if args.Value != nil {
		call["value"] = args.Value
	}
	if len(args.Data) > 0 {
		call["data"] = args.Data
	}

	n, err := quantity(ctx, node, "eth_estimateGas", call)
	if err == nil {
		return n.Uint64(), nil
	}
	var rpcErr *chain.RPCError
	if errors.As(err, &rpcErr) || args.Gas == nil || ctx.Err() != nil {
		return 0, err
	}
	return uint64(*args.Gas), nil
}

func quantity(ctx context.Context, node Transport, method string, params ...interface{}) (*big.Int, error) {
	raw, err := node.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return chain.ParseQuantity(raw)
}

func decodeTxArgs(v interface{}) (*TxArgs, error) {
	if args, ok := v.(TxArgs); ok {
		return &args, nil
	}
	if args, ok := v.(*TxArgs); ok {
		return args, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	var args TxArgs
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, fmt.Errorf("eth_sendTransaction: invalid transaction object: %w", err)
	}
	return &args, nil
}

// classify maps transport and context failures onto the provider sentinels.
// Node and provider errors pass through unchanged.
func classify(err error, method string) error {
	var provErr *Error
	var rpcErr *chain.RPCError
	var urlErr *url.Error
	switch {
	case errors.As(err, &provErr), errors.As(err, &rpcErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrTimeout, method, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &urlErr), strings.Contains(err.Error(), "RPC request failed"):
		return fmt.Errorf("%w: %s: %w", ErrNetwork, method, err)
	}
	return err
}
