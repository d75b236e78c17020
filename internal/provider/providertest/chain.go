// Package providertest runs an in-memory EVM node that implements the ERC-721
// token and mint controller well enough to drive the gateway and sessions in
// tests without a real chain.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/contract"
)

// Defaults for a fresh chain.
var (
	DefaultChainID    = int64(1337)
	DefaultMintFee    = big.NewInt(100_000_000_000_000) // 0.0001 ETH
	DefaultBaseFee    = big.NewInt(900_000_000)         // 0.9 gwei
	DefaultTip        = big.NewInt(100_000_000)         // 0.1 gwei
	DefaultGasPrice   = new(big.Int).Add(DefaultBaseFee, DefaultTip)
	DefaultFunding, _ = new(big.Int).SetString("100000000000000000000", 10)

	TokenAddress      = common.HexToAddress("0x159B8e2EdB8fB74A899da93Dc4A6AfEBB028DEBF")
	ControllerAddress = common.HexToAddress("0xFD16fC46B80da7b609a65f938D8fF6b144D28c12")
)

const (
	gasPerMint  = 80_000
	gasBaseCall = 50_000
)

// SentTx records one accepted raw transaction.
type SentTx struct {
	Hash      common.Hash
	From      common.Address
	To        common.Address
	Value     *big.Int
	Data      []byte
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasPrice  *big.Int // effective price paid
}

// Chain is the simulated node. It satisfies provider.Transport.
type Chain struct {
	mu sync.Mutex

	chainID  *big.Int
	block    uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64

	// ERC-721
	owners       map[uint64]common.Address
	holdings     map[common.Address][]uint64
	nextID       uint64
	totalSupply  uint64
	minterRole   bool
	dupEnumerate bool

	// controller
	fee      *big.Int
	maxBatch uint64
	paused   bool
	blocked  map[common.Address]bool

	receipts     map[common.Hash]json.RawMessage
	receiptDelay int
	pending      map[common.Hash]int
	sent         []SentTx

	calls map[string]int
	fail  map[string]error
	hang  map[string]bool

	tokenABI abi.ABI
	ctrlABI  abi.ABI
}

// New creates a chain with the default fee, a batch limit of 10 and the
// controller holding MINTER_ROLE.
func New() *Chain {
	tk, _ := contract.GetBuiltin(contract.TokenContract)
	ctrl, _ := contract.GetBuiltin(contract.ControllerContract)
	return &Chain{
		chainID:    big.NewInt(DefaultChainID),
		block:      1,
		balances:   make(map[common.Address]*big.Int),
		nonces:     make(map[common.Address]uint64),
		owners:     make(map[uint64]common.Address),
		holdings:   make(map[common.Address][]uint64),
		nextID:     1,
		minterRole: true,
		fee:        new(big.Int).Set(DefaultMintFee),
		maxBatch:   10,
		blocked:    make(map[common.Address]bool),
		receipts:   make(map[common.Hash]json.RawMessage),
		pending:    make(map[common.Hash]int),
		calls:      make(map[string]int),
		fail:       make(map[string]error),
		hang:       make(map[string]bool),
		tokenABI:   tk.ABI,
		ctrlABI:    ctrl.ABI,
	}
}

// ---------------------------------------------------------------------------
// test controls
// ---------------------------------------------------------------------------

// SetChainID changes the reported chain ID.
func (c *Chain) SetChainID(id int64) { c.mu.Lock(); c.chainID = big.NewInt(id); c.mu.Unlock() }

// SetBalance sets addr's balance in wei.
func (c *Chain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

// Balance returns addr's balance in wei.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceLocked(addr))
}

// SetMintFee sets the controller's per-token fee.
func (c *Chain) SetMintFee(wei *big.Int) { c.mu.Lock(); c.fee = new(big.Int).Set(wei); c.mu.Unlock() }

// SetMaxBatch sets the controller's batch limit.
func (c *Chain) SetMaxBatch(n uint64) { c.mu.Lock(); c.maxBatch = n; c.mu.Unlock() }

// SetPaused pauses or resumes minting.
func (c *Chain) SetPaused(p bool) { c.mu.Lock(); c.paused = p; c.mu.Unlock() }

// Block marks addr as unable to receive mints.
func (c *Chain) Block(addr common.Address) { c.mu.Lock(); c.blocked[addr] = true; c.mu.Unlock() }

// RevokeMinterRole removes the controller's MINTER_ROLE on the token.
func (c *Chain) RevokeMinterRole() { c.mu.Lock(); c.minterRole = false; c.mu.Unlock() }

// DuplicateEnumeration makes tokenOfOwnerByIndex always return the first
// token, as a broken indexer would.
func (c *Chain) DuplicateEnumeration() { c.mu.Lock(); c.dupEnumerate = true; c.mu.Unlock() }

// ReceiptDelay makes every new receipt appear only after n polls.
func (c *Chain) ReceiptDelay(n int) { c.mu.Lock(); c.receiptDelay = n; c.mu.Unlock() }

// Fail makes every call to method return err until cleared with a nil err.
func (c *Chain) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, method)
		return
	}
	c.fail[method] = err
}

// Hang makes method block until its context is done.
func (c *Chain) Hang(method string) { c.mu.Lock(); c.hang[method] = true; c.mu.Unlock() }

// Airdrop mints n tokens to owner outside the controller.
func (c *Chain) Airdrop(owner common.Address, n int) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, 0, n)
	for range n {
		ids = append(ids, c.mintTokenLocked(owner))
	}
	return ids
}

// TotalSupply returns the number of tokens in existence.
func (c *Chain) TotalSupply() uint64 { c.mu.Lock(); defer c.mu.Unlock(); return c.totalSupply }

// TokensOf returns owner's token IDs in enumeration order.
func (c *Chain) TokensOf(owner common.Address) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.holdings[owner]...)
}

// Sent returns every accepted raw transaction.
func (c *Chain) Sent() []SentTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentTx(nil), c.sent...)
}

// Calls returns how many times method was requested.
func (c *Chain) Calls(method string) int { c.mu.Lock(); defer c.mu.Unlock(); return c.calls[method] }

// ---------------------------------------------------------------------------
// JSON-RPC
// ---------------------------------------------------------------------------

// Call implements provider.Transport.
func (c *Chain) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	c.calls[method]++
	failErr, hang := c.fail[method], c.hang[method]
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, fmt.Errorf("RPC request failed: %w", ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	if failErr != nil {
		return nil, failErr
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var args []json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := c.handle(method, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (c *Chain) handle(method string, args []json.RawMessage) (interface{}, error) {
	switch method {
	case "eth_chainId":
		return hexutil.EncodeBig(c.chainID), nil
	case "eth_blockNumber":
		return hexutil.Uint64(c.block), nil
	case "eth_gasPrice":
		return (*hexutil.Big)(DefaultGasPrice), nil
	case "eth_maxPriorityFeePerGas":
		return (*hexutil.Big)(DefaultTip), nil
	case "eth_getBalance":
		var addr common.Address
		if err := arg(args, 0, &addr); err != nil {
			return nil, err
		}
		return (*hexutil.Big)(c.balanceLocked(addr)), nil
	case "eth_getTransactionCount":
		var addr common.Address
		if err := arg(args, 0, &addr); err != nil {
			return nil, err
		}
		return hexutil.Uint64(c.nonces[addr]), nil
	case "eth_call":
		msg, err := callArg(args)
		if err != nil {
			return nil, err
		}
		out, err := c.view(msg)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(out), nil
	case "eth_estimateGas":
		msg, err := callArg(args)
		if err != nil {
			return nil, err
		}
		return c.estimate(msg)
	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := arg(args, 0, &raw); err != nil {
			return nil, err
		}
		return c.sendRaw(raw)
	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := arg(args, 0, &hash); err != nil {
			return nil, err
		}
		if left := c.pending[hash]; left > 0 {
			c.pending[hash] = left - 1
			return nil, nil
		}
		if r, ok := c.receipts[hash]; ok {
			return r, nil
		}
		return nil, nil
	}
	return nil, &chain.RPCError{Code: -32601, Message: "the method " + method + " does not exist/is not available"}
}

type callMsg struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (m callMsg) value() *big.Int {
	if m.Value == nil {
		return new(big.Int)
	}
	return m.Value.ToInt()
}

func (m callMsg) data() []byte {
	if len(m.Input) > 0 {
		return m.Input
	}
	return m.Data
}

func arg(args []json.RawMessage, i int, v interface{}) error {
	if i >= len(args) {
		return &chain.RPCError{Code: -32602, Message: fmt.Sprintf("missing value for required argument %d", i)}
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return &chain.RPCError{Code: -32602, Message: "invalid argument: " + err.Error()}
	}
	return nil
}

func callArg(args []json.RawMessage) (callMsg, error) {
	var m callMsg
	err := arg(args, 0, &m)
	return m, err
}

func (c *Chain) balanceLocked(addr common.Address) *big.Int {
	if b, ok := c.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

// ---------------------------------------------------------------------------
// execution
// ---------------------------------------------------------------------------

func (c *Chain) estimate(msg callMsg) (interface{}, error) {
	if c.balanceLocked(msg.From).Cmp(msg.value()) < 0 {
		return nil, insufficientFunds()
	}
	if msg.To == nil || *msg.To != ControllerAddress {
		return hexutil.Uint64(21_000), nil
	}
	qty, err := c.checkMint(msg.data(), msg.value())
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(gasBaseCall + gasPerMint*qty), nil
}

func (c *Chain) sendRaw(raw []byte) (interface{}, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &chain.RPCError{Code: -32000, Message: "rlp: " + err.Error()}
	}
	from, err := types.Sender(types.NewLondonSigner(c.chainID), &tx)
	if err != nil {
		return nil, &chain.RPCError{Code: -32000, Message: "invalid sender: " + err.Error()}
	}
	if tx.Nonce() != c.nonces[from] {
		return nil, &chain.RPCError{Code: -32000, Message: fmt.Sprintf("nonce too low: next nonce %d, tx nonce %d", c.nonces[from], tx.Nonce())}
	}

	if tx.GasFeeCap().Cmp(DefaultBaseFee) < 0 {
		return nil, &chain.RPCError{Code: -32000, Message: "max fee per gas less than block base fee"}
	}
	price := new(big.Int).Add(DefaultBaseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	maxCost := new(big.Int).Add(tx.Value(), new(big.Int).Mul(tx.GasFeeCap(), new(big.Int).SetUint64(tx.Gas())))
	bal := c.balanceLocked(from)
	if bal.Cmp(maxCost) < 0 {
		return nil, insufficientFunds()
	}

	c.nonces[from]++
	c.block++
	hash := tx.Hash()
	to := common.Address{}
	if tx.To() != nil {
		to = *tx.To()
	}
	c.sent = append(c.sent, SentTx{
		Hash:      hash,
		From:      from,
		To:        to,
		Value:     new(big.Int).Set(tx.Value()),
		Data:      tx.Data(),
		GasTipCap: tx.GasTipCap(),
		GasFeeCap: tx.GasFeeCap(),
		GasPrice:  new(big.Int).Set(price),
	})

	status := uint64(1)
	gasUsed := uint64(21_000)
	var logs []map[string]interface{}
	spent := new(big.Int).Set(tx.Value())

	if to == ControllerAddress {
		ids, refund, err := c.executeMint(tx.Data(), tx.Value())
		if err != nil {
			status, spent = 0, new(big.Int)
		} else {
			gasUsed = gasBaseCall + gasPerMint*uint64(len(ids))
			spent.Sub(spent, refund)
			recipient := c.owners[ids[0]]
			for _, id := range ids {
				logs = append(logs, transferLog(recipient, id, c.tokenABI.Events["Transfer"].ID))
			}
		}
	}

	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(gasUsed))
	bal.Sub(bal, spent)
	bal.Sub(bal, fee)
	c.balances[from] = bal

	if logs == nil {
		logs = []map[string]interface{}{}
	}
	rcpt, _ := json.Marshal(map[string]interface{}{
		"transactionHash": hash,
		"status":          hexutil.Uint64(status),
		"blockNumber":     hexutil.Uint64(c.block),
		"gasUsed":         hexutil.Uint64(gasUsed),
		"logs":            logs,
	})
	c.receipts[hash] = rcpt
	if c.receiptDelay > 0 {
		c.pending[hash] = c.receiptDelay
	}
	return hash, nil
}

func transferLog(to common.Address, id uint64, topic common.Hash) map[string]interface{} {
	return map[string]interface{}{
		"address": TokenAddress,
		"topics": []common.Hash{
			topic,
			{},
			common.BytesToHash(to.Bytes()),
			common.BigToHash(new(big.Int).SetUint64(id)),
		},
		"data": "0x",
	}
}

// checkMint validates a mint/mintBatch call without changing state and
// returns the quantity.
func (c *Chain) checkMint(data []byte, value *big.Int) (uint64, error) {
	m, args, err := decode(c.ctrlABI, data)
	if err != nil {
		return 0, err
	}

	var recipient common.Address
	qty := uint64(1)
	switch m.RawName {
	case "mint":
		recipient = args[0].(common.Address)
	case "mintBatch":
		recipient = args[0].(common.Address)
		qty = args[1].(*big.Int).Uint64()
	default:
		return 0, nil
	}

	switch {
	case c.paused:
		return 0, revert("paused")
	case recipient == (common.Address{}):
		return 0, revert("Recipient cannot be the zero address")
	case c.blocked[recipient]:
		return 0, revert("blocked")
	case qty == 0 || qty > c.maxBatch:
		return 0, revert("exceeds batch limit")
	case !c.minterRole:
		return 0, revert("!Minter")
	}
	need := new(big.Int).Mul(c.fee, new(big.Int).SetUint64(qty))
	if value.Cmp(need) < 0 {
		return 0, revert("Insufficient fees")
	}
	return qty, nil
}

// executeMint mints and returns the new IDs and the refunded overpayment.
func (c *Chain) executeMint(data []byte, value *big.Int) ([]uint64, *big.Int, error) {
	qty, err := c.checkMint(data, value)
	if err != nil {
		return nil, nil, err
	}
	if qty == 0 {
		return nil, nil, revert("unsupported call")
	}
	_, args, _ := decode(c.ctrlABI, data)
	recipient := args[0].(common.Address)

	ids := make([]uint64, 0, qty)
	for range qty {
		ids = append(ids, c.mintTokenLocked(recipient))
	}
	need := new(big.Int).Mul(c.fee, new(big.Int).SetUint64(qty))
	return ids, new(big.Int).Sub(value, need), nil
}

func (c *Chain) mintTokenLocked(to common.Address) uint64 {
	id := c.nextID
	c.nextID++
	c.totalSupply++
	c.owners[id] = to
	c.holdings[to] = append(c.holdings[to], id)
	return id
}

func (c *Chain) view(msg callMsg) ([]byte, error) {
	if msg.To == nil {
		return nil, &chain.RPCError{Code: -32000, Message: "missing to"}
	}
	switch *msg.To {
	case TokenAddress:
		return c.tokenView(msg.data())
	case ControllerAddress:
		return c.controllerView(msg.data(), msg.value())
	}
	return []byte{}, nil
}

func (c *Chain) tokenView(data []byte) ([]byte, error) {
	m, args, err := decode(c.tokenABI, data)
	if err != nil {
		return nil, err
	}
	switch m.RawName {
	case "name":
		return m.Outputs.Pack("Koneko")
	case "symbol":
		return m.Outputs.Pack("KNK")
	case "totalSupply":
		return m.Outputs.Pack(new(big.Int).SetUint64(c.totalSupply))
	case "balanceOf":
		owner := args[0].(common.Address)
		return m.Outputs.Pack(big.NewInt(int64(len(c.holdings[owner]))))
	case "tokenOfOwnerByIndex":
		owner := args[0].(common.Address)
		idx := args[1].(*big.Int)
		held := c.holdings[owner]
		if !idx.IsUint64() || idx.Uint64() >= uint64(len(held)) {
			return nil, revert("ERC721Enumerable: owner index out of bounds")
		}
		if c.dupEnumerate {
			return m.Outputs.Pack(new(big.Int).SetUint64(held[0]))
		}
		return m.Outputs.Pack(new(big.Int).SetUint64(held[idx.Uint64()]))
	case "ownerOf":
		id := args[0].(*big.Int)
		owner, ok := c.owners[id.Uint64()]
		if !ok {
			return nil, revert("ERC721: invalid token ID")
		}
		return m.Outputs.Pack(owner)
	case "hasRole":
		role := args[0].([32]byte)
		acct := args[1].(common.Address)
		return m.Outputs.Pack(c.minterRole && common.Hash(role) == contract.RoleID("MINTER_ROLE") && acct == ControllerAddress)
	}
	return nil, revert("unsupported call " + m.RawName)
}

func (c *Chain) controllerView(data []byte, value *big.Int) ([]byte, error) {
	m, _, err := decode(c.ctrlABI, data)
	if err != nil {
		return nil, err
	}
	switch m.RawName {
	case "getMintFee":
		return m.Outputs.Pack(new(big.Int).Set(c.fee))
	case "maxBatchSize":
		return m.Outputs.Pack(new(big.Int).SetUint64(c.maxBatch))
	case "isPaused":
		return m.Outputs.Pack(c.paused)
	case "getNftContract":
		return m.Outputs.Pack(TokenAddress)
	case "mint", "mintBatch":
		if _, err := c.checkMint(data, value); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	return nil, revert("unsupported call " + m.RawName)
}

func decode(a abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, revert("")
	}
	m, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("")
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, revert("")
	}
	return m, args, nil
}

// revert mimics a geth-style execution revert with an Error(string) payload.
func revert(reason string) error {
	if reason == "" {
		return &chain.RPCError{Code: 3, Message: "execution reverted"}
	}
	payload := append(crypto.Keccak256([]byte("Error(string)"))[:4:4], mustPackString(reason)...)
	data, _ := json.Marshal(hexutil.Encode(payload))
	return &chain.RPCError{Code: 3, Message: "execution reverted: " + reason, Data: data}
}

func mustPackString(s string) []byte {
	t, _ := abi.NewType("string", "", nil)
	out, err := abi.Arguments{{Type: t}}.Pack(s)
	if err != nil {
		panic(err)
	}
	return out
}

func insufficientFunds() error {
	return &chain.RPCError{Code: -32000, Message: "insufficient funds for gas * price + value"}
}

// ErrInjected is a convenience error for Fail.
var ErrInjected = errors.New("injected failure")
