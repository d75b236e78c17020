package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/provider/providertest"
	"github.com/Mohsinsiddi/koneko/internal/wallet"
)

func accountList(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	var out []string
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// recorder approves everything and remembers what it was asked.
type recorder struct {
	asked []provider.Approval
}

func (r *recorder) Approve(_ context.Context, req provider.Approval) (bool, error) {
	r.asked = append(r.asked, req)
	return true, nil
}

// ---------------------------------------------------------------------------
// accounts
// ---------------------------------------------------------------------------

func TestNewInjectedWithoutSignersIsNoProvider(t *testing.T) {
	_, err := provider.NewInjected(providertest.New(), nil, provider.AutoApprove)
	assert.ErrorIs(t, err, provider.ErrNoProvider)
}

func TestAccountsHiddenUntilRequested(t *testing.T) {
	ctx := context.Background()
	p := providertest.New().Wallet(t, provider.AutoApprove)

	raw, err := p.Request(ctx, "eth_accounts")
	require.NoError(t, err)
	assert.Empty(t, accountList(t, raw))

	raw, err = p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)
	assert.Equal(t, []string{providertest.Addr0.Hex()}, accountList(t, raw))

	raw, err = p.Request(ctx, "eth_accounts")
	require.NoError(t, err)
	assert.Equal(t, []string{providertest.Addr0.Hex()}, accountList(t, raw))
}

func TestRequestAccountsRejected(t *testing.T) {
	p := providertest.New().Wallet(t, provider.DenyAll)

	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUserRejected)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, provider.CodeUserRejected, perr.Code)
}

func TestRequestAccountsPromptsOnce(t *testing.T) {
	rec := &recorder{}
	p := providertest.New().Wallet(t, rec)

	for range 3 {
		_, err := p.Request(context.Background(), "eth_requestAccounts")
		require.NoError(t, err)
	}
	require.Len(t, rec.asked, 1)
	assert.Equal(t, provider.ApproveConnect, rec.asked[0].Kind)
}

// ---------------------------------------------------------------------------
// events
// ---------------------------------------------------------------------------

func nextEvent(t *testing.T, p provider.Provider) provider.Event {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return provider.Event{}
	}
}

func TestSelectAccountEmitsWhenAuthorized(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove, providertest.Key0, providertest.Key1)

	// not yet authorized: switching is silent
	require.NoError(t, p.SelectAccount(providertest.Addr1))
	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)
	require.NoError(t, p.SelectAccount(providertest.Addr0))

	ev := nextEvent(t, p)
	assert.Equal(t, provider.AccountsChanged, ev.Kind)
	assert.Equal(t, []string{providertest.Addr0.Hex()}, ev.Accounts)

	assert.ErrorIs(t, p.SelectAccount(common.HexToAddress("0x1234")), wallet.ErrWalletNotFound)
}

func TestLockEmitsEmptyAccounts(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove)
	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)

	p.Lock()
	ev := nextEvent(t, p)
	assert.Equal(t, provider.AccountsChanged, ev.Kind)
	assert.Empty(t, ev.Accounts)

	raw, err := p.Request(context.Background(), "eth_accounts")
	require.NoError(t, err)
	assert.Empty(t, accountList(t, raw))
}

func TestSwitchChainEmitsChainChanged(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove)

	other := providertest.New()
	other.SetChainID(5777)
	require.NoError(t, p.SwitchChain(context.Background(), other))

	ev := nextEvent(t, p)
	assert.Equal(t, provider.ChainChanged, ev.Kind)
	assert.Equal(t, "0x1691", ev.ChainID)

	raw, err := p.Request(context.Background(), "eth_chainId")
	require.NoError(t, err)
	assert.JSONEq(t, `"0x1691"`, string(raw))
}

func TestCloseStopsEventsAndRequests(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove)
	p.Close()

	_, open := <-p.Events()
	assert.False(t, open)

	_, err := p.Request(context.Background(), "eth_chainId")
	assert.ErrorIs(t, err, provider.ErrClosed)
}

// ---------------------------------------------------------------------------
// signing
// ---------------------------------------------------------------------------

func TestPersonalSignRecoversToAccount(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	p := providertest.New().Wallet(t, rec)
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)

	msg := "Welcome to koneko!\nnonce: abc"
	raw, err := p.Request(ctx, "personal_sign", hexutil.Encode([]byte(msg)), providertest.Addr0.Hex())
	require.NoError(t, err)

	var sigHex string
	require.NoError(t, json.Unmarshal(raw, &sigHex))
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	signer, err := wallet.RecoverMessageSigner([]byte(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, providertest.Addr0, signer)

	require.Len(t, rec.asked, 2)
	assert.Equal(t, msg, rec.asked[1].Message, "prompt shows the decoded message")
}

func TestPersonalSignRequiresAuthorization(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove)

	_, err := p.Request(context.Background(), "personal_sign", "hello", providertest.Addr0.Hex())
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}

func TestUnsupportedMethod(t *testing.T) {
	p := providertest.New().Wallet(t, provider.AutoApprove)
	_, err := p.Request(context.Background(), "eth_sign", "0x00")
	assert.ErrorIs(t, err, provider.ErrUnsupportedMethod)
}

// ---------------------------------------------------------------------------
// transactions
// ---------------------------------------------------------------------------

func TestSendTransactionSignsAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	node := providertest.New()
	rec := &recorder{}
	p := node.Wallet(t, rec)
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	value := big.NewInt(12345)
	raw, err := p.Request(ctx, "eth_sendTransaction", provider.TxArgs{
		From:  providertest.Addr0,
		To:    &to,
		Value: (*hexutil.Big)(value),
	})
	require.NoError(t, err)

	var hash common.Hash
	require.NoError(t, json.Unmarshal(raw, &hash))

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash)
	assert.Equal(t, providertest.Addr0, sent[0].From)
	assert.Zero(t, sent[0].Value.Cmp(value))

	last := rec.asked[len(rec.asked)-1]
	assert.Equal(t, provider.ApproveTransaction, last.Kind)
	assert.Zero(t, last.Value.Cmp(value))
}

func TestSendTransactionPaysBaseFeePlusTip(t *testing.T) {
	ctx := context.Background()
	node := providertest.New()
	p := node.Wallet(t, provider.AutoApprove)
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)

	to := common.HexToAddress("0xaa")
	_, err = p.Request(ctx, "eth_sendTransaction", provider.TxArgs{From: providertest.Addr0, To: &to})
	require.NoError(t, err)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].GasTipCap.Cmp(providertest.DefaultTip))
	wantCap := new(big.Int).Add(new(big.Int).Mul(providertest.DefaultBaseFee, big.NewInt(2)), providertest.DefaultTip)
	assert.Zero(t, sent[0].GasFeeCap.Cmp(wantCap))
	assert.Zero(t, sent[0].GasPrice.Cmp(providertest.DefaultGasPrice), "pays gasPrice, not base fee twice")
}

func TestSendTransactionWithoutPriorityFeeMethod(t *testing.T) {
	ctx := context.Background()
	node := providertest.New()
	node.Fail("eth_maxPriorityFeePerGas", &chain.RPCError{Code: -32601, Message: "method not found"})
	p := node.Wallet(t, provider.AutoApprove)
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)

	to := common.HexToAddress("0xaa")
	_, err = p.Request(ctx, "eth_sendTransaction", provider.TxArgs{From: providertest.Addr0, To: &to})
	require.NoError(t, err)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].GasTipCap.Cmp(providertest.DefaultGasPrice))
	assert.Zero(t, sent[0].GasFeeCap.Cmp(providertest.DefaultGasPrice))
	assert.Zero(t, sent[0].GasPrice.Cmp(providertest.DefaultGasPrice))
}

func TestSendTransactionRejectedSendsNothing(t *testing.T) {
	ctx := context.Background()
	node := providertest.New()
	asked := 0
	p := node.Wallet(t, provider.ApproverFunc(func(_ context.Context, req provider.Approval) (bool, error) {
		asked++
		return req.Kind == provider.ApproveConnect, nil
	}))
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)

	to := common.HexToAddress("0xaa")
	_, err = p.Request(ctx, "eth_sendTransaction", provider.TxArgs{From: providertest.Addr0, To: &to})
	assert.ErrorIs(t, err, provider.ErrUserRejected)
	assert.Empty(t, node.Sent())
	assert.Equal(t, 2, asked)
}

func TestSendTransactionSurfacesNodeError(t *testing.T) {
	ctx := context.Background()
	node := providertest.New()
	p := node.Wallet(t, provider.AutoApprove)
	_, err := p.Request(ctx, "eth_requestAccounts")
	require.NoError(t, err)
	node.SetBalance(providertest.Addr0, big.NewInt(1))

	to := common.HexToAddress("0xaa")
	_, err = p.Request(ctx, "eth_sendTransaction", provider.TxArgs{
		From: providertest.Addr0, To: &to, Value: (*hexutil.Big)(big.NewInt(10)),
	})
	var rpcErr *chain.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Contains(t, rpcErr.Message, "insufficient funds")
}

// ---------------------------------------------------------------------------
// error classification
// ---------------------------------------------------------------------------

func TestHungNodeTimesOut(t *testing.T) {
	node := providertest.New()
	node.Hang("eth_getBalance")
	p := node.Wallet(t, provider.AutoApprove)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Request(ctx, "eth_getBalance", providertest.Addr0.Hex(), "latest")
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	c := chain.NewClient("http://127.0.0.1:1")
	ks := wallet.NewMemKeystore()
	mgr := wallet.NewManager(wallet.WithKeyStore(ks))
	_, err := mgr.Import("a", providertest.Key0)
	require.NoError(t, err)
	s, err := mgr.Signer("a")
	require.NoError(t, err)

	p, err := provider.NewInjected(c, []*wallet.Signer{s}, provider.AutoApprove)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Request(context.Background(), "eth_blockNumber")
	assert.ErrorIs(t, err, provider.ErrNetwork)
}
