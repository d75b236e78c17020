package contract_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/provider/providertest"
)

// gateway returns a gateway over a fresh simulated chain with Addr0 already
// connected.
func gateway(t *testing.T, approver provider.Approver, opts ...contract.GatewayOption) (*contract.Gateway, *providertest.Chain) {
	t.Helper()
	node := providertest.New()
	p := node.Wallet(t, approver)
	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)

	opts = append([]contract.GatewayOption{contract.WithPollInterval(time.Millisecond)}, opts...)
	g, err := contract.NewGateway(p, providertest.TokenAddress, providertest.ControllerAddress, opts...)
	require.NoError(t, err)
	return g, node
}

func TestNewGatewayNeedsProvider(t *testing.T) {
	_, err := contract.NewGateway(nil, providertest.TokenAddress, providertest.ControllerAddress)
	assert.ErrorIs(t, err, provider.ErrNoProvider)
}

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

func TestReads(t *testing.T) {
	ctx := context.Background()
	g, node := gateway(t, provider.AutoApprove)
	node.Airdrop(providertest.Addr1, 2)

	fee, err := g.MintFee(ctx)
	require.NoError(t, err)
	assert.Zero(t, fee.Cmp(providertest.DefaultMintFee))

	supply, err := g.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), supply.Int64())

	maxBatch, err := g.MaxBatchSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), maxBatch)

	paused, err := g.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	can, err := g.ControllerCanMint(ctx)
	require.NoError(t, err)
	assert.True(t, can)

	node.RevokeMinterRole()
	can, err = g.ControllerCanMint(ctx)
	require.NoError(t, err)
	assert.False(t, can)
}

func TestReadFailureIsReadError(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.Fail("eth_call", providertest.ErrInjected)

	_, err := g.MintFee(context.Background())
	var readErr *contract.ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "getMintFee", readErr.Call)
	assert.ErrorIs(t, err, providertest.ErrInjected)
}

func TestReadTimesOut(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove, contract.WithTimeouts(10*time.Millisecond, 0, 0))
	node.Hang("eth_call")

	_, err := g.TotalSupply(context.Background())
	assert.ErrorIs(t, err, provider.ErrTimeout)
}

func TestOwnedTokensJoinsCatalog(t *testing.T) {
	cat, err := catalog.New([]catalog.TokenMetadataEntry{
		{ID: 1, Filename: "1.png", Name: "Mochi", Price: "0.01"},
	})
	require.NoError(t, err)
	g, node := gateway(t, provider.AutoApprove, contract.WithMetadata(cat))
	node.Airdrop(providertest.Addr0, 3)

	owned, err := g.OwnedTokens(context.Background(), providertest.Addr0)
	require.NoError(t, err)
	require.Len(t, owned, 3)

	assert.Equal(t, uint64(1), owned[0].ID)
	assert.Equal(t, "Mochi", owned[0].Metadata.Name)
	assert.Equal(t, "NFT #2", owned[1].Metadata.Name)
	assert.Equal(t, "3.png", owned[2].Metadata.Filename)

	bal, err := g.BalanceOf(context.Background(), providertest.Addr0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(owned)), bal.Int64())
}

func TestOwnedTokensEmpty(t *testing.T) {
	g, _ := gateway(t, provider.AutoApprove)
	owned, err := g.OwnedTokens(context.Background(), providertest.Addr1)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestOwnedTokensRejectsDuplicates(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.Airdrop(providertest.Addr0, 2)
	node.DuplicateEnumeration()

	_, err := g.OwnedTokens(context.Background(), providertest.Addr0)
	assert.ErrorIs(t, err, contract.ErrDuplicateToken)
}

// ---------------------------------------------------------------------------
// mint
// ---------------------------------------------------------------------------

func TestMintPaysFeeTimesQuantity(t *testing.T) {
	for _, qty := range []uint64{1, 3, 5, 10} {
		g, node := gateway(t, provider.AutoApprove)

		res, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, qty)
		require.NoError(t, err, "qty %d", qty)

		want := new(big.Int).Mul(providertest.DefaultMintFee, new(big.Int).SetUint64(qty))
		sent := node.Sent()
		require.Len(t, sent, 1)
		assert.Zero(t, sent[0].Value.Cmp(want), "qty %d paid %s", qty, sent[0].Value)
		assert.Equal(t, providertest.ControllerAddress, sent[0].To)
		assert.Zero(t, res.Value.Cmp(want))

		assert.Len(t, res.TokenIDs, int(qty))
		assert.Equal(t, node.TokensOf(providertest.Addr0), res.TokenIDs)
		assert.Equal(t, sent[0].Hash, res.TxHash)
	}
}

func TestMintUsesBatchCallAboveOne(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	ctrl, _ := contract.GetBuiltin(contract.ControllerContract)

	_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
	require.NoError(t, err)
	_, err = g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 2)
	require.NoError(t, err)

	sent := node.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, ctrl.ABI.Methods["mint"].ID, sent[0].Data[:4])
	assert.Equal(t, ctrl.ABI.Methods["mintBatch"].ID, sent[1].Data[:4])
}

func TestMintToOtherRecipient(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)

	res, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, res.TokenIDs)
	assert.Equal(t, []uint64{1, 2}, node.TokensOf(providertest.Addr1))
	assert.Empty(t, node.TokensOf(providertest.Addr0))
}

func TestMintInvalidQuantity(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)

	_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 0)
	assert.ErrorIs(t, err, contract.ErrInvalidQuantity)

	_, err = g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 11)
	assert.ErrorIs(t, err, contract.ErrInvalidQuantity)

	node.SetMaxBatch(3)
	_, err = g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 4)
	assert.ErrorIs(t, err, contract.ErrInvalidQuantity)

	assert.Empty(t, node.Sent())
}

func TestMintOverBatchLimitIsRevert(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.SetMaxBatch(3)

	_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 4)
	var revert *contract.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "exceeds batch limit 3", revert.Reason)
	assert.Empty(t, revert.TxHash)
	assert.Empty(t, node.Sent(), "rejected before sending")
}

func TestMintFollowsFeeChanges(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	fee := big.NewInt(5_000_000_000_000_000)
	node.SetMintFee(fee)

	res, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 2)
	require.NoError(t, err)
	assert.Zero(t, res.Value.Cmp(new(big.Int).Mul(fee, big.NewInt(2))))
}

func TestMintInsufficientFunds(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.SetBalance(providertest.Addr0, big.NewInt(1000))

	_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
	assert.ErrorIs(t, err, contract.ErrInsufficientFunds)
	assert.Empty(t, node.Sent())
}

func TestMintRevertReasons(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(*providertest.Chain)
		reason string
	}{
		{"paused", func(c *providertest.Chain) { c.SetPaused(true) }, "paused"},
		{"blocked", func(c *providertest.Chain) { c.Block(providertest.Addr0) }, "blocked"},
		{"no minter role", func(c *providertest.Chain) { c.RevokeMinterRole() }, "!Minter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, node := gateway(t, provider.AutoApprove)
			tc.setup(node)

			_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
			var rev *contract.RevertError
			require.True(t, errors.As(err, &rev), "got %v", err)
			assert.Equal(t, tc.reason, rev.Reason)
			assert.Empty(t, node.Sent())
		})
	}
}

func TestMintRejectedByUser(t *testing.T) {
	node := providertest.New()
	p := node.Wallet(t, provider.ApproverFunc(func(_ context.Context, req provider.Approval) (bool, error) {
		return req.Kind == provider.ApproveConnect, nil
	}))
	_, err := p.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)
	g, err := contract.NewGateway(p, providertest.TokenAddress, providertest.ControllerAddress)
	require.NoError(t, err)

	_, err = g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
	assert.ErrorIs(t, err, provider.ErrUserRejected)
	assert.Empty(t, node.Sent())
	assert.Zero(t, node.TotalSupply())
}

func TestMintFromUnauthorizedAccount(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.SetBalance(providertest.Addr1, providertest.DefaultFunding)

	_, err := g.Mint(context.Background(), providertest.Addr1, providertest.Addr1, 1)
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}

func TestMintWaitsForReceipt(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.ReceiptDelay(3)

	res, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, res.TokenIDs)
	assert.GreaterOrEqual(t, node.Calls("eth_getTransactionReceipt"), 4)
}

func TestMintConfirmationTimeout(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove, contract.WithTimeouts(0, 0, 20*time.Millisecond))
	node.ReceiptDelay(1_000_000)

	_, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 1)
	assert.ErrorIs(t, err, provider.ErrTimeout)
	assert.Len(t, node.Sent(), 1, "the transaction was broadcast")
}

func TestMintCancelled(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.ReceiptDelay(1_000_000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(node.Sent()) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := g.Mint(ctx, providertest.Addr0, providertest.Addr0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMintedIDsIgnoreForeignLogs(t *testing.T) {
	g, node := gateway(t, provider.AutoApprove)
	node.Airdrop(common.HexToAddress("0xbeef"), 4)

	res, err := g.Mint(context.Background(), providertest.Addr0, providertest.Addr0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6}, res.TokenIDs)
}
