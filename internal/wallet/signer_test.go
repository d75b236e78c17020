package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known Hardhat/Anvil test account #0. Never fund on mainnet.
const (
	testPrivKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSignerAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	ks := NewMemKeystore()
	ref, err := ks.Store("w", testPrivKeyHex)
	require.NoError(t, err)
	return NewSigner(&Wallet{Name: "w", Address: testSignerAddr, KeyRef: ref}, ks)
}

// ---------------------------------------------------------------------------
// SignTx
// ---------------------------------------------------------------------------

func TestSignTxRecoversSender(t *testing.T) {
	s := testSigner(t)
	chainID := big.NewInt(1337)
	to := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     4,
		GasTipCap: big.NewInt(1e9),
		GasFeeCap: big.NewInt(2e9),
		Gas:       150_000,
		To:        &to,
		Value:     big.NewInt(300_000_000_000_000),
	})

	raw, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))
	from, err := types.Sender(types.NewLondonSigner(chainID), &decoded)
	require.NoError(t, err)
	assert.Equal(t, testSignerAddr, from.Hex())
	assert.Equal(t, "300000000000000", decoded.Value().String())
}

func TestSignTxMissingKey(t *testing.T) {
	s := NewSigner(&Wallet{Name: "w", Address: testSignerAddr, KeyRef: "koneko.none"}, NewMemKeystore())

	tx := types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1e9), nil)
	_, err := s.SignTx(tx, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Contains(t, err.Error(), "retrieving key")
}

// ---------------------------------------------------------------------------
// SignMessage / RecoverMessageSigner
// ---------------------------------------------------------------------------

func TestSignMessageRecovers(t *testing.T) {
	s := testSigner(t)
	msg := []byte("Sign in to koneko\nnonce: 1")

	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestRecoverWrongMessage(t *testing.T) {
	s := testSigner(t)
	sig, err := s.SignMessage([]byte("one"))
	require.NoError(t, err)

	addr, err := RecoverMessageSigner([]byte("two"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), addr)
}

func TestRecoverBadLength(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("x"), []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSignerAddress(t *testing.T) {
	s := testSigner(t)
	assert.Equal(t, testSignerAddr, s.Address().Hex())
	assert.Equal(t, "w", s.Name())
}
