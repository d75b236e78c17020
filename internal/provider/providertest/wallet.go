package providertest

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/wallet"
)

// Hardhat/Anvil development accounts. Never fund on a public network.
const (
	Key0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	Key1 = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	Addr0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	Addr1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// Wallet imports keys (Key0 when none are given) into an in-memory wallet,
// funds each account with DefaultFunding on c, and returns an Injected
// provider over c. The provider is closed when the test ends.
func (c *Chain) Wallet(t testing.TB, approver provider.Approver, keys ...string) *provider.Injected {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{Key0}
	}

	mgr := wallet.NewManager()
	signers := make([]*wallet.Signer, 0, len(keys))
	for i, k := range keys {
		w, err := mgr.Import(walletName(i), k)
		require.NoError(t, err)
		s, err := mgr.Signer(w.Name)
		require.NoError(t, err)
		c.SetBalance(s.Address(), DefaultFunding)
		signers = append(signers, s)
	}

	p, err := provider.NewInjected(c, signers, approver)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func walletName(i int) string {
	return string(rune('a' + i))
}
