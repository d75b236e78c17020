package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/session"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the wallet and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.connect(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(walletBlock(a.wallet.State()))
		fmt.Println(ui.Success("Connected."))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet and collection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cs, err := a.contracts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(walletBlock(a.wallet.State()))
		fmt.Println(collectionBlock(cs.Snapshot()))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "List the tokens the connected account owns",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cs, err := a.contracts(cmd.Context())
		if err != nil {
			return err
		}
		st := a.wallet.State()
		fmt.Println(walletBlock(st))

		tokens, err := cs.Tokens()
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Println(ui.Info("No tokens yet. Mint one with: koneko mint"))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "ID", Width: 6, Right: true},
			{Title: "Name", Width: 24},
			{Title: "Image", Width: 16},
			{Title: "Price", Width: 12, Right: true},
		})
		for _, tok := range tokens {
			t.AddRow(ui.Row{fmt.Sprintf("%d", tok.ID), tok.Metadata.Name, tok.Metadata.Filename, tok.Metadata.Price + " ETH"})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d token(s) owned by %s", len(tokens), ui.TruncateAddr(st.Account))))
		return nil
	},
}

func walletBlock(st session.WalletState) string {
	pairs := [][2]string{
		{"Account", ui.TruncateAddr(st.Account)},
		{"Network", fmt.Sprintf("%s (%s)", networkName(st.ChainID), st.ChainID)},
		{"Balance", chain.FormatBalance(st.BalanceWei) + " ETH"},
		{"State", st.State.String()},
	}
	if st.Signature != "" {
		pairs = append(pairs, [2]string{"Signed in", ui.TruncateAddr(st.Signature)})
	}
	return ui.KeyValueBlock("Wallet", pairs)
}

func collectionBlock(s session.ContractSnapshot) string {
	paused := "no"
	if s.Paused {
		paused = "yes"
	}
	return ui.KeyValueBlock("Collection", [][2]string{
		{"Token", cfg.TokenAddress},
		{"Controller", cfg.ControllerAddress},
		{"Mint fee", chain.FormatEther(s.MintFeeWei) + " ETH"},
		{"Total supply", s.TotalSupply.String()},
		{"Max per mint", fmt.Sprintf("%d", s.MaxBatchSize)},
		{"Paused", paused},
		{"You own", fmt.Sprintf("%d", len(s.CallerTokens))},
	})
}
