package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/ledger"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Review locally recorded mints",
	Long: `The ledger is a local record of tokens minted from this machine. It marks
catalog entries as minted and enforces the local mint limit. The chain is the
source of truth for ownership; use "koneko profile" for that.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded mints",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := ledger.Open(cfg.LedgerPath())
		if err != nil {
			return err
		}
		defer l.Close()

		entries, err := l.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(ui.Info("Nothing minted yet."))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "ID", Width: 6, Right: true},
			{Title: "Name", Width: 20},
			{Title: "Account", Width: 13},
			{Title: "Tx", Width: 13},
			{Title: "Minted", Width: 16},
		})
		for _, e := range entries {
			t.AddRow(ui.Row{
				strconv.FormatUint(e.TokenID, 10),
				e.Name,
				ui.TruncateAddr(e.Account),
				ui.TruncateAddr(e.TxHash),
				e.MintedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d of %d allowed", len(entries), cfg.MintLimit)))
		return nil
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recorded mint",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := ui.StdPrompter()
		p.AssumeYes = assumeYes
		ok, err := p.ConfirmDanger(cmd.Context(), "Clear the local mint ledger?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}

		l, err := ledger.Open(cfg.LedgerPath())
		if err != nil {
			return err
		}
		defer l.Close()
		if err := l.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(ui.Success("Ledger cleared."))
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd, ledgerClearCmd)
}
