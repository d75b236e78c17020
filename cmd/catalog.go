package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/Mohsinsiddi/koneko/internal/ledger"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

var (
	catalogSearch string
	catalogPage   int
	catalogFilter string
	catalogPlain  bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the collection",
	Long: `Browse the collection catalog. Tokens recorded in the local ledger are
shown as minted.

In a terminal the browser is interactive: / searches, f cycles the filter,
arrow keys page. --plain prints one page and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		filter := catalog.Filter(catalogFilter)
		switch filter {
		case catalog.FilterAll, catalog.FilterAvailable, catalog.FilterMinted:
		default:
			return fmt.Errorf("unknown filter %q (all, available, minted)", catalogFilter)
		}

		cat, err := catalog.Load(ctx, cfg.CatalogSource)
		if err != nil {
			return err
		}
		l, err := ledger.Open(cfg.LedgerPath())
		if err != nil {
			return err
		}
		defer l.Close()
		minted, err := l.MintedSet(ctx)
		if err != nil {
			return err
		}

		b := ui.NewBrowser(cat, minted, catalog.Query{Search: catalogSearch, Filter: filter, Page: catalogPage})
		if catalogPlain || !stdoutIsTerminal() {
			fmt.Print(ui.RenderPage(b))
			return nil
		}
		return ui.Browse(b, tea.WithAltScreen(), tea.WithContext(ctx))
	},
}

func init() {
	catalogCmd.Flags().StringVarP(&catalogSearch, "search", "s", "", "filter by name")
	catalogCmd.Flags().IntVarP(&catalogPage, "page", "p", 1, "page to open")
	catalogCmd.Flags().StringVarP(&catalogFilter, "filter", "f", string(catalog.FilterAll), "all, available or minted")
	catalogCmd.Flags().BoolVar(&catalogPlain, "plain", false, "print a page instead of the interactive browser")
}
