package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Inspect and choose networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chain.NewRegistry()
		t := ui.NewTable([]ui.Column{
			{Title: "", Width: 1},
			{Title: "Name", Width: 16},
			{Title: "Display", Width: 20},
			{Title: "Chain ID", Width: 10, Right: true},
			{Title: "Hex", Width: 8},
			{Title: "Currency", Width: 8},
			{Title: "Type", Width: 8},
		})

		for _, n := range reg.All() {
			mark := ""
			if n.Name == cfg.Network {
				mark = "▸"
			}
			kind := "mainnet"
			if n.Testnet {
				kind = "testnet"
			}
			t.AddRow(ui.Row{mark, n.Name, n.DisplayName, fmt.Sprintf("%d", n.ChainID), n.ChainIDHex(), n.NativeCurrency, kind})
		}

		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d networks · current: %s", len(reg.All()), cfg.Network)))
		return nil
	},
}

var networkUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the network to mint on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := chain.NewRegistry().GetByName(args[0])
		if err != nil {
			return fmt.Errorf("%w, run `koneko network list` to see all networks", err)
		}
		cfg.Network = n.Name
		cfg.ChainID = n.ChainID
		cfg.RPCs = nil
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Network set to %s (chain %d).", ui.Network(n.DisplayName), n.ChainID)))
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkUseCmd)
}
