package cmd

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

// mintPresets are the quantities offered when --qty is not given.
var mintPresets = []uint64{1, 3, 5, 10}

var errMintLimit = errors.New("local mint limit reached, review with `koneko ledger list`")

var mintQty uint64

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint tokens to the connected account",
	Long: `Mint one or more tokens. The value sent is the controller's current mint
fee times the quantity; the wallet shows the exact amount for approval.

Without --qty a picker offers 1, 3, 5 or 10.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		reached, err := a.ledger.LimitReached(ctx, cfg.MintLimit)
		if err != nil {
			return err
		}
		if reached {
			return errMintLimit
		}

		cs, err := a.contracts(ctx)
		if err != nil {
			return err
		}
		snap := cs.Snapshot()
		if snap.Paused {
			fmt.Println(ui.Warn("Minting is paused on the controller."))
		}

		qty := mintQty
		if !cmd.Flags().Changed("qty") && stdoutIsTerminal() {
			if qty, err = pickQuantity(snap.MaxBatchSize, snap.MintFeeWei); err != nil || qty == 0 {
				return err
			}
		}

		cost, err := cs.Quote(qty)
		if err != nil {
			return err
		}
		fmt.Println(ui.KeyValueBlock("Mint", [][2]string{
			{"Quantity", strconv.FormatUint(qty, 10)},
			{"Fee each", chain.FormatEther(snap.MintFeeWei) + " ETH"},
			{"Total", chain.FormatEther(cost) + " ETH"},
		}))

		res, err := cs.Mint(ctx, qty)
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"Transaction", res.TxHash.Hex()},
			{"Block", strconv.FormatUint(res.BlockNumber, 10)},
			{"Paid", chain.FormatEther(res.Value) + " ETH"},
		}
		if link := explorerLink(a.network, "tx", res.TxHash.Hex()); link != "" {
			pairs = append(pairs, [2]string{"Explorer", link})
		}
		for _, id := range res.TokenIDs {
			pairs = append(pairs, [2]string{"Token #" + strconv.FormatUint(id, 10), a.catalog.Lookup(id).Name})
		}
		fmt.Println(ui.KeyValueBlock("Minted", pairs))
		fmt.Println(ui.Success(fmt.Sprintf("Minted %d token(s).", len(res.TokenIDs))))
		return nil
	},
}

func pickQuantity(maxBatch uint64, fee *big.Int) (uint64, error) {
	var items []ui.PickerItem
	for _, q := range mintPresets {
		if maxBatch > 0 && q > maxBatch {
			continue
		}
		label := fmt.Sprintf("%d token", q)
		if q > 1 {
			label += "s"
		}
		cost := new(big.Int).Mul(fee, new(big.Int).SetUint64(q))
		items = append(items, ui.PickerItem{
			Label:    label,
			SubLabel: chain.FormatEther(cost) + " ETH",
			Value:    strconv.FormatUint(q, 10),
		})
	}

	v, err := ui.PickItem("How many?", items, tea.WithAltScreen())
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func init() {
	mintCmd.Flags().Uint64VarP(&mintQty, "qty", "q", 1, "number of tokens (1-10)")
}
