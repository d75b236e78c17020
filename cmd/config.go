package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/deploy"
	"github.com/Mohsinsiddi/koneko/internal/rpc"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetContractsCmd = &cobra.Command{
	Use:   "set-contracts <token> <controller>",
	Short: "Set the ERC-721 token and mint controller addresses",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, a := range args {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("%q is not an address", a)
			}
		}
		cfg.TokenAddress = common.HexToAddress(args[0]).Hex()
		cfg.ControllerAddress = common.HexToAddress(args[1]).Hex()
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Contracts set."))
		return nil
	},
}

var configSetCatalogCmd = &cobra.Command{
	Use:   "set-catalog <path-or-url>",
	Short: "Set where the catalog JSON is loaded from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.CatalogSource = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Catalog source set to %s", args[0])))
		return nil
	},
}

var configSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <url> [chain-id]",
	Short: "Add an RPC for the current network",
	Long: `Add an RPC URL for the current network. Configured RPCs replace the
built-in ones. Pass a chain ID when the network is not in the registry.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%q is not an http(s) URL", args[0])
		}
		if len(args) == 2 {
			if cfg.ChainID, err = strconv.ParseInt(args[1], 0, 64); err != nil {
				return fmt.Errorf("chain id: %w", err)
			}
		}
		if slices.Contains(cfg.RPCs, args[0]) {
			fmt.Println(ui.Warn("RPC already configured."))
			return nil
		}
		cfg.RPCs = append(cfg.RPCs, args[0])
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC for %s added: %s", cfg.Network, args[0])))
		return nil
	},
}

var configSetAlgorithmCmd = &cobra.Command{
	Use:   "set-rpc-algorithm <fastest|round-robin|failover>",
	Short: "Choose how an RPC endpoint is selected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algo := rpc.Algorithm(args[0])
		switch algo {
		case rpc.AlgorithmFastest, rpc.AlgorithmRoundRobin, rpc.AlgorithmFailover:
		default:
			return fmt.Errorf("unknown algorithm %q", args[0])
		}
		cfg.RPCAlgorithm = string(algo)
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC algorithm set to %s", algo)))
		return nil
	},
}

var configSetSignatureCmd = &cobra.Command{
	Use:   "set-login-signature <on|off>",
	Short: "Require a signed login message on connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "on", "true":
			cfg.RequireSignature = true
		case "off", "false":
			cfg.RequireSignature = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Login signature %s", args[0])))
		return nil
	},
}

var configSyncCmd = &cobra.Command{
	Use:   "sync [path-or-url]",
	Short: "Set contract addresses from a deployments manifest",
	Long: `Read a deployments.json manifest and set the token and controller
addresses deployed on the current network. Published ABIs listed in the
manifest are checked against the methods koneko calls. Without an argument
the last synced source is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src string
		if len(args) == 1 {
			src = args[0]
		}

		spin := ui.NewSpinner("Syncing deployments...")
		spin.Start()
		res, err := deploy.New(cfg).Run(cmd.Context(), src)
		spin.Stop()
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"Network", ui.Network(res.Network)},
			{"Token", ui.Addr(res.Token.Hex())},
			{"Controller", ui.Addr(res.Controller.Hex())},
		}
		for i, id := range res.Checked {
			key := ""
			if i == 0 {
				key = "ABI checked"
			}
			pairs = append(pairs, [2]string{key, id})
		}
		fmt.Println(ui.KeyValueBlock("Deployments", pairs))
		fmt.Println(ui.Success("Contracts set."))
		return nil
	},
}

func init() {
	configCmd.AddCommand(
		configSyncCmd,
		configListCmd,
		configSetContractsCmd,
		configSetCatalogCmd,
		configSetRPCCmd,
		configSetAlgorithmCmd,
		configSetSignatureCmd,
	)
}
