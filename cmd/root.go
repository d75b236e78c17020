package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/Mohsinsiddi/koneko/internal/session"
	"github.com/Mohsinsiddi/koneko/internal/ui"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/koneko/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir     string
	cfg        *config.Config
	verbose    bool
	assumeYes  bool
	walletFlag string
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "koneko",
	Short: "Mint NFTs from your terminal",
	Long: `koneko connects a local wallet to an ERC-721 collection and its mint
controller: browse the catalog, mint one or more tokens and review what you own.

Wallet keys live in the OS keychain. Every connection, signature and
transaction is shown for approval before the wallet acts on it.`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		return nil
	},
}

// Execute runs the root command. Errors are printed in their user-facing
// form; Ctrl-C cancels whatever call is in flight.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(session.UserMessage(err)))
		if verbose {
			fmt.Fprintln(os.Stderr, ui.Meta(err.Error()))
		}
		os.Exit(1)
	}
}

func init() {
	if envDir := os.Getenv(config.EnvConfigDir); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.koneko)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve every prompt without asking")
	rootCmd.PersistentFlags().StringVarP(&walletFlag, "wallet", "w", "", "wallet to use (default: the configured default)")

	rootCmd.AddCommand(
		walletCmd,
		connectCmd,
		statusCmd,
		mintCmd,
		profileCmd,
		catalogCmd,
		networkCmd,
		ledgerCmd,
		configCmd,
	)
}
