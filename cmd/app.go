package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/Mohsinsiddi/koneko/internal/catalog"
	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/Mohsinsiddi/koneko/internal/contract"
	"github.com/Mohsinsiddi/koneko/internal/ledger"
	"github.com/Mohsinsiddi/koneko/internal/logging"
	"github.com/Mohsinsiddi/koneko/internal/provider"
	"github.com/Mohsinsiddi/koneko/internal/rpc"
	"github.com/Mohsinsiddi/koneko/internal/session"
	"github.com/Mohsinsiddi/koneko/internal/ui"
	"github.com/Mohsinsiddi/koneko/internal/wallet"
)

var errContractsNotConfigured = errors.New("token and controller addresses are not configured, run `koneko config set-contracts <token> <controller>`")

// app is everything one invocation needs, built from config. Close releases
// it in reverse order.
type app struct {
	log      zerolog.Logger
	network  *chain.Network
	rpcURL   string
	prompter *ui.Prompter
	provider *provider.Injected
	wallet   *session.WalletSession
	contract *session.ContractSession
	ledger   *ledger.Ledger
	catalog  *catalog.Catalog
}

func newLogger() zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true})
}

// currentNetwork resolves the configured network. Config RPCs override the
// registry's; an unregistered name works when RPCs and a chain ID are set.
func currentNetwork() (*chain.Network, error) {
	n, err := chain.NewRegistry().GetByName(cfg.Network)
	if err != nil {
		if len(cfg.RPCs) == 0 {
			return nil, fmt.Errorf("%w, add RPC URLs with `koneko config set-rpc`", err)
		}
		n = &chain.Network{Name: cfg.Network, DisplayName: cfg.Network, ChainID: cfg.ChainID, NativeCurrency: "ETH"}
	}
	out := *n
	if len(cfg.RPCs) > 0 {
		out.RPCs = cfg.RPCs
	}
	return &out, nil
}

func newWalletManager() (*wallet.Manager, error) {
	ks, err := wallet.OpenKeystore(cfg.Dir())
	if err != nil {
		return nil, err
	}
	return wallet.NewManager(wallet.WithStore(wallet.NewConfigStore(cfg)), wallet.WithKeyStore(ks)), nil
}

// signers returns a signer per stored wallet with the selected one first, so
// the injected wallet offers it as the active account.
func signers(mgr *wallet.Manager) ([]*wallet.Signer, error) {
	all, err := mgr.List()
	if err != nil || len(all) == 0 {
		return nil, err
	}

	first := walletFlag
	if first == "" {
		if def, err := mgr.Default(); err == nil {
			first = def.Name
		}
	}
	if first != "" {
		if _, err := mgr.Get(first); err != nil {
			return nil, fmt.Errorf("wallet %q: %w", first, err)
		}
	}

	names := make([]string, 0, len(all))
	for _, w := range all {
		if w.Name == first {
			names = append([]string{w.Name}, names...)
			continue
		}
		names = append(names, w.Name)
	}

	out := make([]*wallet.Signer, len(names))
	for i, name := range names {
		if out[i], err = mgr.Signer(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// openApp selects an RPC endpoint, injects the local wallet and builds the
// sessions. A missing wallet is not an error here: Connect reports it.
func openApp(ctx context.Context) (*app, error) {
	a := &app{log: newLogger(), prompter: ui.StdPrompter()}
	a.prompter.AssumeYes = assumeYes

	var err error
	if a.network, err = currentNetwork(); err != nil {
		return nil, err
	}

	selectCtx, cancel := context.WithTimeout(ctx, config.RPCSelectTimeout)
	a.rpcURL, err = rpc.Select(selectCtx, a.network.RPCs, rpc.Algorithm(cfg.RPCAlgorithm), a.network.ChainID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("selecting RPC for %s: %w", a.network.Name, err)
	}
	a.log.Debug().Str("network", a.network.Name).Str("rpc", a.rpcURL).Msg("rpc selected")

	mgr, err := newWalletManager()
	if err != nil {
		return nil, err
	}
	ss, err := signers(mgr)
	if err != nil {
		return nil, err
	}

	// p stays a nil interface when there is no wallet to inject.
	var p provider.Provider
	inj, err := provider.NewInjected(chain.NewClient(a.rpcURL), ss, a.prompter, provider.WithProviderLogger(a.log))
	switch {
	case err == nil:
		a.provider = inj
		p = inj
	case !errors.Is(err, provider.ErrNoProvider):
		return nil, err
	}

	if a.ledger, err = ledger.Open(cfg.LedgerPath()); err != nil {
		a.Close()
		return nil, err
	}

	a.catalog, err = catalog.Load(ctx, cfg.CatalogSource)
	if err != nil {
		a.log.Warn().Err(err).Str("source", cfg.CatalogSource).Msg("catalog unavailable, using placeholders")
	}

	a.wallet = session.NewWalletSession(p, a.sessionOptions()...)
	return a, nil
}

func (a *app) sessionOptions() []session.Option {
	opts := []session.Option{
		session.WithLogger(a.log),
		session.WithLoginSignature(cfg.RequireSignature),
		session.WithTimeouts(cfg.CallTimeoutDuration(), cfg.PromptTimeoutDuration()),
		session.WithRecorder(a.ledger),
		session.WithGatewayOptions(contract.WithTimeouts(
			cfg.CallTimeoutDuration(), cfg.PromptTimeoutDuration(), cfg.ConfirmTimeoutDuration(),
		)),
	}
	if a.catalog != nil {
		opts = append(opts, session.WithCatalog(a.catalog))
	}
	return opts
}

// connect starts the wallet session and asks the wallet for an account.
func (a *app) connect(ctx context.Context) error {
	if err := a.wallet.Start(ctx); err != nil {
		return err
	}
	if st := a.wallet.State(); st.Locked {
		a.log.Debug().Msg("wallet locked, requesting access")
	}
	return a.wallet.Connect(ctx)
}

// contracts connects and loads the contract session.
func (a *app) contracts(ctx context.Context) (*session.ContractSession, error) {
	if !common.IsHexAddress(cfg.TokenAddress) || !common.IsHexAddress(cfg.ControllerAddress) {
		return nil, errContractsNotConfigured
	}
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	a.contract = session.NewContractSession(a.wallet,
		common.HexToAddress(cfg.TokenAddress), common.HexToAddress(cfg.ControllerAddress),
		a.sessionOptions()...)

	spin := ui.NewSpinner("Loading contracts…")
	spin.Start()
	err := a.contract.Initialize(ctx)
	spin.Stop()
	if err != nil {
		return nil, err
	}
	return a.contract, nil
}

// Close tears everything down. Safe on a partly built app.
func (a *app) Close() {
	if a.contract != nil {
		a.contract.Close()
	}
	if a.wallet != nil {
		a.wallet.Close()
	}
	if a.provider != nil {
		a.provider.Close()
	}
	if err := a.ledger.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing ledger")
	}
}

// networkName labels a wallet-reported chain ID.
func networkName(chainID string) string {
	return chain.NewRegistry().NetworkName(chainID)
}

func explorerLink(n *chain.Network, kind, ref string) string {
	if n == nil {
		return ""
	}
	return n.ExplorerURL(kind, ref)
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
