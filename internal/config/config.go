package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultNetwork   = "ganache"
	defaultChainID   = 5777
	defaultAlgorithm = "fastest"
	defaultCatalog   = "metadata.json"
	defaultLogLevel  = "info"

	configFile  = "config.json"
	walletsFile = "wallets.json"
	ledgerFile  = "ledger.db"

	// EnvConfigDir overrides the default config directory.
	EnvConfigDir = "KONEKO_CONFIG_DIR"
)

// Load reads config from dir (or creates defaults). dir defaults to
// $KONEKO_CONFIG_DIR, then ~/.koneko.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = os.Getenv(EnvConfigDir)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".koneko")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.MintLimit <= 0 {
		cfg.MintLimit = DefaultMintLimit
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// LedgerPath is the sqlite file holding locally recorded mints.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.configDir, ledgerFile)
}

// CallTimeoutDuration returns the RPC call timeout.
func (c *Config) CallTimeoutDuration() time.Duration {
	return seconds(c.CallTimeout, ProviderCallTimeout)
}

// PromptTimeoutDuration returns how long to wait for a wallet approval.
func (c *Config) PromptTimeoutDuration() time.Duration {
	return seconds(c.PromptTimeout, PromptTimeout)
}

// ConfirmTimeoutDuration returns how long to wait for a mint receipt.
func (c *Config) ConfirmTimeoutDuration() time.Duration {
	return seconds(c.ConfirmTimeout, TxConfirmTimeout)
}

// LoadWallets reads wallets.json.
func (c *Config) LoadWallets() (*WalletsFile, error) {
	return loadJSON[WalletsFile](filepath.Join(c.configDir, walletsFile))
}

// SaveWallets writes wallets.json.
func (c *Config) SaveWallets(wf *WalletsFile) error {
	return saveJSON(filepath.Join(c.configDir, walletsFile), wf)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		Network:          defaultNetwork,
		ChainID:          defaultChainID,
		RPCAlgorithm:     defaultAlgorithm,
		CatalogSource:    defaultCatalog,
		RequireSignature: true,
		MintLimit:        DefaultMintLimit,
		LogLevel:         defaultLogLevel,
		configDir:        dir,
	}
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
