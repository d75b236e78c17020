package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mohsinsiddi/koneko/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "ganache", cfg.Network)
	assert.Equal(t, int64(5777), cfg.ChainID)
	assert.Equal(t, "fastest", cfg.RPCAlgorithm)
	assert.True(t, cfg.RequireSignature)
	assert.Equal(t, config.DefaultMintLimit, cfg.MintLimit)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.Network = "sepolia"
	cfg.ChainID = 11155111
	cfg.ControllerAddress = "0x00000000000000000000000000000000000000c0"
	cfg.RequireSignature = false
	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sepolia", reloaded.Network)
	assert.Equal(t, int64(11155111), reloaded.ChainID)
	assert.Equal(t, cfg.ControllerAddress, reloaded.ControllerAddress)
	assert.False(t, reloaded.RequireSignature, "explicit false survives defaults")
}

func TestLoadFromEnvDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fromenv")
	t.Setenv(config.EnvConfigDir, dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())

	_, err = os.Stat(dir)
	assert.NoError(t, err, "config dir is created")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{oops"), 0o600))

	_, err := config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestTimeoutsFallBackToConstants(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, config.ProviderCallTimeout, cfg.CallTimeoutDuration())
	assert.Equal(t, config.PromptTimeout, cfg.PromptTimeoutDuration())
	assert.Equal(t, config.TxConfirmTimeout, cfg.ConfirmTimeoutDuration())

	cfg.CallTimeout = 3
	assert.Equal(t, 3*time.Second, cfg.CallTimeoutDuration())
}

func TestWalletsRoundTrip(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	wf, err := cfg.LoadWallets()
	require.NoError(t, err)
	assert.Empty(t, wf.Wallets, "missing wallets.json loads empty")

	wf.Wallets = append(wf.Wallets, config.Wallet{Name: "main", Address: "0xabc", KeyRef: "koneko:main"})
	require.NoError(t, cfg.SaveWallets(wf))

	again, err := cfg.LoadWallets()
	require.NoError(t, err)
	require.Len(t, again.Wallets, 1)
	assert.Equal(t, "main", again.Wallets[0].Name)
}

func TestLedgerPathInConfigDir(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerPath())
}
