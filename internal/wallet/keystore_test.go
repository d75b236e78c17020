package wallet

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileKeystore returns a file-backed Keystore isolated to a temp directory.
func fileKeystore(t *testing.T) *Keystore {
	t.Helper()
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      "koneko-test",
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.FixedStringPrompt("testpass"),
	})
	require.NoError(t, err)
	return &Keystore{ring: ring}
}

func TestKeystoreRoundTrip(t *testing.T) {
	for name, ks := range map[string]KeyStore{
		"file":   fileKeystore(t),
		"memory": NewMemKeystore(),
	} {
		t.Run(name, func(t *testing.T) {
			ref, err := ks.Store("alice", testPrivKeyHex)
			require.NoError(t, err)
			assert.Equal(t, "koneko.alice", ref)

			got, err := ks.Retrieve(ref)
			require.NoError(t, err)
			assert.Equal(t, testPrivKeyHex, got)

			require.NoError(t, ks.Delete(ref))
			_, err = ks.Retrieve(ref)
			assert.ErrorIs(t, err, ErrKeyNotFound)

			assert.NoError(t, ks.Delete(ref), "deleting twice is fine")
		})
	}
}

func TestOpenKeystoreFileFallback(t *testing.T) {
	t.Setenv(EnvKeyringPassword, "pw")
	ks, err := OpenKeystore(t.TempDir())
	if err != nil {
		t.Skipf("no keyring backend available: %v", err)
	}
	ref, err := ks.Store("bob", testPrivKeyHex)
	require.NoError(t, err)
	t.Cleanup(func() { ks.Delete(ref) }) //nolint:errcheck
}
