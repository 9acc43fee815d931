package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testPubkeyHex(t *testing.T) string {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

func TestLoadValidConfig(t *testing.T) {
	keyA := testPubkeyHex(t)
	keyB := testPubkeyHex(t)

	path := writeConfig(t, `
data_dir = "/tmp/cosignerd-test"
network = "testnet"
listen = "127.0.0.1:20000"
log_level = "debug"

[[managers]]
channel_pubkey = "`+keyA+`"

[[managers]]
channel_pubkey = "`+keyB+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/cosignerd-test", cfg.DataDir)
	require.Equal(t, &chaincfg.TestNet3Params, cfg.Network)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, "127.0.0.1:20000", cfg.Listen)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Managers, 2)
	require.Len(t, cfg.ManagerPubkeys(), 2)
	require.Equal(t, keyA,
		hex.EncodeToString(cfg.Managers[0].ChannelPub.SerializeCompressed()))

	require.Equal(t, filepath.Join(cfg.DataDir, "cosignerd.sqlite3"), cfg.DBFile())
	require.Equal(t, filepath.Join(cfg.DataDir, "channel_secret"),
		cfg.ChannelSecretFile())
	require.Equal(t, filepath.Join(cfg.DataDir, "bitcoin_secret"),
		cfg.BitcoinSecretFile())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/tmp/cosignerd-test"

[[managers]]
channel_pubkey = "`+testPubkeyHex(t)+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8383", cfg.Listen)
	require.Equal(t, &chaincfg.RegressionNetParams, cfg.Network)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	// No manager configured.
	_, err := Load(writeConfig(t, `
data_dir = "/tmp/cosignerd-test"
`))
	require.Error(t, err)

	// Unknown network.
	_, err = Load(writeConfig(t, `
network = "signet4"

[[managers]]
channel_pubkey = "`+testPubkeyHex(t)+`"
`))
	require.Error(t, err)

	// Undecodable manager key.
	_, err = Load(writeConfig(t, `
[[managers]]
channel_pubkey = "not-hex"
`))
	require.Error(t, err)

	// A valid point is still required.
	_, err = Load(writeConfig(t, `
[[managers]]
channel_pubkey = "`+hex.EncodeToString(make([]byte, 33))+`"
`))
	require.Error(t, err)

	// Missing file.
	_, err = Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	require.Error(t, err)
}
