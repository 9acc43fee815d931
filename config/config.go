package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const (
	defaultListen   = "127.0.0.1:8383"
	defaultLogLevel = "info"

	// File names inside the data directory.
	dbFileName            = "cosignerd.sqlite3"
	channelSecretFileName = "channel_secret"
	bitcoinSecretFileName = "bitcoin_secret"
)

// ManagerConfig identifies one manager allowed to request signatures: the
// static public key it authenticates with on the secure channel.
type ManagerConfig struct {
	ChannelPub *btcec.PublicKey
}

// Config holds the static information the daemon needs to operate. It is
// read once at startup and never reloaded.
type Config struct {
	// DataDir is where the key files and the signed-outpoint database live.
	DataDir string

	// Network is the Bitcoin network the daemon signs for.
	Network *chaincfg.Params

	// NetworkName is the configured name ("mainnet", "testnet", "regtest"),
	// stored in the database metadata to prevent cross-network mixups.
	NetworkName string

	// Listen is the TCP address the secure channel listener binds to.
	Listen string

	// Managers is the allow-list of peers.
	Managers []ManagerConfig

	LogLevel string
}

type rawManager struct {
	ChannelPubkey string `mapstructure:"channel_pubkey"`
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	v.SetDefault("listen", defaultListen)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("network", "regtest")

	cfg := &Config{
		DataDir:  v.GetString("data_dir"),
		Listen:   v.GetString("listen"),
		LogLevel: v.GetString("log_level"),
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("no data_dir set and no home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".cosignerd")
	}

	cfg.NetworkName = v.GetString("network")
	switch cfg.NetworkName {
	case "mainnet":
		cfg.Network = &chaincfg.MainNetParams
	case "testnet":
		cfg.Network = &chaincfg.TestNet3Params
	case "regtest":
		cfg.Network = &chaincfg.RegressionNetParams
	default:
		return nil, fmt.Errorf("unknown network '%s'", cfg.NetworkName)
	}

	var rawManagers []rawManager
	if err := v.UnmarshalKey("managers", &rawManagers); err != nil {
		return nil, fmt.Errorf("parsing managers: %w", err)
	}
	if len(rawManagers) == 0 {
		return nil, fmt.Errorf("at least one manager must be configured")
	}
	for i, m := range rawManagers {
		keyBytes, err := hex.DecodeString(m.ChannelPubkey)
		if err != nil {
			return nil, fmt.Errorf("manager %d: decoding channel_pubkey: %w", i, err)
		}
		pub, err := btcec.ParsePubKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("manager %d: invalid channel_pubkey: %w", i, err)
		}
		cfg.Managers = append(cfg.Managers, ManagerConfig{ChannelPub: pub})
	}

	return cfg, nil
}

// ManagerPubkeys returns the allow-list as raw public keys.
func (c *Config) ManagerPubkeys() []*btcec.PublicKey {
	keys := make([]*btcec.PublicKey, 0, len(c.Managers))
	for _, m := range c.Managers {
		keys = append(keys, m.ChannelPub)
	}
	return keys
}

// DBFile is the path of the signed-outpoint database.
func (c *Config) DBFile() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// ChannelSecretFile is the path of the secure-channel static secret key.
func (c *Config) ChannelSecretFile() string {
	return filepath.Join(c.DataDir, channelSecretFileName)
}

// BitcoinSecretFile is the path of the Bitcoin signing secret key.
func (c *Config) BitcoinSecretFile() string {
	return filepath.Join(c.DataDir, bitcoinSecretFileName)
}
