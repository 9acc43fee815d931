package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/revault/cosignerd/config"
	"github.com/revault/cosignerd/database"
	"github.com/revault/cosignerd/keys"
	"github.com/revault/cosignerd/logconfig"
	"github.com/revault/cosignerd/server"
)

const envConfigFilePath = "COSIGNERD_CONFIG"

func main() {
	viper.AutomaticEnv()

	configFile := viper.GetString(envConfigFilePath)
	if configFile == "" {
		fmt.Fprintf(os.Stderr, "%s must point to the configuration file\n",
			envConfigFilePath)
		os.Exit(1)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}
	logconfig.ConfigProductionLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatalf("Error creating data directory: %s", err)
	}

	channelKey, err := keys.ReadOrCreateChannelKey(cfg.ChannelSecretFile())
	if err != nil {
		log.Fatalf("Error reading channel key: %s", err)
	}
	bitcoinKey, err := keys.ReadBitcoinKey(cfg.BitcoinSecretFile())
	if err != nil {
		log.Fatalf("Error reading bitcoin key: %s", err)
	}

	db, err := database.NewSignedOutpointDB(cfg.DBFile(), cfg.NetworkName)
	if err != nil {
		log.Fatalf("Error setting up database: %s", err)
	}

	log.Infof("Started cosignerd with channel pubkey '%x' and bitcoin pubkey '%x'",
		channelKey.PubKey().SerializeCompressed(),
		bitcoinKey.PubKey().SerializeCompressed())

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Listen:     cfg.Listen,
		ChannelKey: channelKey,
		BitcoinKey: bitcoinKey,
		Managers:   cfg.ManagerPubkeys(),
		Store:      db,
	})
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Error running server: %s", err)
	}
}
