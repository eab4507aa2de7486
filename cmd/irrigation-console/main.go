package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/karpada/irrigation-console/db"
	"github.com/karpada/irrigation-console/internal/api"
	"github.com/karpada/irrigation-console/internal/config"
	"github.com/karpada/irrigation-console/internal/document"
	"github.com/karpada/irrigation-console/internal/gateway"
	"github.com/karpada/irrigation-console/internal/logging"
	"github.com/karpada/irrigation-console/internal/metrics"
	"github.com/karpada/irrigation-console/internal/notifications"
	"github.com/karpada/irrigation-console/internal/poller"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("device", cfg.DeviceURL).
		Str("listen", cfg.ListenAddr).
		Msg("Starting irrigation console")

	metrics.Init(cfg.StatsdAddr, cfg.StatsdNamespace, cfg.StatsdTags)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid timezone configuration")
	}

	device, err := gateway.New(cfg.DeviceURL, cfg.RequestTimeout())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid device URL")
	}

	if dir := filepath.Dir(cfg.ArchivePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create archive directory")
		}
	}
	archive, err := db.Open(cfg.ArchivePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ArchivePath).Msg("Failed to open archive database")
	}
	defer archive.Close()

	store := document.NewStore(loc)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	doc, err := device.Fetch(ctx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load configuration from device, starting with an empty document")
	} else {
		store.Replace(doc)
		log.Info().
			Int("zones", len(doc.Zones)).
			Int("schedules", len(doc.Schedules)).
			Msg("Loaded configuration from device")
	}

	notifier := notifications.New(cfg.NtfyTopic)

	var backup *document.FileStore
	if cfg.BackupFile != "" {
		backup = document.NewFileStore(cfg.BackupFile)
	}

	p := poller.New(device, archive, notifier, cfg.PollInterval())
	go p.Run(context.Background())

	server := api.NewServer(store, device, archive, p, backup)
	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("Editor API server exited")
	}
}
