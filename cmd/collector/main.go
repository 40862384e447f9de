// Command collector is the background worker process: it runs the
// run loop (claim imports, initial-sync or poll, enrich, sleep) until
// signaled to shut down. It owns no HTTP surface — that's cmd/server's job.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/config"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/enrich"
	"github.com/playback-history/collector/importer"
	"github.com/playback-history/collector/initialsync"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/oauth"
	"github.com/playback-history/collector/poller"
	"github.com/playback-history/collector/runloop"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("collector: loading config: %v", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("collector: opening database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		log.Fatalf("collector: initializing schema: %v", err)
	}

	v, err := vault.New(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatalf("collector: building token vault: %v", err)
	}

	oauthService := oauth.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI, nil)
	refresher := spotifyapi.NewOAuthRefresher(oauthService)

	clients := func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error) {
		return spotifyapi.ForUser(database, v, refresher, userID, cfg.SpotifyConcurrency)
	}

	repo := musicrepo.New(database)
	checkpoints := checkpointstore.New(database)
	ledger := jobledger.New(database)

	imports := importer.New(repo, ledger, importer.Config{
		MaxZipSizeMB: cfg.ImportMaxZipSizeMB,
		MaxRecords:   cfg.ImportMaxRecords,
		BatchSize:    cfg.ImportBatchSize,
	})
	initial := initialsync.New(repo, checkpoints, ledger, initialsync.Config{
		MaxRequests:     cfg.InitialSyncMaxReqs,
		MaxDays:         cfg.InitialSyncMaxDays,
		RateLimitBudget: cfg.RateLimitBudget,
	}, cfg.InitialSyncConcurrency)
	polls := poller.New(repo, checkpoints, ledger)
	enricher := enrich.New(database, ledger, enrich.Config{
		BatchSize: cfg.EnrichBatchSize,
	})

	loop := runloop.New(database, v, clients, imports, initial, polls, enricher, runloop.Config{
		Interval:               cfg.CollectorInterval,
		InitialSyncEnabled:     cfg.InitialSyncEnabled,
		InitialSyncMaxDays:     cfg.InitialSyncMaxDays,
		InitialSyncMaxRequests: cfg.InitialSyncMaxReqs,
		InitialSyncConcurrency: cfg.InitialSyncConcurrency,
		RateLimitBudget:        cfg.RateLimitBudget,
		EnrichEnabled:          cfg.EnrichEnabled,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("collector: starting run loop")
	loop.Run(ctx)
	log.Println("collector: shut down")
}
