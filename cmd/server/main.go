// Command server exposes the tool-dispatch HTTP surface: a publicly
// enumerable catalog endpoint and a bearer-gated invocation endpoint. It
// shares the same database as cmd/collector but runs no background cycles
// of its own.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/config"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/oauth"
	"github.com/playback-history/collector/querysvc"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/tools"
	"github.com/playback-history/collector/vault"
)

type server struct {
	registry     *tools.Registry
	app          *tools.App
	sharedSecret string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("server: loading config: %v", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("server: opening database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		log.Fatalf("server: initializing schema: %v", err)
	}

	v, err := vault.New(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatalf("server: building token vault: %v", err)
	}

	oauthService := oauth.New(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI, nil)
	refresher := spotifyapi.NewOAuthRefresher(oauthService)
	clients := func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error) {
		return spotifyapi.ForUser(database, v, refresher, userID, cfg.SpotifyConcurrency)
	}

	app := &tools.App{
		DB:          database,
		Vault:       v,
		Clients:     clients,
		Query:       querysvc.New(database),
		Checkpoints: checkpointstore.New(database),
		Ledger:      jobledger.New(database),
	}

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, app)

	srv := &server{registry: registry, app: app, sharedSecret: cfg.MCPSharedSecret}

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("server: tool-dispatch surface listening on http://%s", addr)
	log.Fatal(httpServer.ListenAndServe())
}
