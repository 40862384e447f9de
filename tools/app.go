// Package tools implements the tool-dispatch surface: a registry mapping
// dotted tool names to handlers, a uniform envelope carrying errors
// in-band, and the handlers themselves wiring querysvc, spotifyapi,
// checkpointstore, and jobledger into the catalog spec.md §6 names.
package tools

import (
	"context"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/querysvc"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/vault"
)

// ClientFactory builds a live Spotify client for a user — the same shape
// runloop.ClientFactory uses, duplicated here rather than imported so this
// package doesn't need to depend on runloop for a one-line function type.
type ClientFactory func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error)

// App is the explicit application container every handler closes over,
// built once at startup and passed to RegisterAll — no package-level
// globals, per the design note against implicit module state.
type App struct {
	DB          *db.DB
	Vault       *vault.Vault
	Clients     ClientFactory
	Query       *querysvc.Service
	Checkpoints *checkpointstore.Store
	Ledger      *jobledger.Ledger
}

// ClientFor builds a Spotify client for userID using the app's configured
// factory, the one call every spotify.* handler needs before it can do
// anything.
func (a *App) ClientFor(_ context.Context, userID int64) (*spotifyapi.Client, error) {
	return a.Clients(a.DB, a.Vault, userID)
}
