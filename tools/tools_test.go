package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/querysvc"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/vault"
)

const testVaultKey = "01234567890123456789012345678901"

// newTestApp wires a real in-memory database and a ClientFactory that
// points spotifyapi.Client at an httptest server instead of the live API,
// so spotify.* handlers can be exercised end to end.
func newTestApp(t *testing.T, spotifyServer *httptest.Server) (*App, *db.DB, int64, *Registry) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	v, err := vault.New(testVaultKey)
	if err != nil {
		t.Fatalf("building vault: %v", err)
	}
	user, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	sealed, err := v.Seal([]byte("refresh-token-plaintext"))
	if err != nil {
		t.Fatalf("sealing refresh token: %v", err)
	}
	cred := &models.RefreshCredential{
		UserID:             user.ID,
		SealedRefreshToken: sealed,
		AccessToken:        "access-token",
		AccessTokenExpiry:  time.Now().UTC().Add(time.Hour),
		Scope:              "user-read-recently-played",
	}
	if err := database.UpsertRefreshCredential(cred); err != nil {
		t.Fatalf("storing refresh credential: %v", err)
	}

	factory := func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error) {
		cred, err := database.GetRefreshCredential(userID)
		if err != nil {
			return nil, err
		}
		refresh := func(ctx context.Context) (string, time.Time, error) {
			return cred.AccessToken, time.Now().UTC().Add(time.Hour), nil
		}
		client := spotifyapi.New(cred.AccessToken, cred.AccessTokenExpiry, refresh, 2)
		if spotifyServer != nil {
			client = client.WithBaseURLForTest(spotifyServer.URL)
		}
		return client, nil
	}

	app := &App{
		DB:          database,
		Vault:       v,
		Clients:     factory,
		Query:       querysvc.New(database),
		Checkpoints: checkpointstore.New(database),
		Ledger:      jobledger.New(database),
	}
	_ = musicrepo.New(database)

	reg := NewRegistry()
	RegisterAll(reg, app)
	return app, database, user.ID, reg
}

func TestDispatchUnregisteredToolNameFails(t *testing.T) {
	app, _, _, reg := newTestApp(t, nil)

	env := Dispatch(context.Background(), reg, app, "nonexistent.tool", map[string]any{})
	if env.Success {
		t.Fatalf("expected failure envelope for unregistered tool, got %+v", env)
	}
	if env.Result != nil {
		t.Fatalf("expected nil result on failure, got %v", env.Result)
	}
	if env.Error != "NotFound: unknown tool 'nonexistent.tool'" {
		t.Fatalf("unexpected error message: %q", env.Error)
	}
}

func TestDispatchMissingRequiredArgFails(t *testing.T) {
	app, _, _, reg := newTestApp(t, nil)

	env := Dispatch(context.Background(), reg, app, "history.top_artists", map[string]any{"user_id": int64(1)})
	if env.Success {
		t.Fatalf("expected failure for missing required args, got %+v", env)
	}
	if env.Error == "" {
		t.Fatalf("expected a non-empty error detail")
	}
}

func TestDispatchHistoryTopArtistsSucceeds(t *testing.T) {
	app, database, userID, reg := newTestApp(t, nil)
	repo := musicrepo.New(database)

	played := time.Now().UTC().Add(-time.Hour)
	_, err := repo.ProcessBatch(userID, []musicrepo.PlayRecord{{
		PlayedAt:   played,
		TrackName:  "Bohemian Rhapsody",
		Artists:    []musicrepo.ArtistInput{{Name: "Queen"}},
		DurationMs: 200000,
		MsPlayed:   200000,
		Source:     models.SourceAPI,
	}})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	env := Dispatch(context.Background(), reg, app, "history.top_artists", map[string]any{
		"user_id": float64(userID), "days": float64(30), "limit": float64(10),
	})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	rows, ok := env.Result.([]querysvc.ArtistCount)
	if !ok || len(rows) != 1 || rows[0].Name != "Queen" {
		t.Fatalf("unexpected result: %+v", env.Result)
	}
}

// TestDispatchSpotifySearchPassesThroughProviderError reproduces the
// tool-error-passthrough scenario: a 403 response whose body carries
// error.message must surface through the envelope with that exact message,
// not a generic failure string.
func TestDispatchSpotifySearchPassesThroughProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"status":403,"message":"Insufficient scope"}}`))
	}))
	defer server.Close()

	app, _, userID, reg := newTestApp(t, server)

	env := Dispatch(context.Background(), reg, app, "spotify.search", map[string]any{
		"user_id": float64(userID), "q": "daft punk", "type": "track", "limit": float64(10),
	})
	if env.Success {
		t.Fatalf("expected failure envelope for a 403 provider response, got %+v", env)
	}
	if env.Result != nil {
		t.Fatalf("expected nil result on failure, got %v", env.Result)
	}
	if env.Error != "AuthExpired: Insufficient scope" {
		t.Fatalf("expected provider message preserved verbatim, got %q", env.Error)
	}
}

func TestDispatchSpotifySearchRejectsBadType(t *testing.T) {
	app, _, userID, reg := newTestApp(t, nil)

	env := Dispatch(context.Background(), reg, app, "spotify.search", map[string]any{
		"user_id": float64(userID), "q": "x", "type": "not-a-real-type", "limit": float64(10),
	})
	if env.Success {
		t.Fatalf("expected failure for an invalid type argument, got %+v", env)
	}
}

func TestCatalogListsEveryRegisteredTool(t *testing.T) {
	_, _, _, reg := newTestApp(t, nil)
	catalog := reg.Catalog()
	if len(catalog) != 11 {
		t.Fatalf("expected 11 cataloged tools, got %d", len(catalog))
	}
}

func TestOpsSyncStatusReturnsCheckpoint(t *testing.T) {
	app, database, userID, reg := newTestApp(t, nil)
	if _, err := database.GetOrCreateCheckpoint(userID); err != nil {
		t.Fatalf("GetOrCreateCheckpoint: %v", err)
	}

	env := Dispatch(context.Background(), reg, app, "ops.sync_status", map[string]any{"user_id": float64(userID)})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	cp, ok := env.Result.(*models.SyncCheckpoint)
	if !ok || cp.UserID != userID {
		t.Fatalf("unexpected result: %+v", env.Result)
	}
}
