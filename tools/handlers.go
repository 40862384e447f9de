package tools

import (
	"context"

	"github.com/playback-history/collector/errkind"
	"github.com/playback-history/collector/spotifyapi"
)

func argUserID(args map[string]any) int64 {
	return args["user_id"].(int64)
}

func argInt(args map[string]any, name string, fallback int) int {
	v, ok := args[name]
	if !ok || v == nil {
		return fallback
	}
	return int(v.(int64))
}

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// RegisterAll wires every cataloged tool's handler against app, the way
// the teacher's main.go makes one explicit registration call per service
// rather than relying on package-init self-registration.
func RegisterAll(reg *Registry, _ *App) {
	reg.Register(Def{
		Name: "history.taste_summary", Category: "history",
		Description: "Composed listening summary: totals, top artists/tracks, heatmap, coverage.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
		},
		Handler: handleTasteSummary,
	})
	reg.Register(Def{
		Name: "history.top_artists", Category: "history",
		Description: "Top artists by play count over a lookback window.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max rows to return"},
		},
		Handler: handleTopArtists,
	})
	reg.Register(Def{
		Name: "history.top_tracks", Category: "history",
		Description: "Top tracks by play count over a lookback window.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max rows to return"},
		},
		Handler: handleTopTracks,
	})
	reg.Register(Def{
		Name: "history.listening_heatmap", Category: "history",
		Description: "7x24 weekday/hour listening grid over a lookback window.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
		},
		Handler: handleHeatmap,
	})
	reg.Register(Def{
		Name: "history.repeat_rate", Category: "history",
		Description: "Replay statistics and the most-repeated tracks over a lookback window.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
			{Name: "limit", Type: TypeInt, Required: false, Default: int64(10), Description: "max repeated tracks to return"},
		},
		Handler: handleRepeatRate,
	})
	reg.Register(Def{
		Name: "history.coverage", Category: "history",
		Description: "What slice of history is on file and where it came from.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "days", Type: TypeInt, Required: true, Description: "lookback window in days"},
		},
		Handler: handleCoverage,
	})
	reg.Register(Def{
		Name: "spotify.get_top", Category: "spotify",
		Description: "Live top-artists/top-tracks passthrough to the Spotify Web API.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "entity", Type: TypeString, Required: true, Description: "artists|tracks"},
			{Name: "time_range", Type: TypeString, Required: true, Description: "short_term|medium_term|long_term"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max items to return"},
		},
		Handler: handleSpotifyGetTop,
	})
	reg.Register(Def{
		Name: "spotify.search", Category: "spotify",
		Description: "Live catalog search passthrough to the Spotify Web API.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "q", Type: TypeString, Required: true, Description: "search query"},
			{Name: "type", Type: TypeString, Required: true, Description: "track|artist|album"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max results to return"},
		},
		Handler: handleSpotifySearch,
	})
	reg.Register(Def{
		Name: "ops.sync_status", Category: "ops",
		Description: "The user's current sync checkpoint snapshot.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
		},
		Handler: handleSyncStatus,
	})
	reg.Register(Def{
		Name: "ops.latest_job_runs", Category: "ops",
		Description: "Most recent worker job-run ledger entries for the user.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max rows to return"},
		},
		Handler: handleLatestJobRuns,
	})
	reg.Register(Def{
		Name: "ops.latest_import_jobs", Category: "ops",
		Description: "Most recent ZIP import job entries for the user.",
		Params: []Param{
			{Name: "user_id", Type: TypeInt, Required: true, Description: "user id"},
			{Name: "limit", Type: TypeInt, Required: true, Description: "max rows to return"},
		},
		Handler: handleLatestImportJobs,
	})
}

func handleTasteSummary(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.TasteSummary(argUserID(args), argInt(args, "days", 0))
}

func handleTopArtists(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.TopArtists(argUserID(args), argInt(args, "days", 0), argInt(args, "limit", 10))
}

func handleTopTracks(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.TopTracks(argUserID(args), argInt(args, "days", 0), argInt(args, "limit", 10))
}

func handleHeatmap(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.Heatmap(argUserID(args), argInt(args, "days", 0))
}

func handleRepeatRate(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.RepeatRate(argUserID(args), argInt(args, "days", 0), argInt(args, "limit", 10))
}

func handleCoverage(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Query.Coverage(argUserID(args), argInt(args, "days", 0))
}

func handleSpotifyGetTop(ctx context.Context, app *App, args map[string]any) (any, error) {
	userID := argUserID(args)
	client, err := app.ClientFor(ctx, userID)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "building spotify client", err)
	}

	var kind spotifyapi.TopItemsKind
	switch argString(args, "entity") {
	case "artists":
		kind = spotifyapi.TopArtists
	case "tracks":
		kind = spotifyapi.TopTracks
	default:
		return nil, errkind.New(errkind.InvalidArgument, "entity must be 'artists' or 'tracks'")
	}

	timeRange := spotifyapi.TimeRange(argString(args, "time_range"))
	artists, tracks, err := client.TopItems(ctx, kind, timeRange, argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return struct {
		Artists []spotifyapi.ArtistRef `json:"artists,omitempty"`
		Tracks  []spotifyapi.PlayItem  `json:"tracks,omitempty"`
	}{Artists: artists, Tracks: tracks}, nil
}

func handleSpotifySearch(ctx context.Context, app *App, args map[string]any) (any, error) {
	userID := argUserID(args)
	client, err := app.ClientFor(ctx, userID)
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, "building spotify client", err)
	}

	var kind spotifyapi.SearchKind
	switch argString(args, "type") {
	case "track":
		kind = spotifyapi.SearchTrack
	case "artist":
		kind = spotifyapi.SearchArtist
	case "album":
		kind = spotifyapi.SearchAlbum
	default:
		return nil, errkind.New(errkind.InvalidArgument, "type must be one of track, artist, album")
	}

	return client.Search(ctx, argString(args, "q"), kind, argInt(args, "limit", 20))
}

func handleSyncStatus(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Checkpoints.GetOrCreate(argUserID(args))
}

func handleLatestJobRuns(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.Ledger.Recent(argUserID(args), argInt(args, "limit", 10))
}

func handleLatestImportJobs(_ context.Context, app *App, args map[string]any) (any, error) {
	return app.DB.ListRecentImportJobs(argUserID(args), argInt(args, "limit", 10))
}
