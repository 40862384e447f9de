package spotifyapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/playback-history/collector/errkind"
)

// prepared configures a resty request against the already-refreshed access
// token for every non-critical passthrough call. These endpoints back the
// spotify.* tool surface; they share the same token lifecycle as the
// critical path but don't need its retry-on-401 precision, since a tool
// invocation failing once and surfacing AuthExpired is an acceptable user
// experience for "list my playlists", unlike a background sync losing a
// whole polling cycle.
func (c *Client) prepared(ctx context.Context) (*resty.Request, error) {
	if err := c.ensureFreshToken(ctx); err != nil {
		return nil, err
	}
	client := resty.New().SetBaseURL(c.baseURL).SetTimeout(c.httpClient.Timeout)
	return client.R().SetContext(ctx).SetAuthToken(c.accessToken), nil
}

func (c *Client) restyError(resp *resty.Response, err error) error {
	if err != nil {
		return wrapTransport(err)
	}
	if resp.IsError() {
		var parsed spotifyErrorBody
		message := resp.Status()
		if jsonErr := json.Unmarshal(resp.Body(), &parsed); jsonErr == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return errkind.New(kindForStatus(resp.StatusCode()), message)
	}
	return nil
}

// Profile fetches the authenticated user's Spotify profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	req, err := c.prepared(ctx)
	if err != nil {
		return Profile{}, err
	}
	var profile Profile
	resp, err := req.SetResult(&profile).Get("/me")
	if rerr := c.restyError(resp, err); rerr != nil {
		return Profile{}, rerr
	}
	return profile, nil
}

// TopItemsKind selects between the two top-items endpoints.
type TopItemsKind string

const (
	TopArtists TopItemsKind = "artists"
	TopTracks  TopItemsKind = "tracks"
)

// TimeRange is one of Spotify's three affinity windows.
type TimeRange string

const (
	ShortTerm  TimeRange = "short_term"
	MediumTerm TimeRange = "medium_term"
	LongTerm   TimeRange = "long_term"
)

// TopItems lists the user's top artists or tracks over a time range.
func (c *Client) TopItems(ctx context.Context, kind TopItemsKind, timeRange TimeRange, limit int) ([]ArtistRef, []PlayItem, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	req, err := c.prepared(ctx)
	if err != nil {
		return nil, nil, err
	}

	var wire topItemsResponse
	resp, err := req.
		SetQueryParam("time_range", string(timeRange)).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&wire).
		Get("/me/top/" + string(kind))
	if rerr := c.restyError(resp, err); rerr != nil {
		return nil, nil, rerr
	}

	if kind == TopTracks {
		tracks := make([]PlayItem, 0, len(wire.Items))
		for _, t := range wire.Items {
			tracks = append(tracks, trackToPlayItem(t))
		}
		return nil, tracks, nil
	}

	artists := make([]ArtistRef, 0, len(wire.Items))
	for _, t := range wire.Items {
		if len(t.Artists) > 0 {
			artists = append(artists, ArtistRef{ID: t.Artists[0].ID, Name: t.Artists[0].Name})
		}
	}
	return artists, nil, nil
}

func trackToPlayItem(t simpleTrack) PlayItem {
	artists := make([]ArtistRef, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, ArtistRef{ID: a.ID, Name: a.Name})
	}
	return PlayItem{
		TrackID:    t.ID,
		TrackName:  t.Name,
		Album:      t.Album.Name,
		DurationMs: t.DurationMs,
		Artists:    artists,
	}
}

// SearchKind is one of the item types the search endpoint can target.
type SearchKind string

const (
	SearchTrack  SearchKind = "track"
	SearchArtist SearchKind = "artist"
	SearchAlbum  SearchKind = "album"
)

// Search performs a text search against the catalog.
func (c *Client) Search(ctx context.Context, query string, kind SearchKind, limit int) (SearchResult, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	req, err := c.prepared(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	var wire SearchResult
	resp, err := req.
		SetQueryParam("q", query).
		SetQueryParam("type", string(kind)).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&wire).
		Get("/search")
	if rerr := c.restyError(resp, err); rerr != nil {
		return SearchResult{}, rerr
	}
	return wire, nil
}

// ListPlaylists lists the current user's playlists.
func (c *Client) ListPlaylists(ctx context.Context, limit int) ([]Playlist, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	req, err := c.prepared(ctx)
	if err != nil {
		return nil, err
	}
	var wire playlistListResponse
	resp, err := req.SetQueryParam("limit", fmt.Sprintf("%d", limit)).SetResult(&wire).Get("/me/playlists")
	if rerr := c.restyError(resp, err); rerr != nil {
		return nil, rerr
	}
	return wire.Items, nil
}

// CreatePlaylist creates a new playlist owned by spotifyUserID.
func (c *Client) CreatePlaylist(ctx context.Context, spotifyUserID, name string, public bool) (Playlist, error) {
	req, err := c.prepared(ctx)
	if err != nil {
		return Playlist{}, err
	}
	var created Playlist
	resp, err := req.
		SetBody(map[string]any{"name": name, "public": public}).
		SetResult(&created).
		Post("/users/" + spotifyUserID + "/playlists")
	if rerr := c.restyError(resp, err); rerr != nil {
		return Playlist{}, rerr
	}
	return created, nil
}

// AddPlaylistTracks appends tracks (by URI) to an existing playlist.
func (c *Client) AddPlaylistTracks(ctx context.Context, playlistID string, trackURIs []string) error {
	req, err := c.prepared(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(map[string]any{"uris": trackURIs}).Post("/playlists/" + playlistID + "/tracks")
	return c.restyError(resp, err)
}

// RemovePlaylistTracks removes tracks (by URI) from an existing playlist.
func (c *Client) RemovePlaylistTracks(ctx context.Context, playlistID string, trackURIs []string) error {
	req, err := c.prepared(ctx)
	if err != nil {
		return err
	}
	tracks := make([]map[string]string, 0, len(trackURIs))
	for _, uri := range trackURIs {
		tracks = append(tracks, map[string]string{"uri": uri})
	}
	resp, err := req.SetBody(map[string]any{"tracks": tracks}).Delete("/playlists/" + playlistID + "/tracks")
	return c.restyError(resp, err)
}

// GetTracks, GetArtists, GetAlbums resolve catalog objects by id in bulk.
func (c *Client) GetTracks(ctx context.Context, ids []string) ([]PlayItem, error) {
	req, err := c.prepared(ctx)
	if err != nil {
		return nil, err
	}
	var wire topItemsResponse
	resp, err := req.SetQueryParam("ids", joinIDs(ids)).SetResult(&wire).Get("/tracks")
	if rerr := c.restyError(resp, err); rerr != nil {
		return nil, rerr
	}
	out := make([]PlayItem, 0, len(wire.Items))
	for _, t := range wire.Items {
		out = append(out, trackToPlayItem(t))
	}
	return out, nil
}

func (c *Client) GetArtists(ctx context.Context, ids []string) ([]ArtistRef, error) {
	req, err := c.prepared(ctx)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Artists []simpleArtist `json:"artists"`
	}
	resp, err := req.SetQueryParam("ids", joinIDs(ids)).SetResult(&wire).Get("/artists")
	if rerr := c.restyError(resp, err); rerr != nil {
		return nil, rerr
	}
	out := make([]ArtistRef, 0, len(wire.Artists))
	for _, a := range wire.Artists {
		out = append(out, ArtistRef{ID: a.ID, Name: a.Name})
	}
	return out, nil
}

func (c *Client) GetAlbums(ctx context.Context, ids []string) ([]string, error) {
	req, err := c.prepared(ctx)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Albums []simpleAlbum `json:"albums"`
	}
	resp, err := req.SetQueryParam("ids", joinIDs(ids)).SetResult(&wire).Get("/albums")
	if rerr := c.restyError(resp, err); rerr != nil {
		return nil, rerr
	}
	out := make([]string, 0, len(wire.Albums))
	for _, a := range wire.Albums {
		out = append(out, a.Name)
	}
	return out, nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}
