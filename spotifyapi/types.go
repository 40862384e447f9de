package spotifyapi

import "time"

// Profile mirrors the subset of Spotify's /v1/me response the domain cares
// about, trimmed from the teacher's providers/spotify.User.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

type simpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type simpleAlbum struct {
	Name string `json:"name"`
}

type simpleTrack struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	DurationMs int64          `json:"duration_ms"`
	Artists    []simpleArtist `json:"artists"`
	Album      simpleAlbum    `json:"album"`
}

type playHistoryItem struct {
	Track   simpleTrack `json:"track"`
	PlayedAt string     `json:"played_at"`
}

type recentlyPlayedCursors struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

type recentlyPlayedResponse struct {
	Items   []playHistoryItem      `json:"items"`
	Next    string                 `json:"next"`
	Cursors *recentlyPlayedCursors `json:"cursors"`
}

// PlayItem is the normalized shape recently_played hands back to callers —
// the wire response decoded and the timestamp parsed.
type PlayItem struct {
	PlayedAt   time.Time
	TrackID    string
	TrackName  string
	Album      string
	DurationMs int64
	Artists    []ArtistRef
}

type ArtistRef struct {
	ID   string
	Name string
}

// RecentlyPlayedPage is what recently_played returns: the items plus the
// next page's exclusive upper cursor in Unix milliseconds, when present.
type RecentlyPlayedPage struct {
	Items      []PlayItem
	NextBefore int64
	HasNext    bool
}

type topItemsResponse struct {
	Items []simpleTrack `json:"items"`
}

// SearchResult is the decoded shape of a catalog search, covering whichever
// of tracks/artists/albums the caller asked for.
type SearchResult struct {
	Tracks *struct {
		Items []simpleTrack `json:"items"`
	} `json:"tracks"`
	Artists *struct {
		Items []simpleArtist `json:"items"`
	} `json:"artists"`
	Albums *struct {
		Items []simpleAlbum `json:"items"`
	} `json:"albums"`
}

// Playlist is the trimmed shape used by the playlist CRUD passthrough,
// grounded on the teacher's providers/spotify.Playlist / PlaylistResponse.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type playlistListResponse struct {
	Items []Playlist `json:"items"`
	Next  string     `json:"next"`
	Total int        `json:"total"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}
