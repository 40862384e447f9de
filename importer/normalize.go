package importer

import (
	"strings"
	"time"

	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
)

// extendedRecord mirrors one element of an endsong_*.json /
// Streaming_History_Audio_*.json array. Only the fields this pipeline uses
// are declared; everything else (IP address, user agent, platform, skip
// reason, ...) is discarded by simply never being unmarshaled.
type extendedRecord struct {
	Ts                           string `json:"ts"`
	MsPlayed                     int64  `json:"ms_played"`
	MasterMetadataTrackName      string `json:"master_metadata_track_name"`
	MasterMetadataAlbumArtist    string `json:"master_metadata_album_artist_name"`
	MasterMetadataAlbumAlbumName string `json:"master_metadata_album_album_name"`
	SpotifyTrackURI              string `json:"spotify_track_uri"`
}

// accountDataRecord mirrors one element of a StreamingHistory*.json array —
// the older, simpler export schema with no provider URIs.
type accountDataRecord struct {
	EndTime    string `json:"endTime"`
	ArtistName string `json:"artistName"`
	TrackName  string `json:"trackName"`
	MsPlayed   int64  `json:"msPlayed"`
}

// normalizeExtended converts one extended-schema record into a play,
// reporting ok=false for records missing a mandatory field (caller counts
// these as skipped rather than erroring the whole import).
func normalizeExtended(r extendedRecord) (musicrepo.PlayRecord, bool) {
	if r.Ts == "" || r.MasterMetadataTrackName == "" || r.MasterMetadataAlbumArtist == "" {
		return musicrepo.PlayRecord{}, false
	}
	playedAt, err := time.Parse(time.RFC3339, r.Ts)
	if err != nil {
		return musicrepo.PlayRecord{}, false
	}

	providerID := trackIDFromURI(r.SpotifyTrackURI)

	return musicrepo.PlayRecord{
		PlayedAt:        playedAt.UTC(),
		TrackName:       r.MasterMetadataTrackName,
		TrackProviderID: providerID,
		Album:           r.MasterMetadataAlbumAlbumName,
		DurationMs:      r.MsPlayed,
		Artists:         []musicrepo.ArtistInput{{Name: r.MasterMetadataAlbumArtist}},
		MsPlayed:        r.MsPlayed,
		Source:          models.SourceImport,
	}, true
}

// normalizeAccountData converts one account-data record into a play. The
// export's endTime field is a naive local timestamp with no offset; the
// design's time discipline still requires it be treated as UTC at ingest
// rather than left ambiguous.
func normalizeAccountData(r accountDataRecord) (musicrepo.PlayRecord, bool) {
	if r.EndTime == "" || r.ArtistName == "" || r.TrackName == "" {
		return musicrepo.PlayRecord{}, false
	}
	playedAt, err := parseNaiveAsUTC(r.EndTime)
	if err != nil {
		return musicrepo.PlayRecord{}, false
	}

	return musicrepo.PlayRecord{
		PlayedAt:   playedAt,
		TrackName:  r.TrackName,
		Artists:    []musicrepo.ArtistInput{{Name: r.ArtistName}},
		DurationMs: r.MsPlayed,
		MsPlayed:   r.MsPlayed,
		Source:     models.SourceImport,
	}, true
}

// parseNaiveAsUTC accepts the "2006-01-02 15:04" shape Spotify's
// account-data export uses and stamps it UTC without any conversion — the
// export carries no offset information to convert from.
func parseNaiveAsUTC(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
}

// trackIDFromURI extracts the id suffix from a "spotify:track:<id>" URI,
// returning "" for an absent or malformed URI.
func trackIDFromURI(uri string) string {
	const prefix = "spotify:track:"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return strings.TrimPrefix(uri, prefix)
}
