package models

import "time"

// SourceTag marks where a track, artist, or play originated. Coverage
// statistics split on this.
type SourceTag string

const (
	SourceAPI    SourceTag = "api"
	SourceImport SourceTag = "import"
)

// Track is a canonical Spotify (or imported) track. Exactly one of
// ProviderTrackID/LocalID is authoritative per the track-identity invariant;
// the other may be empty.
type Track struct {
	ID              int64
	Name            string
	ProviderTrackID string
	LocalID         string
	Album           string
	DurationMs      int64
	Source          SourceTag
	MBID            string
	ISRC            string
	EnrichedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NeedsEnrichment reports whether this track has never been through the
// MusicBrainz enrichment pass.
func (t *Track) NeedsEnrichment() bool {
	return t.EnrichedAt == nil
}

// Identity returns whichever of ProviderTrackID/LocalID is set, preferring
// the provider ID — this is the value every upsert/lookup keys on.
func (t *Track) Identity() string {
	if t.ProviderTrackID != "" {
		return t.ProviderTrackID
	}
	return t.LocalID
}
