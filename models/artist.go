package models

import "time"

// Artist is a canonical Spotify (or imported) artist, identity-resolved the
// same way Track is.
type Artist struct {
	ID               int64
	Name             string
	ProviderArtistID string
	LocalID          string
	Source           SourceTag
	MBID             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a *Artist) Identity() string {
	if a.ProviderArtistID != "" {
		return a.ProviderArtistID
	}
	return a.LocalID
}
