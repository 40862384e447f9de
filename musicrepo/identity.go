// Package musicrepo wraps the db package's hand-written SQL primitives with
// transaction orchestration, batch play-history processing, and the
// deterministic local-id scheme used when a provider doesn't hand back a
// stable identifier of its own.
package musicrepo

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// TrackLocalID derives the deterministic fallback identity for a track that
// has no provider id: "local:" followed by the hex SHA-1 of
// artist|track|album, lowercased, pipe-joined, empty fields contributing
// empty strings. Byte-identical across runs for the same triple.
func TrackLocalID(artist, track, album string) string {
	joined := strings.ToLower(artist) + "|" + strings.ToLower(track) + "|" + strings.ToLower(album)
	sum := sha1.Sum([]byte(joined))
	return "local:" + hex.EncodeToString(sum[:])
}

// ArtistLocalID is TrackLocalID's symmetric counterpart for artists.
func ArtistLocalID(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(name)))
	return "local:" + hex.EncodeToString(sum[:])
}
