package models

import "time"

// ProductTier mirrors the Spotify account "product" field.
type ProductTier string

const (
	ProductFree    ProductTier = "free"
	ProductPremium ProductTier = "premium"
	ProductUnknown ProductTier = "unknown"
)

// User is a person who has authorized the collector against their Spotify
// account. The surrogate ID is what every other table hangs off of.
type User struct {
	ID               int64
	SpotifyID        string
	DisplayName      string
	Email            string
	Country          string
	Product          ProductTier
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
