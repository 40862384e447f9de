package spotifyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// RecentlyPlayed fetches one page of play history, exclusive-bounded by
// before (Unix milliseconds; 0 means "now"). This is the critical-path call
// the initial-sync pager and the poller both drive directly, so it goes
// through the raw net/http client rather than the resty passthrough — full
// control over the 401/429/5xx handling matters here.
func (c *Client) RecentlyPlayed(ctx context.Context, before int64, limit int) (RecentlyPlayedPage, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}

	resp, err := c.do(ctx, "GET", "/me/player/recently-played", q, nil)
	if err != nil {
		return RecentlyPlayedPage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RecentlyPlayedPage{}, fmt.Errorf("spotifyapi: reading recently-played body: %w", err)
	}

	var wire recentlyPlayedResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return RecentlyPlayedPage{}, fmt.Errorf("spotifyapi: decoding recently-played response: %w", err)
	}

	page := RecentlyPlayedPage{Items: make([]PlayItem, 0, len(wire.Items))}
	for _, item := range wire.Items {
		playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
		if err != nil {
			continue
		}
		artists := make([]ArtistRef, 0, len(item.Track.Artists))
		for _, a := range item.Track.Artists {
			artists = append(artists, ArtistRef{ID: a.ID, Name: a.Name})
		}
		page.Items = append(page.Items, PlayItem{
			PlayedAt:   playedAt.UTC(),
			TrackID:    item.Track.ID,
			TrackName:  item.Track.Name,
			Album:      item.Track.Album.Name,
			DurationMs: item.Track.DurationMs,
			Artists:    artists,
		})
	}

	if wire.Cursors != nil && wire.Cursors.Before != "" {
		if ms, err := strconv.ParseInt(wire.Cursors.Before, 10, 64); err == nil {
			page.NextBefore = ms
			page.HasNext = true
		}
	}

	return page, nil
}
