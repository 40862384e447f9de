// Package poller implements the incremental catch-up pull: one
// recently_played(limit=50) call per user per cycle, no cursor walking.
// The repository's unique constraint on (user, track, played_at) absorbs
// any overlap with a prior poll or with initial sync, so this stays a
// single request regardless of how much the user listened to between
// cycles — deeper backfill is initial sync's job, not this one's.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/spotifyapi"
)

// Client is the slice of *spotifyapi.Client a poll cycle needs.
type Client interface {
	RecentlyPlayed(ctx context.Context, before int64, limit int) (spotifyapi.RecentlyPlayedPage, error)
}

// Result summarizes one poll cycle for the job ledger and caller.
type Result struct {
	Fetched  int
	Inserted int
	Skipped  int
	Latest   time.Time
}

// Service runs one poll cycle at a time per call; runloop's per-user mutex
// keeps a poll and an initial sync from overlapping for the same user.
type Service struct {
	repo        *musicrepo.Repository
	checkpoints *checkpointstore.Store
	ledger      *jobledger.Ledger
}

func New(repo *musicrepo.Repository, checkpoints *checkpointstore.Store, ledger *jobledger.Ledger) *Service {
	return &Service{repo: repo, checkpoints: checkpoints, ledger: ledger}
}

// Run pulls the most recent page of plays for userID, records it, and
// advances last_poll_latest_played_at only if the page's newest play is
// more recent than what's already stored.
func (s *Service) Run(ctx context.Context, userID int64, client Client) (Result, error) {
	if _, err := s.checkpoints.GetOrCreate(userID); err != nil {
		return Result{}, fmt.Errorf("poller: loading checkpoint for user %d: %w", userID, err)
	}
	if err := s.checkpoints.MarkPollStarted(userID); err != nil {
		return Result{}, fmt.Errorf("poller: marking started for user %d: %w", userID, err)
	}

	job, err := s.ledger.Begin(userID, models.JobPoll)
	if err != nil {
		return Result{}, fmt.Errorf("poller: beginning job for user %d: %w", userID, err)
	}

	result, runErr := s.poll(ctx, userID, client)
	if runErr != nil {
		_ = s.checkpoints.MarkError(userID, runErr.Error())
		_ = s.ledger.Fail(job, runErr)
		return result, runErr
	}

	if !result.Latest.IsZero() {
		if err := s.checkpoints.MarkPollCompleted(userID, result.Latest); err != nil {
			return result, fmt.Errorf("poller: marking completed for user %d: %w", userID, err)
		}
	}
	if err := s.ledger.Finish(job, result.Fetched, result.Inserted, result.Skipped); err != nil {
		return result, fmt.Errorf("poller: finishing job for user %d: %w", userID, err)
	}

	return result, nil
}

func (s *Service) poll(ctx context.Context, userID int64, client Client) (Result, error) {
	page, err := client.RecentlyPlayed(ctx, 0, 50)
	if err != nil {
		return Result{}, err
	}

	var result Result
	result.Fetched = len(page.Items)
	if len(page.Items) == 0 {
		return result, nil
	}

	records := make([]musicrepo.PlayRecord, 0, len(page.Items))
	var latest time.Time
	for _, item := range page.Items {
		artists := make([]musicrepo.ArtistInput, 0, len(item.Artists))
		for _, a := range item.Artists {
			artists = append(artists, musicrepo.ArtistInput{Name: a.Name, ProviderID: a.ID})
		}
		records = append(records, musicrepo.PlayRecord{
			PlayedAt:        item.PlayedAt,
			TrackName:       item.TrackName,
			TrackProviderID: item.TrackID,
			Album:           item.Album,
			DurationMs:      item.DurationMs,
			Artists:         artists,
			Source:          models.SourceAPI,
		})
		if latest.IsZero() || item.PlayedAt.After(latest) {
			latest = item.PlayedAt
		}
	}

	batchResult, err := s.repo.ProcessBatch(userID, records)
	if err != nil {
		return result, fmt.Errorf("poller: processing batch for user %d: %w", userID, err)
	}

	result.Inserted = batchResult.Inserted
	result.Skipped = batchResult.Skipped
	result.Latest = latest
	return result, nil
}
