// Package initialsync implements the best-effort backward pager that
// backfills a user's history as far as Spotify's recently-played endpoint
// will disclose, bounded by policy (request cap, day cap, rate-limit
// budget). Modeled on the teacher's StartListeningTracker goroutine in
// shape — bounded work per invocation, cooperative stop conditions — but
// this is the synchronous one-shot algorithm runloop calls per user, not
// the goroutine itself.
package initialsync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/errkind"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/spotifyapi"
)

// Client is the slice of *spotifyapi.Client this pager drives; satisfied by
// the real client and by test doubles.
type Client interface {
	RecentlyPlayed(ctx context.Context, before int64, limit int) (spotifyapi.RecentlyPlayedPage, error)
	ConsecutiveRateLimits() int
}

// StopReason names why the pager stopped — surfaced for logging and tests,
// never as an error on its own.
type StopReason string

const (
	StopRequestCap  StopReason = "request_cap"
	StopEmpty       StopReason = "empty"
	StopNoProgress  StopReason = "no_progress"
	StopMaxDays     StopReason = "max_days"
	StopRateLimited StopReason = "rate_limited"
)

// Config carries the policy knobs from config.Config that this package
// needs, kept narrow so tests don't have to construct the whole app config.
type Config struct {
	MaxRequests     int
	MaxDays         int
	RateLimitBudget int
}

// Result summarizes one run of the pager for the caller (runloop) and the
// job ledger.
type Result struct {
	Reason       StopReason
	Requests     int
	Inserted     int
	Skipped      int
	Fetched      int
	EarliestSeen time.Time
}

// Service runs the pager for one user at a time; the semaphore caps how
// many users' initial syncs run concurrently across the whole worker.
type Service struct {
	repo        *musicrepo.Repository
	checkpoints *checkpointstore.Store
	ledger      *jobledger.Ledger
	cfg         Config
	sem         *semaphore.Weighted
	logger      *log.Logger
}

func New(repo *musicrepo.Repository, checkpoints *checkpointstore.Store, ledger *jobledger.Ledger, cfg Config, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Service{
		repo:        repo,
		checkpoints: checkpoints,
		ledger:      ledger,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		logger:      log.New(os.Stdout, "initialsync: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Run executes the backward pager for one user, recording checkpoint and
// job-ledger state as it goes. The semaphore ensures at most
// INITIAL_SYNC_CONCURRENCY users are paging simultaneously.
func (s *Service) Run(ctx context.Context, userID int64, client Client) (Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("initialsync: acquiring concurrency slot: %w", err)
	}
	defer s.sem.Release(1)

	if err := s.checkpoints.MarkInitialSyncStarted(userID); err != nil {
		return Result{}, fmt.Errorf("initialsync: marking started for user %d: %w", userID, err)
	}

	job, err := s.ledger.Begin(userID, models.JobInitialSync)
	if err != nil {
		return Result{}, fmt.Errorf("initialsync: beginning job for user %d: %w", userID, err)
	}

	result, runErr := s.page(ctx, userID, client)

	if runErr != nil {
		if err := s.checkpoints.MarkError(userID, runErr.Error()); err != nil {
			s.logger.Printf("user %d: recording checkpoint error failed: %v", userID, err)
		}
		if err := s.ledger.Fail(job, runErr); err != nil {
			s.logger.Printf("user %d: recording job failure failed: %v", userID, err)
		}
		return result, runErr
	}

	if err := s.checkpoints.MarkInitialSyncCompleted(userID, result.EarliestSeen); err != nil {
		return result, fmt.Errorf("initialsync: marking completed for user %d: %w", userID, err)
	}
	if err := s.ledger.Finish(job, result.Fetched, result.Inserted, result.Skipped); err != nil {
		return result, fmt.Errorf("initialsync: finishing job for user %d: %w", userID, err)
	}

	return result, nil
}

// page is the backward-pager algorithm, verbatim from the design: walk
// strictly-decreasing `before` cursors until one of five stop conditions
// fires.
func (s *Service) page(ctx context.Context, userID int64, client Client) (Result, error) {
	var (
		cursor     int64                   // 0 means "now" to RecentlyPlayed
		prevOldest = time.Unix(1<<62, 0)    // sentinel: +inf
		requests   int
		earliest   time.Time
		result     Result
	)

	maxDays := s.cfg.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	maxRequests := s.cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 200
	}
	rateLimitBudget := s.cfg.RateLimitBudget
	if rateLimitBudget <= 0 {
		rateLimitBudget = 5
	}

	now := time.Now().UTC()

	for {
		if requests >= maxRequests {
			result.Reason = StopRequestCap
			break
		}

		page, err := client.RecentlyPlayed(ctx, cursor, 50)
		requests++
		if err != nil {
			if errkind.KindOf(err) == errkind.RateLimited {
				result.Reason = StopRateLimited
				break
			}
			return result, err
		}

		if len(page.Items) == 0 {
			result.Reason = StopEmpty
			break
		}

		records := make([]musicrepo.PlayRecord, 0, len(page.Items))
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
		}

		batchResult, err := s.repo.ProcessBatch(userID, records)
		if err != nil {
			return result, fmt.Errorf("initialsync: processing batch for user %d: %w", userID, err)
		}
		result.Inserted += batchResult.Inserted
		result.Skipped += batchResult.Skipped
		result.Fetched += len(page.Items)

		if earliest.IsZero() || batchResult.MinPlayedAt.Before(earliest) {
			earliest = batchResult.MinPlayedAt
		}

		if !batchResult.MinPlayedAt.Before(prevOldest) {
			result.Reason = StopNoProgress
			break
		}
		prevOldest = batchResult.MinPlayedAt

		if now.Sub(batchResult.MinPlayedAt) >= time.Duration(maxDays)*24*time.Hour {
			result.Reason = StopMaxDays
			break
		}

		cursor = batchResult.MinPlayedAt.UnixMilli() - 1

		if client.ConsecutiveRateLimits() >= rateLimitBudget {
			result.Reason = StopRateLimited
			break
		}
	}

	result.Requests = requests
	result.EarliestSeen = earliest
	return result, nil
}
