// Package runloop implements the collector worker's single cooperative
// cycle: claim pending imports, run initial sync for users that haven't
// completed it, poll everyone else, then sleep. Modeled directly on the
// teacher's StartListeningTracker goroutine (a ticker-driven for/select
// loop with a first pass done eagerly before the ticker ever fires),
// generalized to the four-phase cycle and given context-based shutdown the
// teacher's version never had.
package runloop

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/enrich"
	"github.com/playback-history/collector/importer"
	"github.com/playback-history/collector/initialsync"
	"github.com/playback-history/collector/poller"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/vault"
)

// ClientFactory builds a Spotify client for a user, sealed around their
// stored refresh credential — injected so tests can substitute a factory
// that never touches the network.
type ClientFactory func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error)

// Config carries the policy knobs this package's phases need.
type Config struct {
	Interval               time.Duration
	InitialSyncEnabled     bool
	InitialSyncMaxDays     int
	InitialSyncMaxRequests int
	InitialSyncConcurrency int
	RateLimitBudget        int
	EnrichEnabled          bool
}

// Loop owns one user-keyed mutex map and the four phase services; Run
// drives it until ctx is canceled.
type Loop struct {
	db        *db.DB
	vault     *vault.Vault
	clients   ClientFactory
	imports   *importer.Service
	initial   *initialsync.Service
	polls     *poller.Service
	enrich    *enrich.Service
	cfg       Config
	logger    *log.Logger
	userLocks sync.Map // map[int64]*sync.Mutex
}

func New(database *db.DB, v *vault.Vault, clients ClientFactory, imports *importer.Service, initial *initialsync.Service, polls *poller.Service, enricher *enrich.Service, cfg Config) *Loop {
	return &Loop{
		db:      database,
		vault:   v,
		clients: clients,
		imports: imports,
		initial: initial,
		polls:   polls,
		enrich:  enricher,
		cfg:     cfg,
		logger:  log.New(os.Stdout, "runloop: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (l *Loop) lockFor(userID int64) *sync.Mutex {
	actual, _ := l.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Run executes cycles until ctx is canceled. The first cycle runs
// immediately, matching the teacher's eager-then-ticker shape.
func (l *Loop) Run(ctx context.Context) {
	l.runCycle(ctx)

	ticker := time.NewTicker(l.cycleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Printf("shutdown signaled, exiting after in-flight work drains")
			return
		case <-ticker.C:
			l.runCycle(ctx)
		}
	}
}

func (l *Loop) cycleInterval() time.Duration {
	if l.cfg.Interval <= 0 {
		return 10 * time.Minute
	}
	return l.cfg.Interval
}

func (l *Loop) runCycle(ctx context.Context) {
	l.logger.Printf("starting cycle")

	l.processPendingImports(ctx)

	users, err := l.db.GetAllActiveUsers()
	if err != nil {
		l.logger.Printf("listing active users: %v", err)
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			l.logger.Printf("shutdown signaled mid-cycle, stopping before user %d", user.ID)
			return
		}
		l.runUserPhase(ctx, user.ID)
	}

	l.logger.Printf("cycle complete (%d users)", len(users))
}

// runUserPhase serializes initial-sync/poll for one user via its keyed
// mutex, so a slow initial sync from a prior cycle can't overlap a poll
// from this one.
func (l *Loop) runUserPhase(ctx context.Context, userID int64) {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	checkpoints := checkpointstore.New(l.db)
	cp, err := checkpoints.GetOrCreate(userID)
	if err != nil {
		l.logger.Printf("user %d: loading checkpoint: %v", userID, err)
		return
	}

	client, err := l.clients(l.db, l.vault, userID)
	if err != nil {
		l.logger.Printf("user %d: building spotify client: %v", userID, err)
		return
	}

	if l.cfg.InitialSyncEnabled && cp.NeedsInitialSync() {
		if _, err := l.initial.Run(ctx, userID, client); err != nil {
			l.logger.Printf("user %d: initial sync: %v", userID, err)
		}
		return
	}

	if _, err := l.polls.Run(ctx, userID, client); err != nil {
		l.logger.Printf("user %d: poll: %v", userID, err)
	}

	l.runEnrichPhase(ctx, userID)
}

// runEnrichPhase backfills MusicBrainz matches for a batch of userID's
// unenriched tracks, once polling has had a chance to land new ones. A
// failure here never blocks the next poll cycle — it's logged and retried
// next time around.
func (l *Loop) runEnrichPhase(ctx context.Context, userID int64) {
	if !l.cfg.EnrichEnabled || l.enrich == nil {
		return
	}
	if _, err := l.enrich.Run(ctx, userID); err != nil {
		l.logger.Printf("user %d: enrich: %v", userID, err)
	}
}

func (l *Loop) processPendingImports(ctx context.Context) {
	pending, err := l.db.ListPendingImportJobs()
	if err != nil {
		l.logger.Printf("listing pending import jobs: %v", err)
		return
	}

	for _, job := range pending {
		if ctx.Err() != nil {
			return
		}
		lock := l.lockFor(job.UserID)
		lock.Lock()
		_, err := l.imports.Run(l.db, job.UserID, job)
		lock.Unlock()
		if err != nil {
			l.logger.Printf("import job %s: %v", job.ID, err)
		}
	}
}
