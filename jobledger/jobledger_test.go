package jobledger

import (
	"errors"
	"testing"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

func newTestLedger(t *testing.T) (*Ledger, int64) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	user, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return New(database), user.ID
}

func TestBeginFinishRecordsCounts(t *testing.T) {
	ledger, userID := newTestLedger(t)

	job, err := ledger.Begin(userID, models.JobPoll)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if job.Status != models.JobRunning {
		t.Fatalf("expected new job to be running, got %v", job.Status)
	}

	if err := ledger.Finish(job, 10, 7, 3); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	recent, err := ledger.Recent(userID, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 job run, got %d", len(recent))
	}
	if recent[0].Status != models.JobSuccess || recent[0].Inserted != 7 || recent[0].Skipped != 3 {
		t.Fatalf("unexpected recorded job run: %+v", recent[0])
	}
}

func TestFailRecordsErrorText(t *testing.T) {
	ledger, userID := newTestLedger(t)

	job, err := ledger.Begin(userID, models.JobInitialSync)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := ledger.Fail(job, errors.New("boom")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	recent, err := ledger.Recent(userID, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent[0].Status != models.JobError || recent[0].ErrorText != "boom" {
		t.Fatalf("unexpected recorded job run: %+v", recent[0])
	}
}
