// Package importer streams a "Download your data" ZIP export into the
// music repository without ever holding a full entry in memory: each
// matched JSON array is read through encoding/json.Decoder.Token(), one
// element at a time, off of the archive entry's own reader. This is the
// memory-bounded tokenizer the design calls for, grounded directly on
// archive/zip + encoding/json rather than any third-party JSON library —
// the two concerns (zip iteration, streaming array decode) are both
// stdlib's to own and no library in this tree's dependency set does either
// better.
package importer

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/playback-history/collector/errkind"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
)

// Config carries the policy knobs from config.Config this package needs.
type Config struct {
	MaxZipSizeMB int64
	MaxRecords   int
	BatchSize    int
}

// Result summarizes one completed import run for the job ledger.
type Result struct {
	Format   models.ImportFormat
	Fetched  int
	Inserted int
	Skipped  int
	Earliest time.Time
	Latest   time.Time
}

// Service drives the importer pipeline: size gate, format detection,
// streaming parse + normalize, batched commit, finalization.
type Service struct {
	repo   *musicrepo.Repository
	ledger *jobledger.Ledger
	cfg    Config
	logger *log.Logger
}

func New(repo *musicrepo.Repository, ledger *jobledger.Ledger, cfg Config) *Service {
	if cfg.MaxZipSizeMB <= 0 {
		cfg.MaxZipSizeMB = 500
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 5_000_000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	return &Service{
		repo:   repo,
		ledger: ledger,
		cfg:    cfg,
		logger: log.New(os.Stdout, "importer: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// importJobStore is the slice of *db.DB (via db.ImportJob helpers) this
// service needs for job bookkeeping — narrowed to an interface so tests can
// swap in a fake without standing up a real database for every case.
type importJobStore interface {
	SetImportJobStatus(jobID string, status models.ImportStatus) error
	SetImportJobFormat(jobID string, format models.ImportFormat) error
	FinishImportJob(jobID string, recordsIngested int, earliest, latest *time.Time) error
	FailImportJob(jobID string, errText string) error
}

// Run executes the importer pipeline for one ImportJob against the archive
// at job.Path, updating job status/format/counts as it goes.
func (s *Service) Run(jobs importJobStore, userID int64, job *models.ImportJob) (Result, error) {
	if err := jobs.SetImportJobStatus(job.ID, models.ImportProcessing); err != nil {
		return Result{}, fmt.Errorf("importer: marking job %s processing: %w", job.ID, err)
	}

	run, err := s.ledger.Begin(userID, models.JobImport)
	if err != nil {
		return Result{}, fmt.Errorf("importer: beginning job run for %s: %w", job.ID, err)
	}

	result, runErr := s.process(jobs, job)
	if runErr != nil {
		_ = jobs.FailImportJob(job.ID, runErr.Error())
		_ = s.ledger.Fail(run, runErr)
		return result, runErr
	}

	var earliestPtr, latestPtr *time.Time
	if !result.Earliest.IsZero() {
		e := result.Earliest
		earliestPtr = &e
	}
	if !result.Latest.IsZero() {
		l := result.Latest
		latestPtr = &l
	}
	if err := jobs.FinishImportJob(job.ID, result.Inserted+result.Skipped, earliestPtr, latestPtr); err != nil {
		return result, fmt.Errorf("importer: finishing job %s: %w", job.ID, err)
	}
	if err := s.ledger.Finish(run, result.Fetched, result.Inserted, result.Skipped); err != nil {
		return result, fmt.Errorf("importer: finishing job run for %s: %w", job.ID, err)
	}

	return result, nil
}

func (s *Service) process(jobs importJobStore, job *models.ImportJob) (Result, error) {
	info, err := os.Stat(job.Path)
	if err != nil {
		return Result{}, fmt.Errorf("importer: stat %s: %w", job.Path, err)
	}
	maxBytes := s.cfg.MaxZipSizeMB * 1024 * 1024
	if info.Size() > maxBytes {
		return Result{}, errkind.New(errkind.ArchiveTooLarge,
			fmt.Sprintf("archive is %d bytes, exceeds the %d MB limit", info.Size(), s.cfg.MaxZipSizeMB))
	}

	zr, err := zip.OpenReader(job.Path)
	if err != nil {
		return Result{}, fmt.Errorf("importer: opening archive %s: %w", job.Path, err)
	}
	defer zr.Close()

	entries, format, err := detectFormat(zr.File)
	if err != nil {
		return Result{}, err
	}
	if err := jobs.SetImportJobFormat(job.ID, format); err != nil {
		return Result{}, fmt.Errorf("importer: recording detected format for %s: %w", job.ID, err)
	}

	var result Result
	result.Format = format

	batch := make([]musicrepo.PlayRecord, 0, s.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		br, err := s.repo.ProcessBatch(job.UserID, batch)
		if err != nil {
			return fmt.Errorf("importer: committing batch for job %s: %w", job.ID, err)
		}
		result.Inserted += br.Inserted
		result.Skipped += br.Skipped
		if !br.MinPlayedAt.IsZero() && (result.Earliest.IsZero() || br.MinPlayedAt.Before(result.Earliest)) {
			result.Earliest = br.MinPlayedAt
		}
		if br.MaxPlayedAt.After(result.Latest) {
			result.Latest = br.MaxPlayedAt
		}
		batch = batch[:0]
		return nil
	}

	for _, entry := range entries {
		if err := s.streamEntry(entry, func(rec musicrepo.PlayRecord, ok bool) error {
			result.Fetched++
			if !ok {
				result.Skipped++
				return nil
			}
			if result.Fetched > s.cfg.MaxRecords {
				return errkind.New(errkind.RecordCapExceeded,
					fmt.Sprintf("import exceeded the %d record cap", s.cfg.MaxRecords))
			}
			batch = append(batch, rec)
			if len(batch) >= s.cfg.BatchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return result, err
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	return result, nil
}

// streamEntry tokenizes one matched zip entry's top-level JSON array,
// decoding each element individually so the whole entry is never buffered
// in memory, and hands each normalized record to onRecord.
func (s *Service) streamEntry(entry matchedEntry, onRecord func(musicrepo.PlayRecord, bool) error) error {
	rc, err := entry.file.Open()
	if err != nil {
		return fmt.Errorf("importer: opening entry %s: %w", entry.file.Name, err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)

	// Consume the opening '[' of the top-level array.
	if _, err := dec.Token(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("importer: reading array start of %s: %w", entry.file.Name, err)
	}

	for dec.More() {
		var rec musicrepo.PlayRecord
		var ok bool

		switch entry.format {
		case models.ImportFormatExtended:
			var raw extendedRecord
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("importer: decoding record in %s: %w", entry.file.Name, err)
			}
			rec, ok = normalizeExtended(raw)
		case models.ImportFormatAccountData:
			var raw accountDataRecord
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("importer: decoding record in %s: %w", entry.file.Name, err)
			}
			rec, ok = normalizeAccountData(raw)
		default:
			return errkind.New(errkind.UnrecognizedFormat, fmt.Sprintf("no normalizer for format %s", entry.format))
		}

		if err := onRecord(rec, ok); err != nil {
			return err
		}
	}

	return nil
}
