package models

import "time"

type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportSuccess    ImportStatus = "success"
	ImportError      ImportStatus = "error"
)

// ImportFormat is the detected shape of a "Download your data" export.
type ImportFormat string

const (
	ImportFormatExtended    ImportFormat = "extended"
	ImportFormatAccountData ImportFormat = "account_data"
	ImportFormatUnknown     ImportFormat = "unknown"
)

// ImportJob tracks one uploaded ZIP archive through the importer pipeline.
type ImportJob struct {
	ID              string
	UserID          int64
	Status          ImportStatus
	Path            string
	SizeBytes       int64
	Format          ImportFormat
	RecordsIngested int
	EarliestPlayed  *time.Time
	LatestPlayed    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ErrorText       string
}
