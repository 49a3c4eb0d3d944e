package services

import (
	"github.com/gcbaptista/medlex-spotter/model"
)

// MaxBatchNotes caps the number of notes accepted by one asynchronous batch.
const MaxBatchNotes = 10000

// Scanner scans a single note. Implementations must be safe for concurrent
// use and return the same result for the same text.
type Scanner interface {
	Scan(text string) model.NoteResult
	Canonicals() []string // configuration order
	FlagKeys() []string   // sorted has_<canonical> keys
}

// JobManager defines read operations on background jobs
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(status *model.JobStatus) []*model.Job
	CancelJob(jobID string) error
}

// BatchScanner extends Scanner with asynchronous batch scanning
type BatchScanner interface {
	Scanner
	JobManager
	ScanBatchAsync(notes []model.Note) (string, error) // Returns job ID
	GetJobResults(jobID string) ([]model.Row, error)
}
