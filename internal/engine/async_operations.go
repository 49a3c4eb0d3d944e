package engine

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/internal/batch"
	"github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/internal/jobs"
	"github.com/gcbaptista/medlex-spotter/internal/logging"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/model"
	"github.com/gcbaptista/medlex-spotter/services"
)

// Service pairs an Engine with a job manager so batches of notes can be
// scanned in the background. It implements services.BatchScanner.
type Service struct {
	*Engine
	jobManager *jobs.Manager
	runner     *batch.Runner
	logger     *zap.Logger
}

// NewService wires e to jm. workers bounds the notes scanned in parallel
// inside one job.
func NewService(e *Engine, jm *jobs.Manager, workers int, m *metrics.Metrics, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger)
	return &Service{
		Engine:     e,
		jobManager: jm,
		runner: batch.New(e,
			batch.WithWorkers(workers),
			batch.WithMetrics(m),
			batch.WithLogger(logger),
		),
		logger: logger,
	}
}

// ScanBatchAsync queues notes for scanning and returns the job ID.
func (s *Service) ScanBatchAsync(notes []model.Note) (string, error) {
	if len(notes) == 0 {
		return "", errors.NewInputError("notes", "at least one note is required")
	}
	if len(notes) > services.MaxBatchNotes {
		return "", errors.NewInputError("notes", fmt.Sprintf("at most %d notes per batch, got %d", services.MaxBatchNotes, len(notes)))
	}

	owned := append([]model.Note(nil), notes...)
	jobID := s.jobManager.CreateJob(model.JobTypeScanBatch, map[string]string{
		"operation": "scan_batch",
		"notes":     strconv.Itoa(len(owned)),
	})

	err := s.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return s.executeScanBatchJob(ctx, owned, jobID)
	})
	if err != nil {
		return "", fmt.Errorf("failed to start scan batch job: %w", err)
	}

	return jobID, nil
}

// executeScanBatchJob executes the scan batch job.
func (s *Service) executeScanBatchJob(ctx context.Context, notes []model.Note, jobID string) error {
	total := len(notes)
	s.jobManager.UpdateJobProgress(jobID, 0, total, "Scanning notes")

	rows, err := s.runner.Run(ctx, notes, func(done, total int) {
		s.jobManager.UpdateJobProgress(jobID, done, total, "Scanning notes")
	})
	if err != nil {
		return fmt.Errorf("scan batch interrupted: %w", err)
	}

	s.jobManager.SetResults(jobID, rows)
	s.jobManager.RecordNotesScanned(total)
	s.jobManager.UpdateJobProgress(jobID, total, total, fmt.Sprintf("Scanned %d notes", total))
	s.logger.Debug("scan batch stored", zap.String("job_id", jobID), zap.Int("rows", len(rows)))
	return nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(jobID string) (*model.Job, error) {
	return s.jobManager.GetJob(jobID)
}

// ListJobs lists jobs, optionally filtered by status.
func (s *Service) ListJobs(status *model.JobStatus) []*model.Job {
	return s.jobManager.ListJobs(status)
}

// CancelJob asks a job to stop.
func (s *Service) CancelJob(jobID string) error {
	return s.jobManager.CancelJob(jobID)
}

// GetJobResults returns the rows of a completed job, sorted by note ID.
func (s *Service) GetJobResults(jobID string) ([]model.Row, error) {
	return s.jobManager.GetResults(jobID)
}

// GetJobMetrics returns job performance metrics.
func (s *Service) GetJobMetrics() jobs.JobMetricsData {
	return s.jobManager.GetMetrics()
}

// GetJobSuccessRate returns the overall job success rate.
func (s *Service) GetJobSuccessRate() float64 {
	return s.jobManager.GetJobSuccessRate()
}

// GetCurrentWorkload returns the number of pending and running jobs.
func (s *Service) GetCurrentWorkload() int64 {
	return s.jobManager.GetCurrentWorkload()
}
