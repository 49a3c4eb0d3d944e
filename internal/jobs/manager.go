package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/internal/logging"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/model"
)

const (
	cleanupInterval = 1 * time.Hour
	maxJobAge       = 24 * time.Hour
)

// Manager handles background job execution and tracking
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	results  map[string][]model.Row
	cancels  map[string]context.CancelFunc
	workers  chan struct{} // Limits concurrent jobs
	stopChan chan struct{}
	stopOnce sync.Once
	stopped  bool // guarded by mu; no wg.Add once set
	wg       sync.WaitGroup
	metrics  *JobMetrics
	prom     *metrics.Metrics
	logger   *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for job lifecycle events
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMetrics records final job statuses on the Prometheus collectors
func WithMetrics(pm *metrics.Metrics) Option {
	return func(m *Manager) { m.prom = pm }
}

// NewManager creates a new job manager with specified worker count
func NewManager(maxWorkers int, opts ...Option) *Manager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	m := &Manager{
		jobs:     make(map[string]*model.Job),
		results:  make(map[string][]model.Row),
		cancels:  make(map[string]context.CancelFunc),
		workers:  make(chan struct{}, maxWorkers),
		stopChan: make(chan struct{}),
		metrics:  NewJobMetrics(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the job manager and starts background cleanup
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.logger.Info("job manager started", zap.Int("max_workers", cap(m.workers)))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupRoutine()
	}()
}

// Stop cancels running jobs and waits for them to return. It is safe to call
// more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		close(m.stopChan)
		for _, cancel := range m.cancels {
			cancel()
		}
		m.mu.Unlock()

		m.wg.Wait()
		m.logger.Info("job manager stopped")
	})
}

// CreateJob creates a new job and returns its ID
func (m *Manager) CreateJob(jobType model.JobType, metadata map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	m.jobs[job.ID] = job
	m.metrics.RecordJobCreated(jobType)
	m.logger.Debug("job created", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return job.ID
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	return copyJob(job), nil
}

// ListJobs returns all jobs, optionally filtered by status, oldest first
func (m *Manager) ListJobs(status *model.JobStatus) []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if status == nil || job.Status == *status {
			result = append(result, copyJob(job))
		}
	}
	sortJobs(result)
	return result
}

// ExecuteJob queues a job function and returns immediately. The function runs
// once a worker slot is free; the context it receives is cancelled by
// CancelJob and by Stop.
func (m *Manager) ExecuteJob(jobID string, jobFunc func(ctx context.Context, job *model.Job) error) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("job manager is shutting down")
	}

	job, exists := m.jobs[jobID]
	if !exists {
		m.mu.Unlock()
		return errors.NewJobNotFoundError(jobID)
	}

	if job.Status != model.JobStatusPending {
		m.mu.Unlock()
		return fmt.Errorf("job with ID '%s' is not in pending status (current: %s)", jobID, job.Status)
	}

	jobType := job.Type
	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[jobID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()

		// Acquire worker slot
		select {
		case m.workers <- struct{}{}:
			defer func() { <-m.workers }()
		case <-ctx.Done():
			m.cancelQueued(jobID, jobType, "job cancelled before it started")
			return
		case <-m.stopChan:
			m.cancelQueued(jobID, jobType, "job manager shutting down")
			return
		}

		snapshot, ok := m.markRunning(ctx, jobID)
		if !ok {
			m.cancelQueued(jobID, jobType, "job cancelled before it started")
			return
		}

		startTime := time.Now()
		err := jobFunc(ctx, snapshot)
		executionTime := time.Since(startTime)

		switch {
		case err != nil && ctx.Err() != nil:
			m.finishJob(jobID, model.JobStatusCancelled, err.Error())
			m.metrics.RecordJobCancelled(snapshot.Type)
			m.logger.Warn("job cancelled", zap.String("job_id", jobID), zap.Duration("took", executionTime))
		case err != nil:
			m.finishJob(jobID, model.JobStatusFailed, err.Error())
			m.metrics.RecordJobFailed(snapshot.Type)
			m.logger.Error("job failed", zap.String("job_id", jobID), zap.Duration("took", executionTime), zap.Error(err))
		default:
			m.finishJob(jobID, model.JobStatusCompleted, "")
			m.metrics.RecordJobCompleted(snapshot.Type, executionTime)
			m.logger.Info("job completed", zap.String("job_id", jobID), zap.Duration("took", executionTime))
		}
	}()

	return nil
}

// cancelQueued finishes a job that never ran
func (m *Manager) cancelQueued(jobID string, jobType model.JobType, reason string) {
	m.finishJob(jobID, model.JobStatusCancelled, reason)
	m.metrics.RecordJobCancelled(jobType)
	m.logger.Info("queued job cancelled", zap.String("job_id", jobID), zap.String("reason", reason))
}

// markRunning moves a job that was not cancelled while queued to running
func (m *Manager) markRunning(ctx context.Context, jobID string) (*model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || ctx.Err() != nil {
		return nil, false
	}

	oldStatus := job.Status
	job.Status = model.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	m.metrics.RecordJobStatusChange(oldStatus, job.Status)
	return copyJob(job), true
}

// CancelJob asks a pending or running job to stop
func (m *Manager) CancelJob(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return errors.NewJobNotFoundError(jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job with ID '%s' already finished (status: %s)", jobID, job.Status)
	}

	oldStatus := job.Status
	job.Status = model.JobStatusCancelling
	m.metrics.RecordJobStatusChange(oldStatus, job.Status)
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
	}
	return nil
}

// UpdateJobProgress updates the progress of a running job
func (m *Manager) UpdateJobProgress(jobID string, current, total int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}

	if job.Progress == nil {
		job.Progress = &model.JobProgress{}
	}

	job.Progress.Current = current
	job.Progress.Total = total
	job.Progress.Message = message
}

// SetResults stores the rows produced by a job
func (m *Manager) SetResults(jobID string, rows []model.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobID]; exists {
		m.results[jobID] = rows
	}
}

// GetResults returns the rows of a completed job
func (m *Manager) GetResults(jobID string) ([]model.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	if job.Status != model.JobStatusCompleted {
		return nil, errors.NewJobNotFinishedError(jobID, string(job.Status))
	}
	return m.results[jobID], nil
}

// finishJob moves a job to a terminal status (internal method)
func (m *Manager) finishJob(jobID string, status model.JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cancels, jobID)

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}

	oldStatus := job.Status
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	now := time.Now()
	job.CompletedAt = &now

	m.metrics.RecordJobStatusChange(oldStatus, status)
	m.prom.ObserveJob(status)
}

// cleanupRoutine runs periodic job cleanup
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupOldJobs(maxJobAge)
		case <-m.stopChan:
			return
		}
	}
}

// CleanupOldJobs removes finished jobs, and their results, older than maxAge
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0

	for jobID, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, jobID)
			delete(m.results, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		m.logger.Info("cleaned up old jobs", zap.Int("count", cleaned))
	}
	return cleaned
}

// GetMetrics returns current job performance metrics
func (m *Manager) GetMetrics() JobMetricsData {
	return m.metrics.GetMetrics()
}

// GetJobSuccessRate returns the overall job success rate
func (m *Manager) GetJobSuccessRate() float64 {
	return m.metrics.GetSuccessRate()
}

// GetCurrentWorkload returns the number of currently active jobs
func (m *Manager) GetCurrentWorkload() int64 {
	return m.metrics.GetCurrentWorkload()
}

func copyJob(job *model.Job) *model.Job {
	jobCopy := *job
	if job.Progress != nil {
		progressCopy := *job.Progress
		jobCopy.Progress = &progressCopy
	}
	return &jobCopy
}

// RecordNotesScanned adds to the notes counter reported by GetMetrics
func (m *Manager) RecordNotesScanned(n int) {
	m.metrics.RecordNotesScanned(n)
}
