package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/model"
)

func waitForStatus(t *testing.T, m *Manager, jobID string, want model.JobStatus) *model.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetJob(jobID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.GetJob(jobID)
	t.Fatalf("Job %s did not reach status %s (current: %s)", jobID, want, job.Status)
	return nil
}

func TestJobManager_CreateJob(t *testing.T) {
	manager := NewManager(2)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeScanBatch, map[string]string{
		"notes": "3",
	})

	if jobID == "" {
		t.Error("Expected non-empty job ID")
	}

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get created job: %v", err)
	}

	if job.Type != model.JobTypeScanBatch {
		t.Errorf("Expected job type %s, got %s", model.JobTypeScanBatch, job.Type)
	}

	if job.Status != model.JobStatusPending {
		t.Errorf("Expected job status %s, got %s", model.JobStatusPending, job.Status)
	}

	if job.Metadata["notes"] != "3" {
		t.Errorf("Expected metadata notes=3, got %v", job.Metadata)
	}
}

func TestJobManager_ExecuteJob(t *testing.T) {
	manager := NewManager(2)
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeScanBatch, nil)

	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.UpdateJobProgress(jobID, 1, 2, "scanning")
		manager.UpdateJobProgress(jobID, 2, 2, "done")
		manager.SetResults(jobID, []model.Row{{NoteID: 7}})
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	job := waitForStatus(t, manager, jobID, model.JobStatusCompleted)

	if job.Progress == nil {
		t.Fatal("Expected job progress to be set")
	}
	if job.Progress.Current != 2 || job.Progress.Total != 2 {
		t.Errorf("Expected progress 2/2, got %d/%d", job.Progress.Current, job.Progress.Total)
	}
	if job.Progress.GetProgressPercentage() != 100 {
		t.Errorf("Expected 100%%, got %f", job.Progress.GetProgressPercentage())
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Error("Expected start and completion times to be set")
	}

	rows, err := manager.GetResults(jobID)
	if err != nil {
		t.Fatalf("Failed to get results: %v", err)
	}
	if len(rows) != 1 || rows[0].NoteID != 7 {
		t.Errorf("Unexpected results: %+v", rows)
	}
}

func TestJobManager_FailedJob(t *testing.T) {
	pm := metrics.New()
	manager := NewManager(1, WithMetrics(pm))
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeScanBatch, nil)
	if err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	job := waitForStatus(t, manager, jobID, model.JobStatusFailed)
	if job.Error != "boom" {
		t.Errorf("Expected error 'boom', got %q", job.Error)
	}

	_, err := manager.GetResults(jobID)
	if !errors.Is(err, apperrors.ErrJobNotFinished) {
		t.Errorf("Expected ErrJobNotFinished, got %v", err)
	}

	m := manager.GetMetrics()
	if m.JobsFailed != 1 {
		t.Errorf("Expected 1 failed job, got %d", m.JobsFailed)
	}
	if manager.GetJobSuccessRate() != 0 {
		t.Errorf("Expected success rate 0, got %f", manager.GetJobSuccessRate())
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	started := make(chan struct{})
	jobID := manager.CreateJob(model.JobTypeScanBatch, nil)
	if err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	<-started
	if err := manager.CancelJob(jobID); err != nil {
		t.Fatalf("Failed to cancel job: %v", err)
	}

	waitForStatus(t, manager, jobID, model.JobStatusCancelled)

	if err := manager.CancelJob(jobID); err == nil {
		t.Error("Expected error cancelling a finished job")
	}
	if manager.GetMetrics().JobsCancelled != 1 {
		t.Errorf("Expected 1 cancelled job, got %d", manager.GetMetrics().JobsCancelled)
	}
}

func TestJobManager_QueuedJobWaitsForSlot(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	release := make(chan struct{})
	first := manager.CreateJob(model.JobTypeScanBatch, nil)
	second := manager.CreateJob(model.JobTypeScanBatch, nil)

	_ = manager.ExecuteJob(first, func(ctx context.Context, job *model.Job) error {
		<-release
		return nil
	})
	waitForStatus(t, manager, first, model.JobStatusRunning)

	_ = manager.ExecuteJob(second, func(ctx context.Context, job *model.Job) error { return nil })

	job, _ := manager.GetJob(second)
	if job.Status != model.JobStatusPending {
		t.Errorf("Expected queued job to stay pending, got %s", job.Status)
	}
	if manager.GetCurrentWorkload() != 2 {
		t.Errorf("Expected workload 2, got %d", manager.GetCurrentWorkload())
	}

	close(release)
	waitForStatus(t, manager, second, model.JobStatusCompleted)
}

func TestJobManager_NotFound(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	if _, err := manager.GetJob("missing"); !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if _, err := manager.GetResults("missing"); !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
	if err := manager.ExecuteJob("missing", nil); !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobManager_ListAndCleanup(t *testing.T) {
	manager := NewManager(2)
	defer manager.Stop()

	done := manager.CreateJob(model.JobTypeScanBatch, nil)
	_ = manager.CreateJob(model.JobTypeScanBatch, nil)
	_ = manager.ExecuteJob(done, func(ctx context.Context, job *model.Job) error { return nil })
	waitForStatus(t, manager, done, model.JobStatusCompleted)

	if got := len(manager.ListJobs(nil)); got != 2 {
		t.Errorf("Expected 2 jobs, got %d", got)
	}
	completed := model.JobStatusCompleted
	if got := manager.ListJobs(&completed); len(got) != 1 || got[0].ID != done {
		t.Errorf("Expected only the completed job, got %+v", got)
	}

	if cleaned := manager.CleanupOldJobs(0); cleaned != 1 {
		t.Errorf("Expected 1 job cleaned, got %d", cleaned)
	}
	if _, err := manager.GetJob(done); err == nil {
		t.Error("Expected cleaned job to be gone")
	}
}

func TestJobManager_StopRejectsNewJobs(t *testing.T) {
	manager := NewManager(1)
	jobID := manager.CreateJob(model.JobTypeScanBatch, nil)
	manager.Stop()
	manager.Stop()

	if err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error { return nil }); err == nil {
		t.Error("Expected error executing after Stop")
	}
}

func TestJobManager_CancelQueuedJob(t *testing.T) {
	manager := NewManager(1)
	defer manager.Stop()

	release := make(chan struct{})
	first := manager.CreateJob(model.JobTypeScanBatch, nil)
	second := manager.CreateJob(model.JobTypeScanBatch, nil)

	_ = manager.ExecuteJob(first, func(ctx context.Context, job *model.Job) error {
		<-release
		return nil
	})
	waitForStatus(t, manager, first, model.JobStatusRunning)

	var ran atomic.Bool
	_ = manager.ExecuteJob(second, func(ctx context.Context, job *model.Job) error {
		ran.Store(true)
		return nil
	})
	if err := manager.CancelJob(second); err != nil {
		t.Fatalf("Failed to cancel queued job: %v", err)
	}

	job := waitForStatus(t, manager, second, model.JobStatusCancelled)
	if job.Error != "job cancelled before it started" {
		t.Errorf("Unexpected error message %q", job.Error)
	}
	if got := manager.GetMetrics().JobsCancelled; got != 1 {
		t.Errorf("Expected 1 cancelled job, got %d", got)
	}

	close(release)
	waitForStatus(t, manager, first, model.JobStatusCompleted)
	if ran.Load() {
		t.Error("Cancelled job must not run")
	}
}

func TestJobManager_StopCancelsQueuedJobs(t *testing.T) {
	manager := NewManager(1)

	running := manager.CreateJob(model.JobTypeScanBatch, nil)
	queued := manager.CreateJob(model.JobTypeScanBatch, nil)
	_ = manager.ExecuteJob(running, func(ctx context.Context, job *model.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})
	waitForStatus(t, manager, running, model.JobStatusRunning)
	_ = manager.ExecuteJob(queued, func(ctx context.Context, job *model.Job) error { return nil })

	manager.Stop()

	for _, id := range []string{running, queued} {
		job, err := manager.GetJob(id)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if job.Status != model.JobStatusCancelled {
			t.Errorf("Expected job %s cancelled after Stop, got %s", id, job.Status)
		}
	}
	if got := manager.GetMetrics().JobsCancelled; got != 2 {
		t.Errorf("Expected 2 cancelled jobs, got %d", got)
	}
}

func TestJobManager_ExecuteDuringStop(t *testing.T) {
	manager := NewManager(2)

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = manager.CreateJob(model.JobTypeScanBatch, nil)
	}

	accepted := make(chan string, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			err := manager.ExecuteJob(id, func(ctx context.Context, job *model.Job) error { return nil })
			if err == nil {
				accepted <- id
			}
		}(id)
	}

	close(start)
	manager.Stop()
	wg.Wait()
	close(accepted)

	// Stop waits for every job ExecuteJob accepted.
	for id := range accepted {
		job, err := manager.GetJob(id)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if !job.Status.IsTerminal() {
			t.Errorf("Job %s still %s after Stop", id, job.Status)
		}
	}
}
