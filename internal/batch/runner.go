// Package batch scans many notes in parallel with a bounded worker pool.
package batch

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/medlex-spotter/internal/logging"
	"github.com/gcbaptista/medlex-spotter/internal/metrics"
	"github.com/gcbaptista/medlex-spotter/model"
	"github.com/gcbaptista/medlex-spotter/services"
)

// ProgressFunc is called after each note with the number of notes done so
// far. It may be called from several goroutines at once.
type ProgressFunc func(done, total int)

// Runner fans notes out to a Scanner.
type Runner struct {
	scanner services.Scanner
	workers int
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of notes scanned at once. Values below 1 mean
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		r.workers = n
	}
}

// WithMetrics records per-note scan metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = logging.OrNop(l) }
}

// New creates a Runner.
func New(scanner services.Scanner, opts ...Option) *Runner {
	r := &Runner{
		scanner: scanner,
		workers: runtime.NumCPU(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workers returns the pool size.
func (r *Runner) Workers() int { return r.workers }

// Run scans every note and returns one row per note, sorted by ascending
// note ID. Notes with equal IDs keep their input order. Run stops between
// notes when ctx is cancelled and returns ctx.Err() without partial output.
func (r *Runner) Run(ctx context.Context, notes []model.Note, progress ProgressFunc) ([]model.Row, error) {
	total := len(notes)
	rows := make([]model.Row, total)
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var done atomic.Int64
	for i := range notes {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			note := notes[i]
			t0 := time.Now()
			result := r.scanner.Scan(note.Text)
			r.metrics.ObserveNote(result, time.Since(t0))

			rows[i] = model.Row{NoteID: note.NoteID, NoteResult: result}
			n := int(done.Add(1))
			if progress != nil {
				progress(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].NoteID < rows[b].NoteID })

	r.logger.Info("batch scanned",
		zap.Int("notes", total),
		zap.Int("workers", r.workers),
		zap.Duration("took", time.Since(started)),
	)
	return rows, nil
}
