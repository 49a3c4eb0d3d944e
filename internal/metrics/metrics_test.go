package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/medlex-spotter/model"
)

func TestObserveNote(t *testing.T) {
	m := New()

	m.ObserveNote(model.NoteResult{
		Flags: map[string]int{"has_metformin": 1, "has_aspirin": 0},
		Spans: []model.Span{
			{Source: "METFORMIN", Method: "exact"},
			{Source: "METFORMIN", Method: "fuzzy", IsNegated: true},
		},
	}, 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits.WithLabelValues("exact", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits.WithLabelValues("fuzzy", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlagsSet.WithLabelValues("has_metformin")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FlagsSet.WithLabelValues("has_aspirin")))
}

func TestObserveJobAndRequest(t *testing.T) {
	m := New()

	m.ObserveJob(model.JobStatusCompleted)
	m.ObserveJob(model.JobStatusCompleted)
	m.ObserveJob(model.JobStatusFailed)
	m.ObserveRequest("POST", "/scan", "200", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Jobs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/scan", "200")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["medlex_jobs_finished_total"])
	assert.True(t, names["medlex_http_request_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveNote(model.NoteResult{}, time.Millisecond)
		m.ObserveJob(model.JobStatusFailed)
		m.ObserveRequest("GET", "/health", "200", time.Millisecond)
		assert.Nil(t, m.Registry())
	})
}
