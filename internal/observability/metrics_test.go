package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/tickets/:id", "GET", "NOT_FOUND")
	m.RecordProjectorBatch(10, 4, 1)
	m.RecordProjectorFailure()

	s := m.Snapshot()
	require.EqualValues(t, 2, s.Requests["/tickets|POST|201"])
	require.EqualValues(t, 1, s.Errors["/tickets/:id|GET|NOT_FOUND"])
	require.Equal(t, ProjectorCounters{Batches: 1, Events: 10, RowsWritten: 4, Duplicates: 1, Failures: 1}, s.Projector)

	s.Requests["/tickets|POST|201"] = 99
	require.EqualValues(t, 2, m.Snapshot().Requests["/tickets|POST|201"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordProjectorBatch(1, 1, 0)
	m.RecordProjectorFailure()
	require.Empty(t, m.Snapshot().Requests)
}
