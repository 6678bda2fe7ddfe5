package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RecordRequest(t *testing.T) {
	r := New()

	r.RecordRequest("GET /healthz", 10, false)
	r.RecordRequest("GET /healthz", 30, false)
	r.RecordRequest("GET /healthz", 0, true)

	snap := r.Snapshot()
	assert.Equal(t, int64(3), snap.RequestsTotal)
	assert.Equal(t, int64(1), snap.ErrorsTotal)

	stats := snap.Endpoints["GET /healthz"]
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, 40.0, stats.LatencyMsSum)
	assert.InDelta(t, 13.33, stats.LatencyMsAvg, 0.01)
}

func TestRegistry_RecordJobCounters(t *testing.T) {
	r := New()

	r.RecordJobSubmitted()
	r.RecordJobSubmitted()
	r.RecordJobFinished(true)
	r.RecordJobFinished(false)

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.AsyncJobsSubmitted)
	assert.Equal(t, int64(1), snap.AsyncJobsSucceeded)
	assert.Equal(t, int64(1), snap.AsyncJobsFailed)
}

func TestRegistry_SnapshotIsolatesEndpointMap(t *testing.T) {
	r := New()
	r.RecordRequest("GET /metrics", 5, false)

	snap := r.Snapshot()
	snap.Endpoints["GET /metrics"] = EndpointStats{Count: 999}

	fresh := r.Snapshot()
	assert.Equal(t, int64(1), fresh.Endpoints["GET /metrics"].Count)
}
