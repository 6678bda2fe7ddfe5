// Package metrics is the service's in-process request/job counter
// registry, serving the `/metrics` JSON snapshot. Mutex-guarded, with no
// hidden globals, the same discipline as internal/db.SQLiteWriteMutex.
package metrics

import "sync"

// EndpointStats accumulates counts and latency for one "METHOD /path" key.
type EndpointStats struct {
	Count        int64   `json:"count"`
	ErrorCount   int64   `json:"error_count"`
	LatencyMsSum float64 `json:"latency_ms_sum"`
	LatencyMsAvg float64 `json:"latency_ms_avg"`
}

// Snapshot is the exact JSON shape served by GET /metrics.
type Snapshot struct {
	RequestsTotal         int64                    `json:"requests_total"`
	ErrorsTotal           int64                    `json:"errors_total"`
	AsyncJobsSubmitted    int64                    `json:"async_jobs_submitted_total"`
	AsyncJobsSucceeded    int64                    `json:"async_jobs_succeeded_total"`
	AsyncJobsFailed       int64                    `json:"async_jobs_failed_total"`
	Endpoints             map[string]EndpointStats `json:"endpoints"`
}

// Registry is the mutex-guarded counter/histogram map behind Snapshot.
type Registry struct {
	mu sync.Mutex

	requestsTotal      int64
	errorsTotal        int64
	asyncJobsSubmitted int64
	asyncJobsSucceeded int64
	asyncJobsFailed    int64
	endpoints          map[string]*EndpointStats
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{endpoints: map[string]*EndpointStats{}}
}

// RecordRequest accumulates one HTTP request's outcome under key
// (e.g. "POST /v1/agents/optimize").
func (r *Registry) RecordRequest(key string, latencyMs float64, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestsTotal++
	if isError {
		r.errorsTotal++
	}

	stats, ok := r.endpoints[key]
	if !ok {
		stats = &EndpointStats{}
		r.endpoints[key] = stats
	}
	stats.Count++
	if isError {
		stats.ErrorCount++
	}
	stats.LatencyMsSum += latencyMs
	stats.LatencyMsAvg = stats.LatencyMsSum / float64(stats.Count)
}

// RecordJobSubmitted increments the async-jobs-submitted counter.
func (r *Registry) RecordJobSubmitted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asyncJobsSubmitted++
}

// RecordJobFinished increments the succeeded or failed job counter.
func (r *Registry) RecordJobFinished(succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if succeeded {
		r.asyncJobsSucceeded++
	} else {
		r.asyncJobsFailed++
	}
}

// Snapshot returns a deep copy of the current counters, safe to serialize.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	endpoints := make(map[string]EndpointStats, len(r.endpoints))
	for k, v := range r.endpoints {
		endpoints[k] = *v
	}

	return Snapshot{
		RequestsTotal:      r.requestsTotal,
		ErrorsTotal:        r.errorsTotal,
		AsyncJobsSubmitted: r.asyncJobsSubmitted,
		AsyncJobsSucceeded: r.asyncJobsSucceeded,
		AsyncJobsFailed:    r.asyncJobsFailed,
		Endpoints:          endpoints,
	}
}
