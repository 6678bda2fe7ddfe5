// Package jobqueue is the in-process async job queue for long-running
// optimize/manual-parity runs, backed by a channel-fed worker pool.
package jobqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"station-aflowx-optimizer/internal/domain"
)

// Runner performs one job's work and returns its serialized result payload.
type Runner func() ([]byte, error)

type request struct {
	jobID  string
	runner Runner
}

// Queue is a bounded worker-pool job queue: Submit enqueues a runner and
// returns immediately with a queued AsyncJobRecord; a fixed pool of
// goroutines drains the request channel.
type Queue struct {
	mu      sync.RWMutex
	jobs    map[string]domain.AsyncJobRecord
	reqs    chan request
	done    chan struct{}
	wg      sync.WaitGroup
}

// New starts a Queue with numWorkers goroutines (default 2, per
// job_queue.py's ThreadPoolExecutor default).
func New(numWorkers int) *Queue {
	if numWorkers <= 0 {
		numWorkers = 2
	}
	q := &Queue{
		jobs: map[string]domain.AsyncJobRecord{},
		reqs: make(chan request, 64),
		done: make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Stop closes the done channel and waits for every worker to return. A job
// a worker is already running finishes first; requests still waiting in the
// request channel are not guaranteed to run.
func (q *Queue) Stop() {
	close(q.done)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case r, ok := <-q.reqs:
			if !ok {
				return
			}
			q.execute(r)
		}
	}
}

// Submit enqueues runner under a new job_id and returns its queued record
// immediately; the runner executes asynchronously on the worker pool.
func (q *Queue) Submit(jobType domain.JobType, tenantID, agentName string, metadata map[string]string, runner Runner) domain.AsyncJobRecord {
	now := time.Now().UTC()
	job := domain.AsyncJobRecord{
		JobID:     fmt.Sprintf("job-%s", uuid.NewString()[:12]),
		JobType:   jobType,
		TenantID:  tenantID,
		AgentName: agentName,
		Status:    domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}

	q.mu.Lock()
	q.jobs[job.JobID] = job
	q.mu.Unlock()

	q.reqs <- request{jobID: job.JobID, runner: runner}
	return job
}

// Get returns a copy of one job's current record.
func (q *Queue) Get(jobID string) (domain.AsyncJobRecord, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[jobID]
	return job, ok
}

func (q *Queue) execute(r request) {
	q.setRunning(r.jobID)
	result, err := r.runner()
	if err != nil {
		q.setFailed(r.jobID, err.Error())
		return
	}
	q.setSucceeded(r.jobID, result)
}

func (q *Queue) setRunning(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	job.Status = domain.JobRunning
	job.UpdatedAt = time.Now().UTC()
	q.jobs[jobID] = job
}

func (q *Queue) setSucceeded(jobID string, result []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	job.Status = domain.JobSucceeded
	job.Result = result
	job.Error = ""
	job.UpdatedAt = time.Now().UTC()
	q.jobs[jobID] = job
}

func (q *Queue) setFailed(jobID, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	job.Status = domain.JobFailed
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	q.jobs[jobID] = job
}
