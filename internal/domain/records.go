package domain

import "time"

// Lifecycle is the deployment state of an AgentVersionRecord.
type Lifecycle string

const (
	LifecycleDraft     Lifecycle = "DRAFT"
	LifecycleValidated Lifecycle = "VALIDATED"
	LifecycleDeployed  Lifecycle = "DEPLOYED"
	LifecycleArchived  Lifecycle = "ARCHIVED"
)

// AgentVersionRecord is one persisted, versioned blueprint artifact for an
// agent. Versions are monotonic per agent, first=1; at most one DEPLOYED
// version exists per agent at any time.
type AgentVersionRecord struct {
	TenantID     string    `json:"tenant_id"`
	AgentName    string    `json:"agent_name"`
	Version      int64     `json:"version"`
	Lifecycle    Lifecycle `json:"lifecycle"`
	BlueprintID  string    `json:"blueprint_id"`
	Score        float64   `json:"score"`
	ArtifactPath string    `json:"artifact_path"`
	CreatedAt    time.Time `json:"created_at"`
	Notes        string    `json:"notes,omitempty"`
}

// ArtifactType names one of the fixed kinds of per-run artifact.
type ArtifactType string

const (
	ArtifactWorkflowYAML         ArtifactType = "workflow_yaml"
	ArtifactDatasetReport        ArtifactType = "dataset_report"
	ArtifactRoundTraces          ArtifactType = "round_traces"
	ArtifactPromptVariants       ArtifactType = "prompt_variants"
	ArtifactRunSummary           ArtifactType = "run_summary"
	ArtifactManualParityReport   ArtifactType = "manual_parity_report"
	ArtifactManualParityCaseRpt  ArtifactType = "manual_parity_case_report"
)

// ArtifactIndexEntry is one row of a run's artifact index.
type ArtifactIndexEntry struct {
	RunID        string       `json:"run_id"`
	ArtifactType ArtifactType `json:"artifact_type"`
	URI          string       `json:"uri"`
	Checksum     string       `json:"checksum"`
	SizeBytes    int64        `json:"size_bytes"`
	CreatedAt    time.Time    `json:"created_at"`
}

// OptimizationRun is one end-to-end optimize() invocation.
type OptimizationRun struct {
	RunID            string               `json:"run_id"`
	TenantID         string               `json:"tenant_id"`
	AgentName        string               `json:"agent_name"`
	TaskDesc         string               `json:"task_desc"`
	ArtifactDir      string               `json:"artifact_dir"`
	BestBlueprintID  string               `json:"best_blueprint_id"`
	BestTrainScore   float64              `json:"best_train_score"`
	BestValScore     *float64             `json:"best_val_score,omitempty"`
	BestTestScore    *float64             `json:"best_test_score,omitempty"`
	RoundTraces      []SearchRoundTrace   `json:"round_traces"`
	ArtifactIndex    []ArtifactIndexEntry `json:"artifact_index"`
	CreatedAt        time.Time            `json:"created_at"`
}

// JobStatus is the lifecycle state of an AsyncJobRecord.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobType names the kind of work an async job performs.
type JobType string

const (
	JobTypeOptimize      JobType = "optimize"
	JobTypeManualParity  JobType = "manual_parity"
)

// AsyncJobRecord is one queued/running/finished background job.
type AsyncJobRecord struct {
	JobID     string            `json:"job_id"`
	JobType   JobType           `json:"job_type"`
	TenantID  string            `json:"tenant_id"`
	AgentName string            `json:"agent_name"`
	Status    JobStatus         `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Result    []byte            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IdempotencyStatus is the state of one IdempotencyRecord.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is one (scope,key) replay-guard entry.
type IdempotencyRecord struct {
	Scope     string            `json:"scope"`
	Key       string            `json:"key"`
	Status    IdempotencyStatus `json:"status"`
	Response  []byte            `json:"response,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
