// Package executor defines the Executor contract: mapping a (blueprint,
// case) pair to a CaseExecution. Two implementations are provided in
// subpackages: mock (deterministic) and grpcbridge (external runtime, with
// timeout/retry/circuit-breaker).
package executor

import (
	"context"

	"station-aflowx-optimizer/internal/domain"
)

// Executor runs one case against one blueprint.
type Executor interface {
	Execute(ctx context.Context, bp domain.WorkflowBlueprint, c domain.SyntheticCase) (domain.CaseExecution, error)
	FetchSchemaSnapshot(ctx context.Context) (domain.SchemaSnapshot, error)
	FetchToolCatalog(ctx context.Context) ([]domain.Tool, error)
}

// Runtime error output markers surfaced in a CaseExecution's Output when
// the runtime itself (not the judge) fails to produce a real answer.
const (
	OutputTimeout        = "RUNTIME_ERROR[TIMEOUT]"
	OutputExecutionError = "RUNTIME_ERROR[EXECUTION_ERROR]"
	OutputCircuitOpen    = "RUNTIME_ERROR[CIRCUIT_OPEN]"
)
