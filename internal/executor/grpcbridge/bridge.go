// Package grpcbridge implements the external-runtime Executor: a gRPC
// client to the downstream system that materializes and runs a blueprint,
// with per-call timeout, exponential-backoff retry, and a circuit breaker.
// Retry/backoff is hand-rolled in the same style as internal/db/db.go's
// connection-retry loop, rather than pulling in a dedicated backoff library.
package grpcbridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/executor"
	"station-aflowx-optimizer/internal/executor/circuitbreaker"
	"station-aflowx-optimizer/internal/executor/grpcbridge/externalpb"
	"station-aflowx-optimizer/internal/workflowyaml"
)

var tracer = otel.Tracer("station-aflowx-optimizer/executor/grpcbridge")

// Config controls the bridge's resilience behavior.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	Backoff      time.Duration
	CircuitThreshold int
	CircuitReset time.Duration
}

// Executor is the external-runtime bridge.
type Executor struct {
	client   externalpb.RuntimeClient
	cfg      Config
	breaker  *circuitbreaker.Breaker
}

// New wraps a RuntimeClient with the configured resilience policy.
func New(client externalpb.RuntimeClient, cfg Config) *Executor {
	return &Executor{
		client:  client,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.CircuitThreshold, cfg.CircuitReset),
	}
}

func (e *Executor) FetchSchemaSnapshot(ctx context.Context) (domain.SchemaSnapshot, error) {
	resp, err := e.client.FetchSchema(ctx, &struct{}{})
	if err != nil {
		return domain.SchemaSnapshot{}, err
	}
	return domain.SchemaSnapshot{Labels: resp.Labels, Relations: resp.Relations}, nil
}

func (e *Executor) FetchToolCatalog(ctx context.Context) ([]domain.Tool, error) {
	resp, err := e.client.FetchToolCatalog(ctx, &struct{}{})
	if err != nil {
		return nil, err
	}
	tools := make([]domain.Tool, len(resp.Tools))
	for i, t := range resp.Tools {
		tools[i] = domain.Tool{Name: t.Name, ModulePath: t.ModulePath, Description: t.Description, Tags: t.Tags, ToolType: t.ToolType}
	}
	return tools, nil
}

// Execute enforces the per-call timeout, retry-with-backoff, and circuit
// breaker. It never returns a Go error for runtime-level failures: those
// are absorbed into the CaseExecution's Output/Score as a runtime-error
// marker, so one bad case never halts evaluation of the dataset.
func (e *Executor) Execute(ctx context.Context, bp domain.WorkflowBlueprint, c domain.SyntheticCase) (domain.CaseExecution, error) {
	ctx, span := tracer.Start(ctx, "grpcbridge.Execute")
	defer span.End()

	if !e.breaker.Allow() {
		return circuitOpenExecution(c), nil
	}

	yamlBytes, err := workflowyaml.Render(bp)
	if err != nil {
		// materialization failure is treated as execution failure
		return domain.CaseExecution{
			CaseID:    c.CaseID,
			Question:  c.Question,
			Expected:  c.Verifier,
			Output:    executor.OutputExecutionError,
			Score:     0,
			Rationale: "runtime output before LLM judge",
		}, nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(e.cfg.Backoff * time.Duration(1<<(attempt-1)))
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		resp, err := e.client.ExecuteCase(callCtx, &externalpb.ExecuteCaseRequest{
			BlueprintYAML: string(yamlBytes),
			CaseID:        c.CaseID,
			Question:      c.Question,
			Expected:      c.Verifier,
		})
		cancel()
		if err == nil {
			e.breaker.RecordSuccess()
			return domain.CaseExecution{
				CaseID:    c.CaseID,
				Question:  c.Question,
				Expected:  c.Verifier,
				Output:    resp.Output,
				Score:     0,
				Rationale: "runtime output before LLM judge",
				LatencyMs: resp.LatencyMs,
				TokenCost: resp.TokenCost,
			}, nil
		}
		lastErr = err
		if callCtx.Err() == context.DeadlineExceeded {
			lastErr = context.DeadlineExceeded
		}
	}

	e.breaker.RecordFailure()
	output := executor.OutputExecutionError
	if lastErr == context.DeadlineExceeded {
		output = executor.OutputTimeout
	}
	return domain.CaseExecution{
		CaseID:    c.CaseID,
		Question:  c.Question,
		Expected:  c.Verifier,
		Output:    output,
		Score:     0,
		Rationale: "runtime output before LLM judge",
	}, nil
}

func circuitOpenExecution(c domain.SyntheticCase) domain.CaseExecution {
	return domain.CaseExecution{
		CaseID:    c.CaseID,
		Question:  c.Question,
		Expected:  c.Verifier,
		Output:    executor.OutputCircuitOpen,
		Score:     0,
		Rationale: "runtime output before LLM judge",
	}
}
