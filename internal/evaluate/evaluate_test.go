package evaluate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-aflowx-optimizer/internal/domain"
)

type stubExecutor struct {
	outputs map[string]string
	err     map[string]error
}

func (s stubExecutor) Execute(ctx context.Context, bp domain.WorkflowBlueprint, c domain.SyntheticCase) (domain.CaseExecution, error) {
	if err, ok := s.err[c.CaseID]; ok {
		return domain.CaseExecution{}, err
	}
	return domain.CaseExecution{CaseID: c.CaseID, Question: c.Question, Expected: c.Verifier, Output: s.outputs[c.CaseID]}, nil
}

func (s stubExecutor) FetchSchemaSnapshot(ctx context.Context) (domain.SchemaSnapshot, error) {
	return domain.SchemaSnapshot{}, nil
}

func (s stubExecutor) FetchToolCatalog(ctx context.Context) ([]domain.Tool, error) { return nil, nil }

type stubJudge struct {
	scores map[string]float64
}

func (j stubJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	return j.scores[prediction], "stub rationale", nil
}

func TestEvaluate_AggregatesMeanAndStd(t *testing.T) {
	exec := stubExecutor{outputs: map[string]string{"c1": "good answer", "c2": "bad answer"}}
	j := stubJudge{scores: map[string]float64{"good answer": 0.9, "bad answer": 0.3}}
	eval := New(exec, j, "")

	cases := []domain.SyntheticCase{
		{CaseID: "c1", Question: "q1", Verifier: "e1"},
		{CaseID: "c2", Question: "q2", Verifier: "e2"},
	}
	bp := domain.WorkflowBlueprint{BlueprintID: "bp-1"}

	summary := eval.Evaluate(context.Background(), bp, cases, domain.SplitTrain)
	assert.Equal(t, "bp-1", summary.BlueprintID)
	assert.InDelta(t, 0.6, summary.MeanScore, 0.0001)
	assert.Equal(t, 2, summary.TotalCases)
	assert.Equal(t, domain.SplitTrain, summary.Split)
	assert.Greater(t, summary.ScoreStd, 0.0)
}

func TestEvaluate_EmptyCasesReturnsPlaceholder(t *testing.T) {
	exec := stubExecutor{}
	j := stubJudge{}
	eval := New(exec, j, "")

	summary := eval.Evaluate(context.Background(), domain.WorkflowBlueprint{BlueprintID: "bp-x"}, nil, domain.SplitVal)
	assert.Equal(t, "no evaluation results", summary.Reflection)
	assert.Equal(t, 0, summary.TotalCases)
}

func TestEvaluate_ExecutorErrorBecomesExecutionErrorOutput(t *testing.T) {
	exec := stubExecutor{err: map[string]error{"c1": assertErr{}}}
	j := stubJudge{scores: map[string]float64{"RUNTIME_ERROR[EXECUTION_ERROR]": 0.0}}
	eval := New(exec, j, "")

	cases := []domain.SyntheticCase{{CaseID: "c1", Question: "q1", Verifier: "e1"}}
	summary := eval.Evaluate(context.Background(), domain.WorkflowBlueprint{BlueprintID: "bp-1"}, cases, domain.SplitTrain)
	require.Len(t, summary.CaseResults, 1)
	assert.Equal(t, "RUNTIME_ERROR[EXECUTION_ERROR]", summary.CaseResults[0].Output)
}

func TestEvaluate_ReflectionNamesFailuresWhenBelowThreshold(t *testing.T) {
	exec := stubExecutor{outputs: map[string]string{"c1": "bad"}}
	j := stubJudge{scores: map[string]float64{"bad": 0.2}}
	eval := New(exec, j, "")

	cases := []domain.SyntheticCase{{CaseID: "c1", Question: "q1", Verifier: "e1"}}
	summary := eval.Evaluate(context.Background(), domain.WorkflowBlueprint{BlueprintID: "bp-1"}, cases, domain.SplitTrain)
	assert.Contains(t, summary.Reflection, "c1")
}

func TestEvaluate_ReflectionStableWhenNoFailures(t *testing.T) {
	exec := stubExecutor{outputs: map[string]string{"c1": "good"}}
	j := stubJudge{scores: map[string]float64{"good": 0.95}}
	eval := New(exec, j, "")

	cases := []domain.SyntheticCase{{CaseID: "c1", Question: "q1", Verifier: "e1"}}
	summary := eval.Evaluate(context.Background(), domain.WorkflowBlueprint{BlueprintID: "bp-1"}, cases, domain.SplitTrain)
	assert.Contains(t, summary.Reflection, "stable candidate")
}

type assertErr struct{}

func (assertErr) Error() string { return "execution failed" }
