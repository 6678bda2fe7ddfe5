// Package evaluate runs a blueprint's executor then its judge over a case
// list and aggregates the results into an EvaluationSummary, including
// fixed reflection templates for failed cases.
package evaluate

import (
	"context"
	"fmt"
	"math"

	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/executor"
	"station-aflowx-optimizer/internal/judge"
)

const defaultRubric = "Score by factual correctness, graph-domain precision, and task completion."

// Evaluator runs an executor + judge ensemble over a case list.
type Evaluator struct {
	exec   executor.Executor
	j      judge.Judge
	rubric string
}

// New builds an Evaluator. rubric defaults to the standard domain rubric
// when empty.
func New(exec executor.Executor, j judge.Judge, rubric string) *Evaluator {
	if rubric == "" {
		rubric = defaultRubric
	}
	return &Evaluator{exec: exec, j: j, rubric: rubric}
}

// Evaluate runs every case through the executor then the judge, overwriting
// the execution's score/rationale with the judge's verdict, and attaches
// ensemble metadata (votes/agreement/confidence) when the judge exposes it.
func (e *Evaluator) Evaluate(ctx context.Context, bp domain.WorkflowBlueprint, cases []domain.SyntheticCase, split domain.Split) domain.EvaluationSummary {
	results := make([]domain.CaseExecution, 0, len(cases))
	var agreements []float64

	ensemble, isEnsemble := e.j.(*judge.EnsembleJudge)

	for _, c := range cases {
		execn, err := e.exec.Execute(ctx, bp, c)
		if err != nil {
			execn = domain.CaseExecution{CaseID: c.CaseID, Question: c.Question, Expected: c.Verifier, Output: executor.OutputExecutionError}
		}

		score, rationale, _ := e.j.Score(ctx, c.Question, c.Verifier, execn.Output, e.rubric)
		execn.Score = score
		execn.Rationale = rationale

		if isEnsemble {
			votes := make([]domain.JudgeVote, len(ensemble.LastVotes))
			for i, v := range ensemble.LastVotes {
				votes[i] = domain.JudgeVote{JudgeName: v.JudgeName, Score: v.Score, Rationale: v.Rationale}
			}
			execn.JudgeVotes = votes
			execn.Confidence = clamp01(ensemble.LastConfidence)
			agreements = append(agreements, clamp01(ensemble.LastAgreement))
		}

		results = append(results, execn)
	}

	if len(results) == 0 {
		return domain.EvaluationSummary{
			BlueprintID: bp.BlueprintID,
			Reflection:  "no evaluation results",
			Split:       split,
		}
	}

	scores := make([]float64, len(results))
	latencies := make([]float64, len(results))
	costs := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
		latencies[i] = r.LatencyMs
		costs[i] = r.TokenCost
	}

	judgeAgreement := 1.0
	if len(agreements) > 0 {
		judgeAgreement = mean(agreements)
	}

	return domain.EvaluationSummary{
		BlueprintID:    bp.BlueprintID,
		MeanScore:      mean(scores),
		MeanLatencyMs:  mean(latencies),
		MeanTokenCost:  mean(costs),
		TotalCases:     len(results),
		Reflection:     reflect(results, split),
		JudgeAgreement: judgeAgreement,
		ScoreStd:       pstdev(scores),
		Split:          split,
		CaseResults:    results,
	}
}

func reflect(results []domain.CaseExecution, split domain.Split) string {
	var failed []domain.CaseExecution
	for _, r := range results {
		if r.Score < 0.6 {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return fmt.Sprintf("%s: stable candidate, preserve current constraints and evidence discipline", split)
	}

	n := len(failed)
	if n > 3 {
		n = 3
	}
	snippets := make([]string, 0, n+1)
	for _, c := range failed[:n] {
		snippets = append(snippets, fmt.Sprintf("%s score=%.2f confidence=%.2f reason=%s", c.CaseID, c.Score, c.Confidence, c.Rationale))
	}
	snippets = append(snippets, "Improve prompt grounding, prune noisy tools, and add reviewer checks.")
	return joinPipe(snippets)
}

func joinPipe(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += " | "
		}
		out += x
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func pstdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
