package judge

import (
	"context"
	"math"
)

// weightedJudge pairs a named Judge with its ensemble weight.
type weightedJudge struct {
	name   string
	judge  Judge
	weight float64
}

// EnsembleJudge aggregates several judges' scores with a weighted mean and
// exposes the last call's per-judge votes and agreement/confidence signals.
type EnsembleJudge struct {
	judges []weightedJudge

	LastVotes      []Vote
	LastAgreement  float64
	LastConfidence float64
}

// NewEnsembleJudge builds an ensemble from (name, judge, weight) triples.
func NewEnsembleJudge(entries ...struct {
	Name   string
	Judge  Judge
	Weight float64
}) *EnsembleJudge {
	e := &EnsembleJudge{}
	for _, ent := range entries {
		e.judges = append(e.judges, weightedJudge{name: ent.Name, judge: ent.Judge, weight: ent.Weight})
	}
	return e
}

// BuildDefaultEnsemble assembles rule+heuristic(+llm) judges with default
// weights (1.0 / 1.0 / 1.4 when an LLM judge is present).
func BuildDefaultEnsemble(llm Judge) *EnsembleJudge {
	e := &EnsembleJudge{
		judges: []weightedJudge{
			{name: "rule", judge: RuleJudge{}, weight: 1.0},
			{name: "heuristic", judge: HeuristicJudge{}, weight: 1.0},
		},
	}
	if llm != nil {
		e.judges = append(e.judges, weightedJudge{name: "llm", judge: llm, weight: 1.4})
	}
	return e
}

func (e *EnsembleJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	votes := make([]Vote, 0, len(e.judges))
	var weightedSum, weightTotal float64
	scores := make([]float64, 0, len(e.judges))

	for _, wj := range e.judges {
		score, rationale, err := wj.judge.Score(ctx, question, expected, prediction, rubric)
		if err != nil {
			continue
		}
		score = clamp01(score)
		votes = append(votes, Vote{JudgeName: wj.name, Score: score, Rationale: rationale, Weight: wj.weight})
		weightedSum += score * wj.weight
		weightTotal += wj.weight
		scores = append(scores, score)
	}

	var mean float64
	if weightTotal > 0 {
		mean = weightedSum / weightTotal
	}
	mean = clamp01(mean)

	agreement := agreementOf(scores)
	confidence := clamp01(0.5*mean + 0.5*agreement)

	e.LastVotes = votes
	e.LastAgreement = agreement
	e.LastConfidence = confidence

	rationale := "ensemble of " + joinNames(votes)
	return mean, rationale, nil
}

// agreementOf computes 0.5*(1-pstdev(scores)) + 0.5*mean(1-|s-mean|) over
// scores' own (unweighted) mean, clamped to [0,1].
func agreementOf(scores []float64) float64 {
	if len(scores) == 0 {
		return 1.0
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	sd := pstdev(scores)
	var closenessSum float64
	for _, s := range scores {
		d := s - mean
		if d < 0 {
			d = -d
		}
		closenessSum += 1 - d
	}
	closeness := closenessSum / float64(len(scores))
	agreement := 0.5*(1-sd) + 0.5*closeness
	return clamp01(agreement)
}

// pstdev is the population standard deviation (no Bessel's correction).
func pstdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func joinNames(votes []Vote) string {
	s := ""
	for i, v := range votes {
		if i > 0 {
			s += "+"
		}
		s += v.JudgeName
	}
	return s
}
