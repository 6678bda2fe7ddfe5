package judge

import (
	"context"
	"strings"
)

// HeuristicJudge scores a prediction by exact match against the expected
// answer when one exists, otherwise by token-overlap against either the
// expected answer or, lacking one, the question itself.
type HeuristicJudge struct{}

func (HeuristicJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	predTrim := strings.TrimSpace(strings.ToLower(prediction))
	if predTrim == "" {
		return 0.0, "empty output", nil
	}
	expTrim := strings.TrimSpace(strings.ToLower(expected))

	if expTrim != "" && expTrim != "unknown" && expTrim == predTrim {
		return 1.0, "exact match against expected answer", nil
	}

	if expTrim != "" && !isUnknown(expTrim) {
		return overlap(expected, prediction), "lexical token overlap against expected answer", nil
	}

	score := clamp(overlap(question, prediction), 0.1, 0.8)
	return score, "lexical token overlap score", nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
