package judge

import (
	"context"
	"strings"
)

// RuleJudge scores a prediction by substring containment against the
// expected answer when one exists, else by heuristics on the prediction's
// own shape.
type RuleJudge struct{}

func (RuleJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	pred := strings.ToLower(strings.TrimSpace(prediction))
	if pred == "" {
		return 0.0, "empty output", nil
	}
	exp := strings.ToLower(strings.TrimSpace(expected))

	if exp != "" && !isUnknown(exp) {
		switch {
		case strings.Contains(pred, exp):
			return 0.95, "prediction contains the expected answer", nil
		case strings.Contains(exp, pred) && pred != "":
			return 0.75, "expected answer contains the prediction", nil
		default:
			return 0.20, "prediction does not overlap with expected answer", nil
		}
	}

	switch {
	case strings.Contains(pred, "unknown"):
		return 0.65, "prediction correctly signals uncertainty", nil
	case len(strings.Fields(pred)) < 4:
		return 0.30, "prediction too short to be informative", nil
	default:
		return 0.55, "no reference answer available, default confidence", nil
	}
}
