// Package judge scores agent predictions against expected answers, either
// with a single judge or an ensemble of weighted judges.
package judge

import (
	"context"
	"math"
	"strings"
)

// Judge scores one (question, expected, prediction) triple against an
// optional rubric, returning a score in [0,1] and a rationale.
type Judge interface {
	Score(ctx context.Context, question, expected, prediction, rubric string) (score float64, rationale string, err error)
}

// Vote is one judge's call, kept for the ensemble's LastVotes exposure.
type Vote struct {
	JudgeName string
	Score     float64
	Rationale string
	Weight    float64
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

func tokens(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, t := range tokens(s) {
		set[t] = true
	}
	return set
}

// overlap returns the fraction of lhs's tokens that also appear in rhs
// (|lhs ∩ rhs| / |lhs|), not a symmetric Jaccard coefficient — lhs is meant
// to be the reference/expected side and rhs the prediction side.
func overlap(lhs, rhs string) float64 {
	ls, rs := tokenSet(lhs), tokenSet(rhs)
	if len(ls) == 0 {
		return 0
	}
	inter := 0
	for t := range ls {
		if rs[t] {
			inter++
		}
	}
	return float64(inter) / float64(len(ls))
}

func isUnknown(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || s == "unknown"
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
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
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
