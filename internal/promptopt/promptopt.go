// Package promptopt generates candidate prompt variants from a parent
// prompt and failure rationales, scores them heuristically, and tracks the
// scored candidates in a run-scoped variant registry.
package promptopt

import (
	"strings"
)

// MaxCandidates is the default cap on generated prompt candidates.
const MaxCandidates = 4

// Optimize generates up to maxCandidates prompt variants, scores them,
// registers every scored candidate in reg (when reg is non-nil) under runID
// and sourceTag, and returns the highest-scoring candidate's text.
func Optimize(prompt string, failures []string, taskDesc string, maxCandidates int, reg *Registry, runID, sourceTag string) string {
	candidates := candidateSet(prompt, failures)
	if maxCandidates > 0 && maxCandidates < len(candidates) {
		candidates = candidates[:maxCandidates]
	}
	candidates = dedupeCandidates(candidates)

	failureTokens := tokenize(strings.Join(failures, " "))
	totalFailureTokens := len(uniqueTokens(failureTokens))

	best := prompt
	bestScore := -1.0
	for _, c := range candidates {
		score := scoreCandidate(c, failureTokens, totalFailureTokens)
		if reg != nil {
			reg.Register(runID, c, sourceTag, score)
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

func candidateSet(prompt string, failures []string) []string {
	hints := strings.Join(failures, "; ")
	return []string{
		prompt,
		prompt + "\n\n[Refined Constraints]\n" + hints,
		prompt + "\n\n[Task Intent]\nStay precisely on the requested task.\n[Output Discipline]\nProvide evidence for every claim; say unknown when uncertain.",
		prompt + "\n\n[Safety Checks]\nVerify each tool call's output before using it as fact.",
		prompt + "\n\n[Failure Recovery]\nIf a prior attempt failed, use a fallback strategy: " + hints,
	}
}

func dedupeCandidates(candidates []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := strings.Join(strings.Fields(c), " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// scoreCandidate rewards prompt candidates for evidence/uncertainty
// discipline and failure-token coverage.
func scoreCandidate(candidate string, failureTokens []string, totalFailureTokens int) float64 {
	lower := strings.ToLower(candidate)
	score := 0.5
	if strings.Contains(lower, "evidence") {
		score += 0.15
	}
	if strings.Contains(lower, "unknown") {
		score += 0.10
	}
	if strings.Contains(lower, "fallback") {
		score += 0.05
	}

	if totalFailureTokens > 0 {
		covered := 0
		for _, tok := range uniqueTokens(failureTokens) {
			if strings.Contains(lower, tok) {
				covered++
			}
		}
		score += 0.20 * (float64(covered) / float64(totalFailureTokens))
	}

	lengthPenalty := float64(len(candidate)) / 6000.0
	if lengthPenalty > 0.12 {
		lengthPenalty = 0.12
	}
	score -= lengthPenalty
	return score
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func uniqueTokens(tokens []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
