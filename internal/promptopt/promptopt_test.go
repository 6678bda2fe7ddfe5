package promptopt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimize_PrefersHigherScoringCandidate(t *testing.T) {
	reg := NewRegistry()
	best := Optimize("Base instruction.", []string{"missed evidence for claim"}, "answer questions", MaxCandidates, reg, "run-1", "mutation")

	assert.Contains(t, strings.ToLower(best), "evidence")

	variants := reg.ForRun("run-1")
	assert.NotEmpty(t, variants)
	for _, v := range variants {
		assert.Equal(t, "mutation", v.Source)
		assert.Equal(t, "run-1", v.RunID)
	}
}

func TestOptimize_RespectsMaxCandidates(t *testing.T) {
	reg := NewRegistry()
	Optimize("Base instruction.", []string{"reason one"}, "task", 1, reg, "run-2", "mutation")
	assert.Len(t, reg.ForRun("run-2"), 1)
}

func TestOptimize_NilRegistryIsSafe(t *testing.T) {
	best := Optimize("Base instruction.", nil, "task", MaxCandidates, nil, "run-3", "mutation")
	assert.NotEmpty(t, best)
}

func TestScoreCandidate_RewardsEvidenceUnknownFallbackAndCoverage(t *testing.T) {
	failureTokens := tokenize("timeout on retrieval")
	unique := uniqueTokens(failureTokens)

	plain := scoreCandidate("A basic instruction.", failureTokens, len(unique))
	rich := scoreCandidate("Provide evidence, say unknown when uncertain, and use a fallback for timeout on retrieval.", failureTokens, len(unique))

	assert.Greater(t, rich, plain)
}

func TestScoreCandidate_PenalizesLength(t *testing.T) {
	failureTokens := []string{}
	short := scoreCandidate("short", failureTokens, 0)
	long := scoreCandidate(strings.Repeat("padding ", 2000), failureTokens, 0)
	assert.Less(t, long, short)
}

func TestRegistry_AllAcrossRunsAndForRunFiltersByRunID(t *testing.T) {
	reg := NewRegistry()
	reg.Register("run-a", "prompt-a", "seed", 0.5)
	reg.Register("run-b", "prompt-b", "seed", 0.6)

	all := reg.All()
	require.Len(t, all, 2)

	onlyA := reg.ForRun("run-a")
	require.Len(t, onlyA, 1)
	assert.Equal(t, "prompt-a", onlyA[0].Prompt)
	assert.NotEmpty(t, onlyA[0].VariantID)
}

func TestDedupeCandidates_CollapsesWhitespaceVariants(t *testing.T) {
	out := dedupeCandidates([]string{"hello   world", "hello world", "other"})
	assert.Len(t, out, 2)
}
