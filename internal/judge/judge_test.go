package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicJudge_ExactMatch(t *testing.T) {
	j := HeuristicJudge{}
	score, rationale, err := j.Score(context.Background(), "q", "Paris", "paris", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
	assert.Contains(t, rationale, "exact match")
}

func TestHeuristicJudge_OverlapAgainstExpectedIsUnclamped(t *testing.T) {
	j := HeuristicJudge{}
	score, _, err := j.Score(context.Background(), "what city", "the capital of france", "totally unrelated text", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestHeuristicJudge_NoReferenceOverlapIsClamped(t *testing.T) {
	j := HeuristicJudge{}
	score, _, err := j.Score(context.Background(), "what city is the capital of france", "", "totally unrelated text", "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.1)
	assert.LessOrEqual(t, score, 0.8)
}

func TestHeuristicJudge_FallsBackToQuestionWhenExpectedUnknown(t *testing.T) {
	j := HeuristicJudge{}
	score, _, err := j.Score(context.Background(), "describe the graph schema", "unknown", "describe the graph schema in detail", "")
	require.NoError(t, err)
	assert.Greater(t, score, 0.1)
}

func TestRuleJudge_ContainmentCases(t *testing.T) {
	j := RuleJudge{}

	score, _, err := j.Score(context.Background(), "q", "Paris", "the answer is paris", "")
	require.NoError(t, err)
	assert.Equal(t, 0.95, score)

	score, _, err = j.Score(context.Background(), "q", "the capital of france is paris", "paris", "")
	require.NoError(t, err)
	assert.Equal(t, 0.75, score)

	score, _, err = j.Score(context.Background(), "q", "Paris", "London", "")
	require.NoError(t, err)
	assert.Equal(t, 0.20, score)
}

func TestRuleJudge_NoReferenceHeuristics(t *testing.T) {
	j := RuleJudge{}

	score, _, err := j.Score(context.Background(), "q", "", "unknown", "")
	require.NoError(t, err)
	assert.Equal(t, 0.65, score)

	score, _, err = j.Score(context.Background(), "q", "", "too short", "")
	require.NoError(t, err)
	assert.Equal(t, 0.30, score)

	score, _, err = j.Score(context.Background(), "q", "", "this prediction has plenty of words in it", "")
	require.NoError(t, err)
	assert.Equal(t, 0.55, score)
}

func TestEnsembleJudge_WeightedMeanAndAgreement(t *testing.T) {
	e := NewEnsembleJudge(
		struct {
			Name   string
			Judge  Judge
			Weight float64
		}{Name: "a", Judge: constJudge{score: 0.8}, Weight: 1.0},
		struct {
			Name   string
			Judge  Judge
			Weight float64
		}{Name: "b", Judge: constJudge{score: 0.4}, Weight: 1.0},
	)

	score, rationale, err := e.Score(context.Background(), "q", "e", "p", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, score, 0.0001)
	assert.Contains(t, rationale, "a+b")
	assert.Len(t, e.LastVotes, 2)
	assert.GreaterOrEqual(t, e.LastAgreement, 0.0)
	assert.LessOrEqual(t, e.LastAgreement, 1.0)
}

func TestEnsembleJudge_SkipsErroringJudges(t *testing.T) {
	e := NewEnsembleJudge(
		struct {
			Name   string
			Judge  Judge
			Weight float64
		}{Name: "ok", Judge: constJudge{score: 0.9}, Weight: 1.0},
		struct {
			Name   string
			Judge  Judge
			Weight float64
		}{Name: "broken", Judge: errJudge{}, Weight: 1.0},
	)

	score, _, err := e.Score(context.Background(), "q", "e", "p", "")
	require.NoError(t, err)
	assert.Equal(t, 0.9, score)
	assert.Len(t, e.LastVotes, 1)
}

func TestBuildDefaultEnsemble_IncludesLLMOnlyWhenProvided(t *testing.T) {
	withoutLLM := BuildDefaultEnsemble(nil)
	_, _, err := withoutLLM.Score(context.Background(), "q", "Paris", "paris", "")
	require.NoError(t, err)
	assert.Len(t, withoutLLM.LastVotes, 2)

	withLLM := BuildDefaultEnsemble(constJudge{score: 0.5})
	_, _, err = withLLM.Score(context.Background(), "q", "Paris", "paris", "")
	require.NoError(t, err)
	assert.Len(t, withLLM.LastVotes, 3)
}

type constJudge struct{ score float64 }

func (c constJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	return c.score, "const", nil
}

type errJudge struct{}

func (errJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	return 0, "", errors.New("boom")
}

type stubBackend struct {
	response string
	err      error
}

func (s stubBackend) complete(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func TestLLMJudge_ParsesFencedJSON(t *testing.T) {
	j := &LLMJudge{backend: stubBackend{response: "```json\n{\"score\": 0.7, \"rationale\": \"close enough\"}\n```"}}
	score, rationale, err := j.Score(context.Background(), "q", "e", "p", "")
	require.NoError(t, err)
	assert.Equal(t, 0.7, score)
	assert.Equal(t, "close enough", rationale)
}

func TestLLMJudge_BackendErrorYieldsZeroScoreNoErr(t *testing.T) {
	j := &LLMJudge{backend: stubBackend{err: errors.New("network down")}}
	score, rationale, err := j.Score(context.Background(), "q", "e", "p", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Contains(t, rationale, "unable to parse")
}

func TestParseVerdict_NoJSONObjectFound(t *testing.T) {
	score, rationale, err := parseVerdict("not json at all")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Contains(t, rationale, "no JSON object found")
}

func TestParseVerdict_ClampsOutOfRangeScore(t *testing.T) {
	score, _, err := parseVerdict(`{"score": 1.5, "rationale": "overshoot"}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}
