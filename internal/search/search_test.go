package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-aflowx-optimizer/internal/domain"
)

func TestBuildInitialBlueprint_SeedsLeaderActionsAndOperators(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}, {Name: "RunQuery"}, {Name: "Summarize"}}
	bp := BuildInitialBlueprint("my-agent", "answer graph questions", tools, domain.TopologyLinear)

	assert.Equal(t, "my-agent", bp.AppName)
	require.Len(t, bp.Actions, 3)
	assert.Equal(t, "use_searchnodes", bp.Actions[0].Name)

	// Leader is capped at the first two tools.
	assert.Equal(t, []string{"use_searchnodes", "use_runquery"}, bp.LeaderActions)

	require.Len(t, bp.Experts, 1)
	require.Len(t, bp.Experts[0].Operators, 1)
	assert.Equal(t, "linear_worker", bp.Experts[0].Operators[0].Name)
	require.NoError(t, bp.Validate())
}

func TestBuildTopologyOperators_EachTopology(t *testing.T) {
	seed := []string{"use_tool"}

	linear := BuildTopologyOperators(domain.TopologyLinear, seed)
	assert.Len(t, linear, 1)

	pwr := BuildTopologyOperators(domain.TopologyPlannerWorkerReviewer, seed)
	require.Len(t, pwr, 3)
	assert.Equal(t, "planner", pwr[0].Name)
	assert.Equal(t, "reviewer", pwr[2].Name)

	router := BuildTopologyOperators(domain.TopologyRouterParallel, seed)
	require.Len(t, router, 4)
	assert.Equal(t, "router", router[0].Name)
	assert.Equal(t, "synthesizer", router[3].Name)
}

func TestInferIntents_EmptyDefaultsToQuery(t *testing.T) {
	got := InferIntents(nil)
	assert.Equal(t, []domain.Intent{domain.IntentQuery}, got)
}

func TestInferIntents_RanksByFrequencyThenFirstSeen(t *testing.T) {
	cases := []domain.SyntheticCase{
		{Intent: domain.IntentAnalytics},
		{Intent: domain.IntentQuery},
		{Intent: domain.IntentQuery},
		{Intent: domain.IntentModeling},
		{Intent: domain.IntentModeling},
		{Intent: domain.IntentModeling},
	}
	got := InferIntents(cases)
	require.Len(t, got, 2)
	assert.Equal(t, domain.IntentModeling, got[0])
	assert.Equal(t, domain.IntentQuery, got[1])
}

func sampleDataset() domain.SyntheticDataset {
	mk := func(id string) domain.SyntheticCase {
		return domain.SyntheticCase{CaseID: id, Question: "q-" + id, Intent: domain.IntentQuery, Difficulty: domain.DifficultyL1}
	}
	return domain.SyntheticDataset{
		Name:       "test-set",
		TrainCases: []domain.SyntheticCase{mk("t1"), mk("t2")},
		ValCases:   []domain.SyntheticCase{mk("v1"), mk("v2")},
		TestCases:  []domain.SyntheticCase{mk("e1")},
	}
}

// deterministicEvaluate scores a blueprint by how many mutations it carries,
// so later candidates in the search score strictly higher than the root.
func deterministicEvaluate(ctx context.Context, bp domain.WorkflowBlueprint, cases []domain.SyntheticCase, split domain.Split) domain.EvaluationSummary {
	score := 0.5 + 0.05*float64(len(bp.MutationTrace))
	if score > 1 {
		score = 1
	}
	return domain.EvaluationSummary{BlueprintID: bp.BlueprintID, MeanScore: score, TotalCases: len(cases), Split: split}
}

func identityOptimizePrompt(prompt string, failures []string, taskDesc string) string {
	return prompt + " (revised)"
}

func identityRankTools(taskDesc string, intents []domain.Intent, catalog []domain.Tool, topK int, historicalGain map[string]float64) []domain.Tool {
	return catalog
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Rounds = 3
	cfg.ExpansionsPerRound = 1
	cfg.EvaluationBudget = 2
	cfg.ValidationBudget = 2
	cfg.TestBudget = 1
	cfg.Patience = 10
	return cfg
}

func TestEngine_OptimizeWithHoldoutProducesTestEvaluation(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}}
	catalog := []domain.Tool{{Name: "SearchNodes"}, {Name: "RunQuery"}}
	root := BuildInitialBlueprint("agent", "answer questions", tools, domain.TopologyLinear)

	engine := New(deterministicEvaluate, identityOptimizePrompt, identityRankTools, nil, testConfig())
	result, err := engine.Optimize(context.Background(), root, sampleDataset(), []domain.Intent{domain.IntentQuery}, catalog)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RoundTraces)
	require.NotNil(t, result.ValidationEvaluation)
	require.NotNil(t, result.TestEvaluation)
	assert.GreaterOrEqual(t, result.BestEvaluation.MeanScore, 0.5)

	for _, trace := range result.RoundTraces {
		assert.NotEmpty(t, trace.Mutation)
		assert.GreaterOrEqual(t, trace.Regret, 0.0)
	}
}

func TestEngine_OptimizeWithoutHoldoutSkipsValAndTest(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}}
	root := BuildInitialBlueprint("agent", "answer questions", tools, domain.TopologyLinear)

	cfg := testConfig()
	cfg.UseHoldout = false
	engine := New(deterministicEvaluate, identityOptimizePrompt, identityRankTools, nil, cfg)

	result, err := engine.Optimize(context.Background(), root, sampleDataset(), []domain.Intent{domain.IntentQuery}, nil)
	require.NoError(t, err)
	assert.Nil(t, result.ValidationEvaluation)
	assert.Nil(t, result.TestEvaluation)
}

func TestEngine_OptimizeRejectsEmptyTrainCases(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}}
	root := BuildInitialBlueprint("agent", "answer questions", tools, domain.TopologyLinear)

	engine := New(deterministicEvaluate, identityOptimizePrompt, identityRankTools, nil, testConfig())
	_, err := engine.Optimize(context.Background(), root, domain.SyntheticDataset{}, nil, nil)
	assert.Error(t, err)
}

func TestEngine_MutateToolsAddsThenRemoves(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}}
	root := BuildInitialBlueprint("agent", "answer questions", tools, domain.TopologyLinear)
	engine := New(deterministicEvaluate, identityOptimizePrompt, identityRankTools, nil, DefaultConfig())

	catalog := []domain.Tool{{Name: "SearchNodes"}, {Name: "RunQuery"}}
	candidate, mutation := engine.mutateTools(root, []domain.Intent{domain.IntentQuery}, catalog, map[string]float64{})
	assert.Equal(t, "tool:add(RunQuery)", mutation)
	assert.Len(t, candidate.Tools, 2)
	require.NoError(t, candidate.Validate())

	// With every catalog tool already bound, the next mutation removes the
	// last non-leader action instead.
	_, mutation = engine.mutateTools(candidate, []domain.Intent{domain.IntentQuery}, catalog, map[string]float64{})
	assert.Equal(t, "tool:remove(use_runquery)", mutation)
}

func TestEngine_MutateTopologyAdvancesAndRebuildsOperators(t *testing.T) {
	tools := []domain.Tool{{Name: "SearchNodes"}}
	root := BuildInitialBlueprint("agent", "answer questions", tools, domain.TopologyLinear)
	engine := New(deterministicEvaluate, identityOptimizePrompt, identityRankTools, nil, DefaultConfig())

	candidate, mutation := engine.mutateTopology(root)
	assert.Equal(t, domain.TopologyPlannerWorkerReviewer, candidate.Topology)
	assert.Contains(t, mutation, "topology:switch")
	require.Len(t, candidate.Experts[0].Operators, 3)
}
