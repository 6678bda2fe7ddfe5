package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-aflowx-optimizer/internal/db"
	"station-aflowx-optimizer/internal/domain"
)

func setupOptimizationRepo(t *testing.T) *OptimizationRepo {
	t.Helper()
	tdb, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tdb.Close() })
	return NewOptimizationRepo(tdb.Conn())
}

func sampleBlueprint(id string) domain.WorkflowBlueprint {
	return domain.WorkflowBlueprint{
		BlueprintID: id,
		AppName:     "my-agent",
		TaskDesc:    "answer questions",
		Topology:    domain.TopologyLinear,
		Tools:       []domain.Tool{{Name: "search"}},
		Actions:     []domain.Action{{Name: "lookup", Tools: []string{"search"}}},
		Experts: []domain.Expert{{
			Name:      "worker",
			Operators: []domain.Operator{{Name: "step1", Actions: []string{"lookup"}}},
		}},
		LeaderActions: []string{"lookup"},
		Metadata:      map[string]string{},
	}
}

func sampleEvaluation(blueprintID string) domain.EvaluationSummary {
	return domain.EvaluationSummary{
		BlueprintID: blueprintID,
		MeanScore:   0.82,
		TotalCases:  2,
		Split:       domain.SplitTrain,
		CaseResults: []domain.CaseExecution{
			{CaseID: "c1", Question: "q1", Expected: "e1", Output: "o1", Score: 0.8},
			{CaseID: "c2", Question: "q2", Expected: "e2", Output: "o2", Score: 0.84},
		},
	}
}

func TestOptimizationRepo_CreateAndListVersions(t *testing.T) {
	repo := setupOptimizationRepo(t)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, "tenant-a", "my-agent", sampleBlueprint("bp-1"), sampleEvaluation("bp-1"), "local://agents/my-agent/run-1/workflow.yml", domain.LifecycleValidated, "first cut")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Version)
	assert.Equal(t, domain.LifecycleValidated, v1.Lifecycle)

	v2, err := repo.CreateVersion(ctx, "tenant-a", "my-agent", sampleBlueprint("bp-2"), sampleEvaluation("bp-2"), "local://agents/my-agent/run-2/workflow.yml", domain.LifecycleValidated, "second cut")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.Version)

	versions, err := repo.ListVersions(ctx, "tenant-a", "my-agent")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(2), versions[0].Version, "newest first")
	assert.Equal(t, int64(1), versions[1].Version)
}

func TestOptimizationRepo_VersionsAreTenantScoped(t *testing.T) {
	repo := setupOptimizationRepo(t)
	ctx := context.Background()

	_, err := repo.CreateVersion(ctx, "tenant-a", "shared-agent", sampleBlueprint("bp-a1"), sampleEvaluation("bp-a1"), "local://a", domain.LifecycleValidated, "")
	require.NoError(t, err)
	_, err = repo.CreateVersion(ctx, "tenant-b", "shared-agent", sampleBlueprint("bp-b1"), sampleEvaluation("bp-b1"), "local://b", domain.LifecycleValidated, "")
	require.NoError(t, err)

	tenantAVersions, err := repo.ListVersions(ctx, "tenant-a", "shared-agent")
	require.NoError(t, err)
	require.Len(t, tenantAVersions, 1)
	assert.Equal(t, int64(1), tenantAVersions[0].Version, "each tenant gets its own version sequence")

	tenantBVersions, err := repo.ListVersions(ctx, "tenant-b", "shared-agent")
	require.NoError(t, err)
	require.Len(t, tenantBVersions, 1)
	assert.Equal(t, int64(1), tenantBVersions[0].Version)
}

func TestOptimizationRepo_GetVersionNotFound(t *testing.T) {
	repo := setupOptimizationRepo(t)
	ctx := context.Background()

	_, err := repo.GetVersion(ctx, "tenant-a", "missing-agent", 1)
	assert.Error(t, err)
}

func TestOptimizationRepo_UpdateLifecycleDemotesPriorDeployed(t *testing.T) {
	repo := setupOptimizationRepo(t)
	ctx := context.Background()

	_, err := repo.CreateVersion(ctx, "tenant-a", "my-agent", sampleBlueprint("bp-1"), sampleEvaluation("bp-1"), "local://a", domain.LifecycleValidated, "")
	require.NoError(t, err)
	_, err = repo.CreateVersion(ctx, "tenant-a", "my-agent", sampleBlueprint("bp-2"), sampleEvaluation("bp-2"), "local://b", domain.LifecycleValidated, "")
	require.NoError(t, err)

	v1, err := repo.UpdateLifecycle(ctx, "tenant-a", "my-agent", 1, domain.LifecycleDeployed)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleDeployed, v1.Lifecycle)

	v2, err := repo.UpdateLifecycle(ctx, "tenant-a", "my-agent", 2, domain.LifecycleDeployed)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleDeployed, v2.Lifecycle)

	v1Again, err := repo.GetVersion(ctx, "tenant-a", "my-agent", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleValidated, v1Again.Lifecycle, "promoting v2 must demote v1 out of DEPLOYED")
}

func TestOptimizationRepo_SaveAndGetRun(t *testing.T) {
	repo := setupOptimizationRepo(t)
	ctx := context.Background()

	valScore := 0.75
	run := domain.OptimizationRun{
		RunID:           "run-abc123",
		TenantID:        "tenant-a",
		AgentName:       "my-agent",
		TaskDesc:        "answer questions",
		ArtifactDir:     "agents/my-agent/run-abc123",
		BestBlueprintID: "bp-1",
		BestTrainScore:  0.82,
		BestValScore:    &valScore,
		RoundTraces: []domain.SearchRoundTrace{
			{RoundNum: 0, SelectedBlueprintID: "bp-1", TrainObjective: 0.82, BestTrainObjective: 0.82},
		},
	}
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, "tenant-a", "run-abc123")
	require.NoError(t, err)
	assert.Equal(t, "bp-1", got.BestBlueprintID)
	require.NotNil(t, got.BestValScore)
	assert.InDelta(t, 0.75, *got.BestValScore, 0.0001)
	require.Len(t, got.RoundTraces, 1)
	assert.Equal(t, 0, got.RoundTraces[0].RoundNum)
}
