package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"station-aflowx-optimizer/internal/artifact"
	"station-aflowx-optimizer/internal/db/repositories"
	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/evaluate"
	"station-aflowx-optimizer/internal/executor"
	"station-aflowx-optimizer/internal/judge"
	"station-aflowx-optimizer/internal/promptopt"
	"station-aflowx-optimizer/internal/search"
	"station-aflowx-optimizer/internal/synth"
	"station-aflowx-optimizer/internal/toolselect"
	"station-aflowx-optimizer/internal/workflowyaml"
)

// Settings are the run-time knobs the service needs from config,
// independent of per-request parameters.
type Settings struct {
	DefaultDatasetSize    int
	MaxSearchRounds       int
	MaxExpansionsPerRound int
	MaxPromptCandidates   int
	TrainRatio            float64
	ValRatio              float64
	TestRatio             float64
	JudgeBackend          string // mock | llm
}

// Service orchestrates synthesis, search, evaluation, and persistence for
// one tenant.
type Service struct {
	exec     executor.Executor
	llmJudge judge.Judge // used as the ensemble's LLM slot; a heuristic stand-in when JudgeBackend=="mock"
	store    artifact.Store
	repo     *repositories.OptimizationRepo
	settings Settings
}

// New builds a Service.
func New(exec executor.Executor, llmJudge judge.Judge, store artifact.Store, repo *repositories.OptimizationRepo, settings Settings) *Service {
	if llmJudge == nil {
		llmJudge = judge.HeuristicJudge{}
	}
	return &Service{exec: exec, llmJudge: llmJudge, store: store, repo: repo, settings: settings}
}

// Report is the result of one Optimize() call, bundling the search outcome
// with the persisted AgentVersionRecord.
type Report struct {
	RunID                string
	Profile              string
	Dataset              domain.SyntheticDataset
	BestBlueprint        domain.WorkflowBlueprint
	BestEvaluation       domain.EvaluationSummary
	ValidationEvaluation *domain.EvaluationSummary
	TestEvaluation       *domain.EvaluationSummary
	RoundTraces          []domain.SearchRoundTrace
	ArtifactDir          string
	Version              domain.AgentVersionRecord
}

func (s *Service) buildJudge(knobs Knobs) judge.Judge {
	if !knobs.UseEnsembleJudge {
		return judge.HeuristicJudge{}
	}
	return judge.BuildDefaultEnsemble(s.llmJudge)
}

// Optimize runs one full synth → search → persist pipeline for tenantID's
// agentName, returning the report and its persisted version row.
func (s *Service) Optimize(ctx context.Context, tenantID, agentName, taskDesc string, datasetSize int, profileName string, seed *int64) (Report, error) {
	runID := fmt.Sprintf("run-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	knobs := Resolve(profileName)

	j := s.buildJudge(knobs)

	schema, err := s.exec.FetchSchemaSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch schema snapshot: %w", err)
	}

	randomSeed := uint64(7)
	if seed != nil {
		randomSeed = uint64(*seed)
	} else if knobs.DynamicDataset {
		randomSeed = rand.Uint64()
	}

	synthOpts := synth.Options{
		RandomSeed:          randomSeed,
		EnableParaphrase:    knobs.EnableParaphrase,
		EnableHardNegatives: knobs.EnableHardNegatives,
		TrainRatio:          s.settings.TrainRatio,
		ValRatio:            s.settings.ValRatio,
		TestRatio:           s.settings.TestRatio,
	}
	synthesizer, err := synth.New(synthOpts, nil)
	if err != nil {
		return Report{}, fmt.Errorf("build synthesizer: %w", err)
	}

	size := datasetSize
	if size == 0 {
		size = s.settings.DefaultDatasetSize
	}
	dataset := synthesizer.Generate(taskDesc, agentName, size, schema)

	toolCatalog, err := s.exec.FetchToolCatalog(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch tool catalog: %w", err)
	}

	intents := search.InferIntents(dataset.Cases)
	topK := 6
	if len(toolCatalog) < 6 {
		topK = len(toolCatalog)
		if topK < 2 {
			topK = 2
		}
	}
	selectedTools := toolselect.Rank(taskDesc, intents, toolCatalog, topK, nil)

	root := search.BuildInitialBlueprint(agentName, taskDesc, selectedTools, domain.TopologyPlannerWorkerReviewer)

	ev := evaluate.New(s.exec, j, "")
	registry := promptopt.NewRegistry()

	evalFn := func(ctx context.Context, bp domain.WorkflowBlueprint, cases []domain.SyntheticCase, split domain.Split) domain.EvaluationSummary {
		return ev.Evaluate(ctx, bp, cases, split)
	}
	optimizePromptFn := func(prompt string, failures []string, taskDesc string) string {
		return promptopt.Optimize(prompt, failures, taskDesc, s.settings.MaxPromptCandidates, registry, runID, "search")
	}

	cfg := search.DefaultConfig()
	cfg.Rounds = s.settings.MaxSearchRounds
	cfg.ExpansionsPerRound = s.settings.MaxExpansionsPerRound
	cfg.EnablePromptMutation = knobs.EnablePromptMutation
	cfg.EnableToolMutation = knobs.EnableToolMutation
	cfg.EnableTopologyMutation = knobs.EnableTopologyMutation
	cfg.UseHoldout = knobs.UseHoldout
	cfg.EnableToolHistoricalGain = knobs.EnableToolHistoricalGain
	cfg.UncertaintyPenalty = knobs.UncertaintyPenalty
	cfg.GeneralizationPenalty = knobs.GeneralizationPenalty

	engine := search.New(evalFn, optimizePromptFn, toolselect.Rank, registry, cfg)

	result, err := engine.Optimize(ctx, root, dataset, intents, toolCatalog)
	if err != nil {
		return Report{}, fmt.Errorf("search optimize: %w", err)
	}

	if result.BestBlueprint.Metadata == nil {
		result.BestBlueprint.Metadata = map[string]string{}
	}
	result.BestBlueprint.Metadata["profile"] = knobs.Name
	result.BestBlueprint.Metadata["run_id"] = runID
	if seed != nil {
		result.BestBlueprint.Metadata["seed"] = fmt.Sprintf("%d", *seed)
	}

	artifactDir := path.Join("agents", agentName, runID)

	workflowPath, err := s.materializeBlueprint(artifactDir, result.BestBlueprint)
	if err != nil {
		return Report{}, fmt.Errorf("materialize workflow: %w", err)
	}
	if err := s.writeReportArtifacts(artifactDir, runID, knobs, dataset, result); err != nil {
		return Report{}, fmt.Errorf("write report artifacts: %w", err)
	}

	bestEval := result.BestEvaluation
	versionEval := bestEval
	if result.ValidationEvaluation != nil {
		versionEval = *result.ValidationEvaluation
	}

	version, err := s.repo.CreateVersion(ctx, tenantID, agentName, result.BestBlueprint, versionEval, workflowPath, domain.LifecycleValidated, "optimized by station-aflowx-optimizer")
	if err != nil {
		return Report{}, fmt.Errorf("persist version: %w", err)
	}

	run := domain.OptimizationRun{
		RunID:           runID,
		TenantID:        tenantID,
		AgentName:       agentName,
		TaskDesc:        taskDesc,
		ArtifactDir:     artifactDir,
		BestBlueprintID: result.BestBlueprint.BlueprintID,
		BestTrainScore:  bestEval.MeanScore,
		RoundTraces:     result.RoundTraces,
		CreatedAt:       time.Now().UTC(),
	}
	if result.ValidationEvaluation != nil {
		v := result.ValidationEvaluation.MeanScore
		run.BestValScore = &v
	}
	if result.TestEvaluation != nil {
		v := result.TestEvaluation.MeanScore
		run.BestTestScore = &v
	}
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return Report{}, fmt.Errorf("persist run: %w", err)
	}

	return Report{
		RunID:                runID,
		Profile:              knobs.Name,
		Dataset:              dataset,
		BestBlueprint:        result.BestBlueprint,
		BestEvaluation:       bestEval,
		ValidationEvaluation: result.ValidationEvaluation,
		TestEvaluation:       result.TestEvaluation,
		RoundTraces:          result.RoundTraces,
		ArtifactDir:          artifactDir,
		Version:              version,
	}, nil
}

func (s *Service) materializeBlueprint(artifactDir string, bp domain.WorkflowBlueprint) (string, error) {
	payload, err := workflowyaml.Render(bp)
	if err != nil {
		return "", err
	}
	stored, err := s.store.Put(path.Join(artifactDir, "workflow.yml"), payload)
	if err != nil {
		return "", err
	}
	return stored.URI, nil
}

func (s *Service) writeJSONArtifact(artifactDir, name string, payload interface{}) error {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	_, err = s.store.Put(path.Join(artifactDir, name), body)
	return err
}

func (s *Service) writeReportArtifacts(artifactDir, runID string, knobs Knobs, dataset domain.SyntheticDataset, result search.Result) error {
	if err := s.writeJSONArtifact(artifactDir, "dataset_report.json", dataset.SynthesisReport); err != nil {
		return err
	}
	if err := s.writeJSONArtifact(artifactDir, "round_traces.json", result.RoundTraces); err != nil {
		return err
	}
	if err := s.writeJSONArtifact(artifactDir, "prompt_variants.json", result.PromptVariants); err != nil {
		return err
	}

	summary := map[string]interface{}{
		"run_id":             runID,
		"best_blueprint_id":  result.BestBlueprint.BlueprintID,
		"train_score":        result.BestEvaluation.MeanScore,
		"tool_gain":          result.HistoricalToolGain,
		"profile":            knobs.Name,
		"knobs":              knobs,
	}
	if result.ValidationEvaluation != nil {
		summary["val_score"] = result.ValidationEvaluation.MeanScore
	} else {
		summary["val_score"] = nil
	}
	if result.TestEvaluation != nil {
		summary["test_score"] = result.TestEvaluation.MeanScore
	} else {
		summary["test_score"] = nil
	}
	return s.writeJSONArtifact(artifactDir, "run_summary.json", summary)
}
