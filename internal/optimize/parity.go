package optimize

import (
	"context"
	"fmt"
	"path"

	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/evaluate"
	"station-aflowx-optimizer/internal/taxonomy"
	"station-aflowx-optimizer/internal/workflowyaml"
)

// ParityReport is the outcome of BenchmarkManualParity.
type ParityReport struct {
	RunID               string
	Profile             string
	Split               domain.Split
	AutoScore           float64
	ManualScore         float64
	ScoreDelta          float64
	ParityMargin        float64
	ParityAchieved      bool
	AutoArtifactPath    string
	ManualBlueprintPath string
	EvaluatedCases      int
	FailureTaxonomy     taxonomy.Report
}

// BenchmarkManualParity runs Optimize() to produce an auto-tuned candidate,
// then evaluates a manually-authored blueprint over the same holdout split
// and compares scores.
func (s *Service) BenchmarkManualParity(ctx context.Context, tenantID, agentName, taskDesc, manualBlueprintAllowRoot, manualBlueprintPath string, datasetSize int, profileName string, seed *int64, parityMargin float64, rules taxonomy.Rules) (ParityReport, error) {
	manualBlueprint, err := workflowyaml.LoadManualBlueprint(manualBlueprintAllowRoot, manualBlueprintPath)
	if err != nil {
		return ParityReport{}, fmt.Errorf("load manual blueprint: %w", err)
	}
	manualBlueprint.AppName = agentName
	manualBlueprint.TaskDesc = taskDesc

	autoReport, err := s.Optimize(ctx, tenantID, agentName, taskDesc, datasetSize, profileName, seed)
	if err != nil {
		return ParityReport{}, fmt.Errorf("auto optimize: %w", err)
	}

	knobs := Resolve(profileName)
	j := s.buildJudge(knobs)
	ev := evaluate.New(s.exec, j, "")

	split, cases := selectParitySplit(autoReport)
	manualEval := ev.Evaluate(ctx, manualBlueprint, cases, split)
	autoEval := selectAutoEval(autoReport, split)

	autoScore := autoEval.MeanScore
	manualScore := manualEval.MeanScore
	scoreDelta := autoScore - manualScore
	parityAchieved := autoScore+parityMargin >= manualScore
	report := taxonomy.Build(autoEval, manualEval, parityMargin, rules)

	artifactDir := autoReport.ArtifactDir
	payload := map[string]interface{}{
		"run_id":                autoReport.RunID,
		"profile":               knobs.Name,
		"split":                 split,
		"auto_score":            autoScore,
		"manual_score":          manualScore,
		"score_delta":           scoreDelta,
		"parity_margin":         parityMargin,
		"parity_achieved":       parityAchieved,
		"manual_blueprint_path": manualBlueprintPath,
		"evaluated_cases":       manualEval.TotalCases,
		"auto_artifact_path":    autoReport.Version.ArtifactPath,
		"failure_taxonomy":      report,
	}
	if err := s.writeJSONArtifact(artifactDir, "manual_parity_report.json", payload); err != nil {
		return ParityReport{}, fmt.Errorf("write parity report: %w", err)
	}
	casePayload := map[string]interface{}{
		"run_id":        autoReport.RunID,
		"split":         split,
		"parity_margin": parityMargin,
		"auto_cases":    autoEval.CaseResults,
		"manual_cases":  manualEval.CaseResults,
	}
	if err := s.writeJSONArtifact(path.Join(artifactDir), "manual_parity_case_report.json", casePayload); err != nil {
		return ParityReport{}, fmt.Errorf("write parity case report: %w", err)
	}

	return ParityReport{
		RunID:               autoReport.RunID,
		Profile:             knobs.Name,
		Split:               split,
		AutoScore:           autoScore,
		ManualScore:         manualScore,
		ScoreDelta:          scoreDelta,
		ParityMargin:        parityMargin,
		ParityAchieved:      parityAchieved,
		AutoArtifactPath:    autoReport.Version.ArtifactPath,
		ManualBlueprintPath: manualBlueprintPath,
		EvaluatedCases:      manualEval.TotalCases,
		FailureTaxonomy:     report,
	}, nil
}

// selectParitySplit prefers test, then val, then train — whichever the
// run actually produced (spec's holdout knob can disable val/test).
func selectParitySplit(report Report) (domain.Split, []domain.SyntheticCase) {
	if report.TestEvaluation != nil && len(report.Dataset.TestCases) > 0 {
		return domain.SplitTest, report.Dataset.TestCases
	}
	if report.ValidationEvaluation != nil && len(report.Dataset.ValCases) > 0 {
		return domain.SplitVal, report.Dataset.ValCases
	}
	cases := report.Dataset.TrainCases
	if len(cases) == 0 {
		cases = report.Dataset.Cases
	}
	return domain.SplitTrain, cases
}

func selectAutoEval(report Report, split domain.Split) domain.EvaluationSummary {
	if split == domain.SplitTest && report.TestEvaluation != nil {
		return *report.TestEvaluation
	}
	if split == domain.SplitVal && report.ValidationEvaluation != nil {
		return *report.ValidationEvaluation
	}
	return report.BestEvaluation
}
