// Package taxonomy classifies per-case auto-vs-manual score gaps into a
// category x severity taxonomy, with default keyword lists and thresholds.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"station-aflowx-optimizer/internal/domain"
)

var categories = []string{"tool_selection", "decomposition", "execution_grounding", "verifier_mismatch", "other"}
var severities = []string{"mild", "moderate", "severe"}

// Rules is the configurable keyword/threshold set driving classification.
type Rules struct {
	RulesID                          string
	Version                          string
	ExecutionKeywords                []string
	ToolKeywords                     []string
	DecompositionKeywords            []string
	VerifierMismatchKeywords         []string
	SevereGapThreshold                float64
	ModerateGapThreshold              float64
	FallbackDecompositionGapThreshold float64
}

// DefaultRules mirrors DEFAULT_FAILURE_TAXONOMY_RULES exactly.
func DefaultRules() Rules {
	return Rules{
		RulesID: "failure_taxonomy_rules_v1",
		Version: "1.0.0",
		ExecutionKeywords: []string{
			"runtime_error", "timeout", "circuit open", "execution error",
			"exception", "traceback", "query failed", "cypher syntax",
		},
		ToolKeywords: []string{
			"tool", "action", "executor", "schemagetter", "cypherexecutor",
			"pagerankexecutor", "knowledgebaseretriever", "missing tool", "wrong tool",
		},
		DecompositionKeywords: []string{
			"decompose", "decomposition", "subtask", "multi-step", "missing step",
			"planning", "workflow order", "reasoning chain",
		},
		VerifierMismatchKeywords: []string{
			"verifier", "expected", "mismatch", "not aligned", "format",
			"answer differs", "incorrect final answer",
		},
		SevereGapThreshold:                0.4,
		ModerateGapThreshold:              0.2,
		FallbackDecompositionGapThreshold: 0.2,
	}
}

// rulesFile is the on-disk JSON shape.
type rulesFile struct {
	RulesID  string `json:"rules_id"`
	Version  string `json:"version"`
	Keywords struct {
		ExecutionGrounding []string `json:"execution_grounding"`
		ToolSelection      []string `json:"tool_selection"`
		Decomposition      []string `json:"decomposition"`
		VerifierMismatch   []string `json:"verifier_mismatch"`
	} `json:"keywords"`
	Thresholds struct {
		SevereGap               *float64 `json:"severe_gap"`
		ModerateGap              *float64 `json:"moderate_gap"`
		FallbackDecompositionGap *float64 `json:"fallback_decomposition_gap"`
	} `json:"thresholds"`
}

// LoadRules reads and validates a JSON rules file.
func LoadRules(path string) (Rules, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return Rules{}, fmt.Errorf("failure taxonomy rules file must be .json")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failure taxonomy rules file not found: %s", path)
	}
	var f rulesFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Rules{}, fmt.Errorf("failure taxonomy rules payload must be a JSON object: %w", err)
	}
	if strings.TrimSpace(f.RulesID) == "" {
		return Rules{}, fmt.Errorf("failure taxonomy rules requires rules_id")
	}
	if strings.TrimSpace(f.Version) == "" {
		return Rules{}, fmt.Errorf("failure taxonomy rules requires version")
	}

	exec, err := asKeywords(f.Keywords.ExecutionGrounding, "execution_grounding")
	if err != nil {
		return Rules{}, err
	}
	tool, err := asKeywords(f.Keywords.ToolSelection, "tool_selection")
	if err != nil {
		return Rules{}, err
	}
	decomp, err := asKeywords(f.Keywords.Decomposition, "decomposition")
	if err != nil {
		return Rules{}, err
	}
	verifier, err := asKeywords(f.Keywords.VerifierMismatch, "verifier_mismatch")
	if err != nil {
		return Rules{}, err
	}

	severe, err := asFloat(f.Thresholds.SevereGap, "thresholds.severe_gap")
	if err != nil {
		return Rules{}, err
	}
	moderate, err := asFloat(f.Thresholds.ModerateGap, "thresholds.moderate_gap")
	if err != nil {
		return Rules{}, err
	}
	fallback, err := asFloat(f.Thresholds.FallbackDecompositionGap, "thresholds.fallback_decomposition_gap")
	if err != nil {
		return Rules{}, err
	}
	if moderate > severe {
		return Rules{}, fmt.Errorf("thresholds.moderate_gap must be <= thresholds.severe_gap")
	}

	return Rules{
		RulesID:                          f.RulesID,
		Version:                          f.Version,
		ExecutionKeywords:                exec,
		ToolKeywords:                     tool,
		DecompositionKeywords:            decomp,
		VerifierMismatchKeywords:         verifier,
		SevereGapThreshold:               severe,
		ModerateGapThreshold:             moderate,
		FallbackDecompositionGapThreshold: fallback,
	}, nil
}

func asKeywords(values []string, field string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		kw := strings.ToLower(strings.TrimSpace(v))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keywords.%s must not be empty", field)
	}
	return out, nil
}

func asFloat(v *float64, field string) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%s must be number", field)
	}
	if *v < 0 || *v > 1 {
		return 0, fmt.Errorf("%s must be in [0, 1]", field)
	}
	return *v, nil
}

// CaseItem is one case's failure classification, sorted by ScoreGap desc.
type CaseItem struct {
	CaseID     string  `json:"case_id"`
	Category   string  `json:"category"`
	Severity   string  `json:"severity"`
	Signal     string  `json:"signal"`
	AutoScore  float64 `json:"auto_score"`
	ManualScore float64 `json:"manual_score"`
	ScoreGap   float64 `json:"score_gap"`
}

// Report is the full failure taxonomy output for one auto-vs-manual
// comparison.
type Report struct {
	RulesID          string             `json:"rules_id"`
	RulesVersion     string             `json:"rules_version"`
	TotalFailures    int                `json:"total_failures"`
	FailureMargin    float64            `json:"failure_margin"`
	ByCategory       map[string]int     `json:"by_category"`
	ByCategoryRatio  map[string]float64 `json:"by_category_ratio"`
	BySeverity       map[string]int     `json:"by_severity"`
	BySeverityRatio  map[string]float64 `json:"by_severity_ratio"`
	CaseItems        []CaseItem         `json:"case_items"`
}

// Build joins auto and manual evaluation summaries by case_id and classifies
// every case where the auto score trails the manual score by more than
// failureMargin.
func Build(autoEval, manualEval domain.EvaluationSummary, failureMargin float64, rules Rules) Report {
	manualByID := map[string]domain.CaseExecution{}
	for _, c := range manualEval.CaseResults {
		manualByID[c.CaseID] = c
	}

	byCategory := map[string]int{}
	bySeverity := map[string]int{}
	for _, c := range categories {
		byCategory[c] = 0
	}
	for _, s := range severities {
		bySeverity[s] = 0
	}

	var items []CaseItem
	for _, autoCase := range autoEval.CaseResults {
		manualCase, ok := manualByID[autoCase.CaseID]
		if !ok {
			continue
		}
		if autoCase.Score+failureMargin >= manualCase.Score {
			continue
		}

		category, signal := ClassifyFailureCase(autoCase, &manualCase, rules)
		severity := ClassifyFailureSeverity(autoCase.Score, manualCase.Score, rules)
		gap := manualCase.Score - autoCase.Score

		byCategory[category]++
		bySeverity[severity]++
		items = append(items, CaseItem{
			CaseID: autoCase.CaseID, Category: category, Severity: severity, Signal: signal,
			AutoScore: autoCase.Score, ManualScore: manualCase.Score, ScoreGap: gap,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].ScoreGap > items[j].ScoreGap })

	total := len(items)
	categoryRatio := map[string]float64{}
	severityRatio := map[string]float64{}
	for _, c := range categories {
		if total > 0 {
			categoryRatio[c] = float64(byCategory[c]) / float64(total)
		} else {
			categoryRatio[c] = 0
		}
	}
	for _, s := range severities {
		if total > 0 {
			severityRatio[s] = float64(bySeverity[s]) / float64(total)
		} else {
			severityRatio[s] = 0
		}
	}

	return Report{
		RulesID: rules.RulesID, RulesVersion: rules.Version,
		TotalFailures: total, FailureMargin: failureMargin,
		ByCategory: byCategory, ByCategoryRatio: categoryRatio,
		BySeverity: bySeverity, BySeverityRatio: severityRatio,
		CaseItems: items,
	}
}

// ClassifyFailureCase returns the (category, matched-keyword-or-signal) for
// one auto/manual case pair, by first-match over keyword lists, falling
// back to a manual-gap decomposition heuristic, then "other".
func ClassifyFailureCase(autoCase domain.CaseExecution, manualCase *domain.CaseExecution, rules Rules) (string, string) {
	combined := strings.ToLower(autoCase.Output + "\n" + autoCase.Rationale)
	manualHint := ""
	if manualCase != nil {
		manualHint = strings.ToLower(manualCase.Output + "\n" + manualCase.Rationale)
	}

	if kw := findFirstKeyword(combined, rules.ExecutionKeywords); kw != "" {
		return "execution_grounding", kw
	}
	if kw := findFirstKeyword(combined, rules.ToolKeywords); kw != "" {
		return "tool_selection", kw
	}
	if kw := findFirstKeyword(combined, rules.DecompositionKeywords); kw != "" {
		return "decomposition", kw
	}
	if kw := findFirstKeyword(combined, rules.VerifierMismatchKeywords); kw != "" {
		return "verifier_mismatch", kw
	}

	manualScore := 0.0
	if manualCase != nil {
		manualScore = manualCase.Score
	}
	if manualHint != "" && autoCase.Score+rules.FallbackDecompositionGapThreshold < manualScore {
		return "decomposition", fmt.Sprintf("manual_gap>=%.3f", rules.FallbackDecompositionGapThreshold)
	}
	return "other", "no_keyword_match"
}

// ClassifyFailureSeverity buckets the (clamped non-negative) score gap into
// mild/moderate/severe.
func ClassifyFailureSeverity(autoScore, manualScore float64, rules Rules) string {
	gap := manualScore - autoScore
	if gap < 0 {
		gap = 0
	}
	const epsilon = 1e-9
	if gap+epsilon >= rules.SevereGapThreshold {
		return "severe"
	}
	if gap+epsilon >= rules.ModerateGapThreshold {
		return "moderate"
	}
	return "mild"
}

func findFirstKeyword(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}
