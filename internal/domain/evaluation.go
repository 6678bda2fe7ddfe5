package domain

// Split is one partition of a dataset.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// JudgeVote is one judge's opinion on a single case.
type JudgeVote struct {
	JudgeName string  `json:"judge_name"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// CaseExecution is the executor+judge result for one case.
type CaseExecution struct {
	CaseID     string      `json:"case_id"`
	Question   string      `json:"question"`
	Expected   string      `json:"expected"`
	Output     string      `json:"output"`
	Score      float64     `json:"score"`
	Rationale  string      `json:"rationale"`
	LatencyMs  float64     `json:"latency_ms"`
	TokenCost  float64     `json:"token_cost"`
	Confidence float64     `json:"confidence"`
	JudgeVotes []JudgeVote `json:"judge_votes"`
}

// EvaluationSummary aggregates a set of CaseExecutions for one blueprint on
// one split.
type EvaluationSummary struct {
	BlueprintID    string          `json:"blueprint_id"`
	MeanScore      float64         `json:"mean_score"`
	MeanLatencyMs  float64         `json:"mean_latency_ms"`
	MeanTokenCost  float64         `json:"mean_token_cost"`
	TotalCases     int             `json:"total_cases"`
	Reflection     string          `json:"reflection"`
	JudgeAgreement float64         `json:"judge_agreement"`
	ScoreStd       float64         `json:"score_std"`
	Split          Split           `json:"split"`
	CaseResults    []CaseExecution `json:"case_results"`
}

// MeanConfidence averages the confidence field across case results.
func (s EvaluationSummary) MeanConfidence() float64 {
	if len(s.CaseResults) == 0 {
		return 0
	}
	var sum float64
	for _, c := range s.CaseResults {
		sum += c.Confidence
	}
	return sum / float64(len(s.CaseResults))
}
