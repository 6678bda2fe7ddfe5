// Package search implements the MCTS-style blueprint search engine: UCB1
// selection with a novelty bonus, prompt/tool/topology mutation,
// train/val/test holdout and a generalization-penalized model-selection
// objective, and historical per-tool gain via EMA.
package search

// Config mirrors SearchConfig: every knob is a direct field so the
// orchestration layer (and experiment profiles) can set it from a flat
// configuration source without an intermediate builder.
type Config struct {
	Rounds                    int
	ExpansionsPerRound        int
	EvaluationBudget          int
	ValidationBudget          int
	TestBudget                int
	UseHoldout                bool
	ExplorationWeight         float64
	NoveltyWeight             float64
	ConfidenceWeight          float64
	LatencyPenalty            float64
	CostPenalty               float64
	ComplexityPenalty         float64
	UncertaintyPenalty        float64
	GeneralizationPenalty     float64
	MinImprovement            float64
	Patience                  int
	EnablePromptMutation      bool
	EnableToolMutation        bool
	EnableTopologyMutation    bool
	EnableToolHistoricalGain  bool
}

// DefaultConfig mirrors SearchConfig's dataclass field defaults.
func DefaultConfig() Config {
	return Config{
		Rounds:                   8,
		ExpansionsPerRound:       2,
		EvaluationBudget:         8,
		ValidationBudget:         8,
		TestBudget:               8,
		UseHoldout:               true,
		ExplorationWeight:        1.4,
		NoveltyWeight:            0.2,
		ConfidenceWeight:         0.1,
		LatencyPenalty:           0.02,
		CostPenalty:              0.01,
		ComplexityPenalty:        0.05,
		UncertaintyPenalty:       0.1,
		GeneralizationPenalty:    0.3,
		MinImprovement:           0.001,
		Patience:                 3,
		EnablePromptMutation:     true,
		EnableToolMutation:       true,
		EnableTopologyMutation:   true,
		EnableToolHistoricalGain: true,
	}
}
