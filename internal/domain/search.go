package domain

// NodeID identifies a SearchNode within one run's arena.
type NodeID string

// SearchNode is one node of the in-memory search tree for a single run. It
// is ephemeral: never persisted directly, only its round traces are.
type SearchNode struct {
	NodeID        NodeID
	Blueprint     WorkflowBlueprint
	ParentID      NodeID // empty for the root
	Visits        int
	ValueSum      float64
	BestScore     float64
	LastReflection string
	LastTrainEval  *EvaluationSummary
	LastValEval    *EvaluationSummary
	ChildrenIDs   []NodeID
}

// MeanValue is value_sum/visits, or 0 when unvisited.
func (n SearchNode) MeanValue() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.ValueSum / float64(n.Visits)
}

// SearchRoundTrace is one row of the per-round search audit log.
type SearchRoundTrace struct {
	RoundNum            int     `json:"round_num"`
	SelectedNodeID       NodeID  `json:"selected_node_id"`
	SelectedBlueprintID  string  `json:"selected_blueprint_id"`
	Mutation             string  `json:"mutation"`
	TrainObjective        float64 `json:"train_objective"`
	ValObjective          float64 `json:"val_objective"`
	BestTrainObjective    float64 `json:"best_train_objective"`
	BestValObjective      float64 `json:"best_val_objective"`
	Improvement           float64 `json:"improvement"`
	Regret                float64 `json:"regret"`
	Uncertainty           float64 `json:"uncertainty"`
	GeneralizationGap     float64 `json:"generalization_gap"`
}
