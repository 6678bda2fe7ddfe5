package search

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"station-aflowx-optimizer/internal/domain"
)

func newBlueprintID() string {
	return fmt.Sprintf("bp-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func newNodeID() domain.NodeID {
	return domain.NodeID(fmt.Sprintf("node-%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:10]))
}

// BuildInitialBlueprint seeds the root candidate for a run: one
// leader-capable action per selected tool (capped at the first two for the
// leader), wired into topology-appropriate operators.
func BuildInitialBlueprint(appName, taskDesc string, selectedTools []domain.Tool, topology domain.Topology) domain.WorkflowBlueprint {
	var actions []domain.Action
	var leaderActions []string

	for idx, tool := range selectedTools {
		actionName := "use_" + strings.ToLower(tool.Name)
		actions = append(actions, domain.Action{
			Name:        actionName,
			Description: fmt.Sprintf("Use %s during graph reasoning.", tool.Name),
			Tools:       []string{tool.Name},
		})
		if idx < 2 {
			leaderActions = append(leaderActions, actionName)
		}
	}

	operators := BuildTopologyOperators(topology, leaderActions)
	expert := domain.Expert{
		Name:        "GraphTaskExpert",
		Description: "General graph task expert with planning, execution and verification capabilities.",
		Operators:   operators,
	}

	return domain.WorkflowBlueprint{
		BlueprintID:   newBlueprintID(),
		AppName:       appName,
		TaskDesc:      taskDesc,
		Topology:      topology,
		Tools:         selectedTools,
		Actions:       actions,
		Experts:       []domain.Expert{expert},
		LeaderActions: leaderActions,
		Metadata:      map[string]string{},
	}
}

// BuildTopologyOperators returns the fixed operator chain for a topology,
// all sharing the same seed action list.
func BuildTopologyOperators(topology domain.Topology, seedActions []string) []domain.Operator {
	switch topology {
	case domain.TopologyLinear:
		return []domain.Operator{
			{
				Name:         "linear_worker",
				Instruction:  "Solve the graph task with minimal steps and explicit evidence references.",
				OutputSchema: "answer: concise factual answer",
				Actions:      seedActions,
			},
		}
	case domain.TopologyPlannerWorkerReviewer:
		return []domain.Operator{
			{Name: "planner", Instruction: "Plan required graph operations and tools before execution.", OutputSchema: "plan: ordered graph actions", Actions: seedActions},
			{Name: "worker", Instruction: "Execute the plan and collect graph evidence.", OutputSchema: "draft_answer: evidence-backed result", Actions: seedActions},
			{Name: "reviewer", Instruction: "Audit draft answer and patch unsupported claims.", OutputSchema: "final_answer: corrected result", Actions: seedActions},
		}
	default: // TopologyRouterParallel
		return []domain.Operator{
			{Name: "router", Instruction: "Route request by intent and required capability.", OutputSchema: "route: chosen branch", Actions: seedActions},
			{Name: "worker_query", Instruction: "Process query branch with strict schema grounding.", OutputSchema: "query_result: branch output", Actions: seedActions},
			{Name: "worker_analysis", Instruction: "Process analytics branch with algorithm rationale.", OutputSchema: "analysis_result: branch output", Actions: seedActions},
			{Name: "synthesizer", Instruction: "Merge branch outputs and produce verified final answer.", OutputSchema: "final_answer: merged result", Actions: seedActions},
		}
	}
}

// InferIntents ranks a case list's intents by frequency and returns the top
// two, defaulting to QUERY when the case list is empty.
func InferIntents(cases []domain.SyntheticCase) []domain.Intent {
	counts := map[domain.Intent]int{}
	var order []domain.Intent
	for _, c := range cases {
		if _, ok := counts[c.Intent]; !ok {
			order = append(order, c.Intent)
		}
		counts[c.Intent]++
	}
	if len(order) == 0 {
		return []domain.Intent{domain.IntentQuery}
	}

	// Stable sort by count desc, first-seen order as tiebreak.
	sorted := append([]domain.Intent(nil), order...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && counts[sorted[j]] > counts[sorted[j-1]]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > 2 {
		sorted = sorted[:2]
	}
	return sorted
}
