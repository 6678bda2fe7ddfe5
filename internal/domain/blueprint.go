// Package domain holds the immutable value types shared by every component
// of the optimization pipeline: blueprints, synthetic cases and datasets,
// case executions, evaluation summaries, search nodes/traces, and the
// persisted record shapes (agent versions, runs, async jobs, idempotency).
package domain

import (
	"fmt"
	"time"
)

// Topology is the orchestration shape of a blueprint's experts.
type Topology string

const (
	TopologyLinear                 Topology = "LINEAR"
	TopologyPlannerWorkerReviewer  Topology = "PLANNER_WORKER_REVIEWER"
	TopologyRouterParallel         Topology = "ROUTER_PARALLEL"
)

// NoveltyBonus is the fixed novelty contribution per topology used by the
// search engine's selection score.
func (t Topology) NoveltyBonus() float64 {
	switch t {
	case TopologyLinear:
		return 0.1
	case TopologyPlannerWorkerReviewer:
		return 0.4
	case TopologyRouterParallel:
		return 0.6
	default:
		return 0
	}
}

// Next cycles LINEAR -> PWR -> ROUTER -> LINEAR.
func (t Topology) Next() Topology {
	switch t {
	case TopologyLinear:
		return TopologyPlannerWorkerReviewer
	case TopologyPlannerWorkerReviewer:
		return TopologyRouterParallel
	default:
		return TopologyLinear
	}
}

// Tool is a callable capability a blueprint may bind into its actions.
type Tool struct {
	Name        string   `json:"name"`
	ModulePath  string   `json:"module_path"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ToolType    string   `json:"tool_type"`
}

// Action groups one or more tools behind a named step.
type Action struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

// Operator is one stage of an expert's workflow.
type Operator struct {
	Name         string   `json:"name"`
	Instruction  string   `json:"instruction"`
	OutputSchema string   `json:"output_schema"`
	Actions      []string `json:"actions"`
}

// Expert is a named role composed of ordered operators.
type Expert struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Operators   []Operator `json:"operators"`
}

// WorkflowBlueprint is the optimization subject: prompts, tool bindings and
// topology for one candidate agent workflow.
type WorkflowBlueprint struct {
	BlueprintID    string            `json:"blueprint_id"`
	AppName        string            `json:"app_name"`
	TaskDesc       string            `json:"task_desc"`
	Topology       Topology          `json:"topology"`
	Tools          []Tool            `json:"tools"`
	Actions        []Action          `json:"actions"`
	Experts        []Expert          `json:"experts"`
	LeaderActions  []string          `json:"leader_actions"`
	ParentID       string            `json:"parent_id,omitempty"`
	MutationTrace  []string          `json:"mutation_trace"`
	Metadata       map[string]string `json:"metadata"`
}

// Validate enforces the blueprint's referential invariants: every action
// referenced by an operator or the leader must exist, and every tool
// referenced by an action must exist.
func (b WorkflowBlueprint) Validate() error {
	toolNames := make(map[string]bool, len(b.Tools))
	for _, t := range b.Tools {
		toolNames[t.Name] = true
	}
	actionNames := make(map[string]bool, len(b.Actions))
	for _, a := range b.Actions {
		actionNames[a.Name] = true
		for _, tn := range a.Tools {
			if !toolNames[tn] {
				return fmt.Errorf("blueprint %s: action %q references unknown tool %q", b.BlueprintID, a.Name, tn)
			}
		}
	}
	for _, e := range b.Experts {
		for _, op := range e.Operators {
			for _, an := range op.Actions {
				if !actionNames[an] {
					return fmt.Errorf("blueprint %s: operator %q references unknown action %q", b.BlueprintID, op.Name, an)
				}
			}
		}
	}
	for _, an := range b.LeaderActions {
		if !actionNames[an] {
			return fmt.Errorf("blueprint %s: leader references unknown action %q", b.BlueprintID, an)
		}
	}
	return nil
}

// Clone deep-copies the blueprint so mutations never alias the parent.
func (b WorkflowBlueprint) Clone() WorkflowBlueprint {
	c := b
	c.Tools = append([]Tool(nil), b.Tools...)
	for i := range c.Tools {
		c.Tools[i].Tags = append([]string(nil), b.Tools[i].Tags...)
	}
	c.Actions = make([]Action, len(b.Actions))
	for i, a := range b.Actions {
		c.Actions[i] = a
		c.Actions[i].Tools = append([]string(nil), a.Tools...)
	}
	c.Experts = make([]Expert, len(b.Experts))
	for i, e := range b.Experts {
		c.Experts[i] = e
		c.Experts[i].Operators = make([]Operator, len(e.Operators))
		for j, op := range e.Operators {
			c.Experts[i].Operators[j] = op
			c.Experts[i].Operators[j].Actions = append([]string(nil), op.Actions...)
		}
	}
	c.LeaderActions = append([]string(nil), b.LeaderActions...)
	c.MutationTrace = append([]string(nil), b.MutationTrace...)
	c.Metadata = make(map[string]string, len(b.Metadata))
	for k, v := range b.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// ActionCount and OperatorCount feed the search engine's complexity penalty.
func (b WorkflowBlueprint) ActionCount() int { return len(b.Actions) }

func (b WorkflowBlueprint) OperatorCount() int {
	n := 0
	for _, e := range b.Experts {
		n += len(e.Operators)
	}
	return n
}

// Timestamped is embedded by persisted record types.
type Timestamped struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
