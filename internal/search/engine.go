package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"station-aflowx-optimizer/internal/domain"
	"station-aflowx-optimizer/internal/promptopt"
)

// EvaluateFunc runs one blueprint against one case split and returns the
// aggregated summary (evaluate.Evaluator.Evaluate bound to a context).
type EvaluateFunc func(ctx context.Context, bp domain.WorkflowBlueprint, cases []domain.SyntheticCase, split domain.Split) domain.EvaluationSummary

// OptimizePromptFunc generates the next prompt text for one operator given
// its current instruction and the failing cases that motivated a rewrite.
type OptimizePromptFunc func(prompt string, failures []string, taskDesc string) string

// RankToolsFunc ranks a tool catalog for the given task/intents, folding in
// historical per-tool gain (toolselect.Rank bound to its static args).
type RankToolsFunc func(taskDesc string, intents []domain.Intent, catalog []domain.Tool, topK int, historicalGain map[string]float64) []domain.Tool

// Engine is the MCTS-style search for prompt/tool/topology co-optimization
// with holdout control.
type Engine struct {
	evaluate       EvaluateFunc
	optimizePrompt OptimizePromptFunc
	rankTools      RankToolsFunc
	registry       *promptopt.Registry
	config         Config
}

// New builds an Engine. registry may be nil; when set, its variants are
// attached to the returned Result.
func New(evaluate EvaluateFunc, optimizePrompt OptimizePromptFunc, rankTools RankToolsFunc, registry *promptopt.Registry, config Config) *Engine {
	return &Engine{evaluate: evaluate, optimizePrompt: optimizePrompt, rankTools: rankTools, registry: registry, config: config}
}

// Result is the optimization output handed to the orchestration layer.
type Result struct {
	BestBlueprint        domain.WorkflowBlueprint
	BestEvaluation        domain.EvaluationSummary
	ValidationEvaluation  *domain.EvaluationSummary
	TestEvaluation        *domain.EvaluationSummary
	History               []domain.EvaluationSummary
	RoundTraces           []domain.SearchRoundTrace
	PromptVariants        []promptopt.Variant
	HistoricalToolGain    map[string]float64
}

type arena struct {
	nodes  map[domain.NodeID]*domain.SearchNode
	order  []domain.NodeID
	parent map[domain.NodeID]domain.NodeID
}

func newArena() *arena {
	return &arena{nodes: map[domain.NodeID]*domain.SearchNode{}, parent: map[domain.NodeID]domain.NodeID{}}
}

func (a *arena) add(n *domain.SearchNode, parent domain.NodeID) {
	a.nodes[n.NodeID] = n
	a.order = append(a.order, n.NodeID)
	if parent != "" {
		a.parent[n.NodeID] = parent
	}
}

// Optimize runs the full search loop over a blueprint arena rooted at
// rootBlueprint, returning the best-on-validation candidate plus the audit
// trail of every round.
func (e *Engine) Optimize(ctx context.Context, rootBlueprint domain.WorkflowBlueprint, dataset domain.SyntheticDataset, intents []domain.Intent, toolCatalog []domain.Tool) (Result, error) {
	cfg := e.config

	trainCases := sliceCases(pick(dataset.TrainCases, dataset.Cases), cfg.EvaluationBudget)
	var valCases, testCases []domain.SyntheticCase
	if cfg.UseHoldout {
		valCases = sliceCases(pick(dataset.ValCases, dataset.Cases), cfg.ValidationBudget)
		testCases = sliceCases(pick(dataset.TestCases, dataset.Cases), cfg.TestBudget)
	} else {
		valCases = trainCases
	}
	if len(trainCases) == 0 {
		return Result{}, fmt.Errorf("train cases must not be empty")
	}

	ar := newArena()
	evalTrain := map[string]domain.EvaluationSummary{}
	evalVal := map[string]domain.EvaluationSummary{}
	var history []domain.EvaluationSummary
	var roundTraces []domain.SearchRoundTrace
	historicalToolGain := map[string]float64{}

	root := &domain.SearchNode{NodeID: newNodeID(), Blueprint: rootBlueprint}
	ar.add(root, "")

	rootTrainEval := e.evaluate(ctx, rootBlueprint, trainCases, domain.SplitTrain)
	var rootValEval domain.EvaluationSummary
	if cfg.UseHoldout {
		rootValEval = e.evaluate(ctx, rootBlueprint, valCases, domain.SplitVal)
		history = append(history, rootTrainEval, rootValEval)
	} else {
		rootValEval = rootTrainEval
		history = append(history, rootTrainEval)
	}
	evalTrain[rootBlueprint.BlueprintID] = rootTrainEval
	evalVal[rootBlueprint.BlueprintID] = rootValEval

	rootObjective := e.objective(rootTrainEval, rootBlueprint)
	e.backpropagate(ar, root.NodeID, rootObjective)

	bestByTrainEval := rootTrainEval
	bestByTrainObjective := rootObjective

	bestByValBlueprint := rootBlueprint
	bestByValEval := rootValEval
	bestByValObjective := e.modelSelectionObjective(rootTrainEval, rootValEval, rootBlueprint)

	noImproveRounds := 0
	traceIdx := 0

	for roundIdx := 1; roundIdx <= cfg.Rounds; roundIdx++ {
		selected := e.select(ar)
		selectedTrainEval := evalTrain[selected.Blueprint.BlueprintID]
		selectedTrainObjective := e.objective(selectedTrainEval, selected.Blueprint)

		roundBestBefore := bestByValObjective

		for expansionIdx := 0; expansionIdx < cfg.ExpansionsPerRound; expansionIdx++ {
			candidate, mutation := e.mutate(selected.Blueprint, selectedTrainEval, intents, toolCatalog, historicalToolGain, roundIdx, expansionIdx)
			candidate.ParentID = selected.Blueprint.BlueprintID
			candidate.MutationTrace = append(append([]string(nil), candidate.MutationTrace...), mutation)

			child := &domain.SearchNode{NodeID: newNodeID(), Blueprint: candidate, ParentID: selected.NodeID}
			ar.add(child, selected.NodeID)
			selected.ChildrenIDs = append(selected.ChildrenIDs, child.NodeID)

			childTrainEval := e.evaluate(ctx, candidate, trainCases, domain.SplitTrain)
			var childValEval domain.EvaluationSummary
			if cfg.UseHoldout {
				childValEval = e.evaluate(ctx, candidate, valCases, domain.SplitVal)
				history = append(history, childTrainEval, childValEval)
			} else {
				childValEval = childTrainEval
				history = append(history, childTrainEval)
			}
			evalTrain[candidate.BlueprintID] = childTrainEval
			evalVal[candidate.BlueprintID] = childValEval

			childTrainObjective := e.objective(childTrainEval, candidate)
			childValObjective := e.modelSelectionObjective(childTrainEval, childValEval, candidate)
			e.backpropagate(ar, child.NodeID, childTrainObjective)

			if childTrainObjective > bestByTrainObjective {
				bestByTrainObjective = childTrainObjective
				bestByTrainEval = childTrainEval
			}
			if childValObjective > bestByValObjective {
				bestByValObjective = childValObjective
				bestByValBlueprint = candidate
				bestByValEval = childValEval
			}

			improvement := childTrainObjective - selectedTrainObjective
			e.updateToolGain(mutation, improvement, historicalToolGain)

			regret := math.Max(0, bestByValObjective-childValObjective)
			generalizationGap := 0.0
			if cfg.UseHoldout {
				generalizationGap = e.generalizationGap(childTrainEval, childValEval)
			}

			traceIdx++
			roundTraces = append(roundTraces, domain.SearchRoundTrace{
				RoundNum:           traceIdx,
				SelectedNodeID:     selected.NodeID,
				SelectedBlueprintID: selected.Blueprint.BlueprintID,
				Mutation:           mutation,
				TrainObjective:     childTrainObjective,
				ValObjective:       childValObjective,
				BestTrainObjective: bestByTrainObjective,
				BestValObjective:   bestByValObjective,
				Improvement:        improvement,
				Regret:             regret,
				Uncertainty:        e.uncertainty(childValEval),
				GeneralizationGap:  generalizationGap,
			})
		}

		roundImprovement := bestByValObjective - roundBestBefore
		if roundImprovement < cfg.MinImprovement {
			noImproveRounds++
		} else {
			noImproveRounds = 0
		}
		if noImproveRounds >= cfg.Patience {
			break
		}
	}

	var validationEval *domain.EvaluationSummary
	if cfg.UseHoldout {
		v := bestByValEval
		validationEval = &v
	}
	var testEval *domain.EvaluationSummary
	if cfg.UseHoldout && len(testCases) > 0 {
		t := e.evaluate(ctx, bestByValBlueprint, testCases, domain.SplitTest)
		history = append(history, t)
		testEval = &t
	}

	var variants []promptopt.Variant
	if e.registry != nil {
		variants = e.registry.All()
	}

	return Result{
		BestBlueprint:       bestByValBlueprint,
		BestEvaluation:      bestByTrainEval,
		ValidationEvaluation: validationEval,
		TestEvaluation:      testEval,
		History:             history,
		RoundTraces:          roundTraces,
		PromptVariants:       variants,
		HistoricalToolGain:   historicalToolGain,
	}, nil
}

func (e *Engine) select(ar *arena) *domain.SearchNode {
	totalVisits := 1
	for _, id := range ar.order {
		totalVisits += ar.nodes[id].Visits
	}

	var best *domain.SearchNode
	bestUCB := -1e9
	for _, id := range ar.order {
		node := ar.nodes[id]
		if node.Visits == 0 {
			return node
		}
		exploration := e.config.ExplorationWeight * math.Sqrt(math.Log(float64(totalVisits))/float64(maxInt(node.Visits, 1)))
		novelty := e.config.NoveltyWeight * e.noveltyBonus(node)
		score := node.MeanValue() + exploration + novelty
		if score > bestUCB {
			bestUCB = score
			best = node
		}
	}
	return best
}

func (e *Engine) mutate(parent domain.WorkflowBlueprint, parentEval domain.EvaluationSummary, intents []domain.Intent, toolCatalog []domain.Tool, historicalToolGain map[string]float64, roundIdx, expansionIdx int) (domain.WorkflowBlueprint, string) {
	var modes []string
	if e.config.EnablePromptMutation {
		modes = append(modes, "prompt")
	}
	if e.config.EnableToolMutation && len(toolCatalog) > 0 {
		modes = append(modes, "tool")
	}
	if e.config.EnableTopologyMutation {
		modes = append(modes, "topology")
	}
	if len(modes) == 0 {
		candidate := parent.Clone()
		candidate.BlueprintID = newBlueprintID()
		return candidate, "mutation:disabled"
	}

	mode := modes[(roundIdx+expansionIdx)%len(modes)]
	switch mode {
	case "prompt":
		return e.mutatePrompt(parent, parentEval)
	case "tool":
		gainSource := map[string]float64{}
		if e.config.EnableToolHistoricalGain {
			gainSource = historicalToolGain
		}
		return e.mutateTools(parent, intents, toolCatalog, gainSource)
	default:
		return e.mutateTopology(parent)
	}
}

func (e *Engine) mutatePrompt(parent domain.WorkflowBlueprint, parentEval domain.EvaluationSummary) (domain.WorkflowBlueprint, string) {
	candidate := parent.Clone()
	if len(candidate.Experts) == 0 || len(candidate.Experts[0].Operators) == 0 {
		candidate.BlueprintID = newBlueprintID()
		return candidate, "prompt:skip-empty"
	}

	var failures []string
	for _, r := range parentEval.CaseResults {
		if r.Score < 0.6 {
			failures = append(failures, fmt.Sprintf("%s score=%.2f reason=%s", r.CaseID, r.Score, r.Rationale))
		}
	}

	firstOperator := &candidate.Experts[0].Operators[0]
	firstOperator.Instruction = e.optimizePrompt(firstOperator.Instruction, failures, candidate.TaskDesc)

	candidate.BlueprintID = newBlueprintID()
	return candidate, fmt.Sprintf("prompt:optimize(%s)", firstOperator.Name)
}

func (e *Engine) mutateTools(parent domain.WorkflowBlueprint, intents []domain.Intent, toolCatalog []domain.Tool, historicalGain map[string]float64) (domain.WorkflowBlueprint, string) {
	candidate := parent.Clone()

	topK := len(candidate.Tools) + 1
	ranked := e.rankTools(candidate.TaskDesc, intents, toolCatalog, topK, historicalGain)

	existing := map[string]bool{}
	for _, t := range candidate.Tools {
		existing[t.Name] = true
	}
	var newTool *domain.Tool
	for i := range ranked {
		if !existing[ranked[i].Name] {
			newTool = &ranked[i]
			break
		}
	}

	if newTool != nil {
		candidate.Tools = append(candidate.Tools, *newTool)
		actionName := "use_" + strings.ToLower(newTool.Name)
		candidate.Actions = append(candidate.Actions, domain.Action{
			Name:        actionName,
			Description: fmt.Sprintf("Use %s to ground graph reasoning.", newTool.Name),
			Tools:       []string{newTool.Name},
		})
		for i := range candidate.Experts {
			for j := range candidate.Experts[i].Operators {
				op := &candidate.Experts[i].Operators[j]
				if !containsString(op.Actions, actionName) {
					op.Actions = append(op.Actions, actionName)
					break
				}
			}
		}
		candidate.BlueprintID = newBlueprintID()
		return candidate, fmt.Sprintf("tool:add(%s)", newTool.Name)
	}

	var removable []domain.Action
	for _, a := range candidate.Actions {
		if !containsString(candidate.LeaderActions, a.Name) {
			removable = append(removable, a)
		}
	}
	if len(removable) > 0 {
		removed := removable[len(removable)-1]
		var kept []domain.Action
		for _, a := range candidate.Actions {
			if a.Name != removed.Name {
				kept = append(kept, a)
			}
		}
		candidate.Actions = kept
		for i := range candidate.Experts {
			for j := range candidate.Experts[i].Operators {
				candidate.Experts[i].Operators[j].Actions = removeString(candidate.Experts[i].Operators[j].Actions, removed.Name)
			}
		}
		candidate.BlueprintID = newBlueprintID()
		return candidate, fmt.Sprintf("tool:remove(%s)", removed.Name)
	}

	candidate.BlueprintID = newBlueprintID()
	return candidate, "tool:noop"
}

func (e *Engine) mutateTopology(parent domain.WorkflowBlueprint) (domain.WorkflowBlueprint, string) {
	candidate := parent.Clone()
	candidate.Topology = candidate.Topology.Next()

	for i := range candidate.Experts {
		var seed []string
		if len(candidate.Experts[i].Operators) > 0 {
			seed = candidate.Experts[i].Operators[0].Actions
		}
		candidate.Experts[i].Operators = BuildTopologyOperators(candidate.Topology, seed)
	}

	candidate.BlueprintID = newBlueprintID()
	return candidate, fmt.Sprintf("topology:switch(%s)", candidate.Topology)
}

func (e *Engine) objective(summary domain.EvaluationSummary, bp domain.WorkflowBlueprint) float64 {
	complexity := bp.ActionCount() + bp.OperatorCount()
	confidence := summary.MeanConfidence()
	uncertainty := e.uncertainty(summary)
	return summary.MeanScore +
		e.config.ConfidenceWeight*confidence -
		e.config.LatencyPenalty*(summary.MeanLatencyMs/1000.0) -
		e.config.CostPenalty*summary.MeanTokenCost -
		e.config.ComplexityPenalty*(float64(complexity)/10.0) -
		e.config.UncertaintyPenalty*uncertainty
}

func (e *Engine) modelSelectionObjective(trainSummary, valSummary domain.EvaluationSummary, bp domain.WorkflowBlueprint) float64 {
	base := e.objective(valSummary, bp)
	if !e.config.UseHoldout {
		return base
	}
	gap := e.generalizationGap(trainSummary, valSummary)
	return base - e.config.GeneralizationPenalty*gap
}

func (e *Engine) uncertainty(summary domain.EvaluationSummary) float64 {
	agreementGap := 1.0 - clamp01(summary.JudgeAgreement)
	scoreSpread := math.Max(0, summary.ScoreStd)
	return agreementGap + scoreSpread
}

func (e *Engine) generalizationGap(trainSummary, valSummary domain.EvaluationSummary) float64 {
	return math.Max(0, trainSummary.MeanScore-valSummary.MeanScore)
}

func (e *Engine) noveltyBonus(node *domain.SearchNode) float64 {
	seen := map[string]bool{}
	for _, m := range node.Blueprint.MutationTrace {
		seen[m] = true
	}
	return float64(len(seen)) + node.Blueprint.Topology.NoveltyBonus()
}

func (e *Engine) backpropagate(ar *arena, nodeID domain.NodeID, reward float64) {
	cursor := nodeID
	for {
		node := ar.nodes[cursor]
		node.Visits++
		node.ValueSum += reward
		if reward > node.BestScore {
			node.BestScore = reward
		}
		parent, ok := ar.parent[cursor]
		if !ok {
			return
		}
		cursor = parent
	}
}

func (e *Engine) updateToolGain(mutation string, improvement float64, historicalToolGain map[string]float64) {
	if !e.config.EnableToolHistoricalGain {
		return
	}
	const prefix = "tool:add("
	if !strings.HasPrefix(mutation, prefix) {
		return
	}
	toolName := strings.TrimSuffix(strings.TrimPrefix(mutation, prefix), ")")
	old := historicalToolGain[toolName]
	historicalToolGain[toolName] = 0.7*old + 0.3*improvement
}

func sliceCases(cases []domain.SyntheticCase, budget int) []domain.SyntheticCase {
	n := maxInt(1, budget)
	if n > len(cases) {
		n = len(cases)
	}
	return cases[:n]
}

func pick(primary, fallback []domain.SyntheticCase) []domain.SyntheticCase {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func removeString(xs []string, x string) []string {
	out := make([]string, 0, len(xs))
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
