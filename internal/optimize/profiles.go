// Package optimize implements the orchestration service: the
// experiment-profile knob matrix, the Optimize()/BenchmarkManualParity()
// entry points and their wiring into search/evaluate/synth/artifact/db.
package optimize

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"
)

// Knobs is one experiment profile's resolved toggle set.
type Knobs struct {
	Name                      string
	DynamicDataset            bool
	EnableParaphrase          bool
	EnableHardNegatives       bool
	UseEnsembleJudge          bool
	EnablePromptMutation      bool
	EnableToolMutation        bool
	EnableTopologyMutation    bool
	EnableFailureAwareMutation bool
	UseHoldout                bool
	EnableToolHistoricalGain  bool
	UncertaintyPenalty        float64
	GeneralizationPenalty     float64
}

func fullSystem() Knobs {
	return Knobs{
		Name:                      "full_system",
		DynamicDataset:            true,
		EnableParaphrase:          true,
		EnableHardNegatives:       true,
		UseEnsembleJudge:          true,
		EnablePromptMutation:      true,
		EnableToolMutation:        true,
		EnableTopologyMutation:    true,
		EnableFailureAwareMutation: true,
		UseHoldout:                true,
		EnableToolHistoricalGain:  true,
		UncertaintyPenalty:        0.1,
		GeneralizationPenalty:     0.3,
	}
}

// profiles is the documented profile table: every profile starts from
// full_system and overrides only the knobs its name implies.
var profiles = buildProfiles()

func buildProfiles() map[string]Knobs {
	full := fullSystem()

	baseline := full
	baseline.Name = "baseline_static_prompt_only"
	baseline.DynamicDataset = false
	baseline.EnableParaphrase = false
	baseline.EnableHardNegatives = false
	baseline.UseEnsembleJudge = false
	baseline.EnableToolMutation = false
	baseline.EnableTopologyMutation = false
	baseline.EnableFailureAwareMutation = false
	baseline.EnableToolHistoricalGain = false

	dynamicPromptOnly := full
	dynamicPromptOnly.Name = "dynamic_prompt_only"
	dynamicPromptOnly.EnableToolMutation = false
	dynamicPromptOnly.EnableTopologyMutation = false
	dynamicPromptOnly.EnableToolHistoricalGain = false

	dynamicPromptTool := full
	dynamicPromptTool.Name = "dynamic_prompt_tool"
	dynamicPromptTool.EnableTopologyMutation = false

	ablationNoHoldout := full
	ablationNoHoldout.Name = "ablation_no_holdout"
	ablationNoHoldout.UseHoldout = false
	ablationNoHoldout.UncertaintyPenalty = 0.12

	ablationSingleJudge := full
	ablationSingleJudge.Name = "ablation_single_judge"
	ablationSingleJudge.UseEnsembleJudge = false

	ablationNoHardNegative := full
	ablationNoHardNegative.Name = "ablation_no_hard_negative"
	ablationNoHardNegative.EnableHardNegatives = false

	ablationNoToolGain := full
	ablationNoToolGain.Name = "ablation_no_tool_gain"
	ablationNoToolGain.EnableToolHistoricalGain = false

	ablationNoTopologyMutation := full
	ablationNoTopologyMutation.Name = "ablation_no_topology_mutation"
	ablationNoTopologyMutation.EnableTopologyMutation = false

	ideaFailureAwareMutation := full
	ideaFailureAwareMutation.Name = "idea_failure_aware_mutation"
	ideaFailureAwareMutation.EnableFailureAwareMutation = true

	return map[string]Knobs{
		full.Name:                       full,
		baseline.Name:                   baseline,
		dynamicPromptOnly.Name:          dynamicPromptOnly,
		dynamicPromptTool.Name:          dynamicPromptTool,
		ablationNoHoldout.Name:          ablationNoHoldout,
		ablationSingleJudge.Name:        ablationSingleJudge,
		ablationNoHardNegative.Name:     ablationNoHardNegative,
		ablationNoToolGain.Name:         ablationNoToolGain,
		ablationNoTopologyMutation.Name: ablationNoTopologyMutation,
		ideaFailureAwareMutation.Name:   ideaFailureAwareMutation,
	}
}

// Resolve looks up a named profile, falling back to full_system for any
// unknown name.
func Resolve(name string) Knobs {
	if k, ok := profiles[name]; ok {
		return k
	}
	return fullSystem()
}

// ResolveWithOverride behaves like Resolve but first applies a
// profiles.star override file when overridePath is non-empty: the script
// must define a `knobs(name)` function returning a dict of the Knobs
// fields to overlay onto the resolved profile.
func ResolveWithOverride(name, overridePath string) (Knobs, error) {
	base := Resolve(name)
	if overridePath == "" {
		return base, nil
	}
	if _, err := os.Stat(overridePath); err != nil {
		return base, nil
	}

	thread := &starlark.Thread{Name: "profiles.star"}
	globals, err := starlark.ExecFile(thread, overridePath, nil, nil)
	if err != nil {
		return Knobs{}, fmt.Errorf("profiles.star override failed: %w", err)
	}
	knobsFn, ok := globals["knobs"]
	if !ok {
		return base, nil
	}
	fn, ok := knobsFn.(starlark.Callable)
	if !ok {
		return Knobs{}, fmt.Errorf("profiles.star: knobs must be a function")
	}
	result, err := starlark.Call(thread, fn, starlark.Tuple{starlark.String(name)}, nil)
	if err != nil {
		return Knobs{}, fmt.Errorf("profiles.star: knobs(%q) failed: %w", name, err)
	}
	overlay, ok := result.(*starlark.Dict)
	if !ok {
		return Knobs{}, fmt.Errorf("profiles.star: knobs(%q) must return a dict", name)
	}
	return applyOverlay(base, overlay)
}

func applyOverlay(base Knobs, overlay *starlark.Dict) (Knobs, error) {
	for _, item := range overlay.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			continue
		}
		switch string(key) {
		case "dynamic_dataset":
			base.DynamicDataset = starlarkTruth(item[1])
		case "enable_paraphrase":
			base.EnableParaphrase = starlarkTruth(item[1])
		case "enable_hard_negatives":
			base.EnableHardNegatives = starlarkTruth(item[1])
		case "use_ensemble_judge":
			base.UseEnsembleJudge = starlarkTruth(item[1])
		case "enable_prompt_mutation":
			base.EnablePromptMutation = starlarkTruth(item[1])
		case "enable_tool_mutation":
			base.EnableToolMutation = starlarkTruth(item[1])
		case "enable_topology_mutation":
			base.EnableTopologyMutation = starlarkTruth(item[1])
		case "enable_failure_aware_mutation":
			base.EnableFailureAwareMutation = starlarkTruth(item[1])
		case "use_holdout":
			base.UseHoldout = starlarkTruth(item[1])
		case "enable_tool_historical_gain":
			base.EnableToolHistoricalGain = starlarkTruth(item[1])
		case "uncertainty_penalty":
			if f, ok := starlark.AsFloat(item[1]); ok {
				base.UncertaintyPenalty = f
			}
		case "generalization_penalty":
			if f, ok := starlark.AsFloat(item[1]); ok {
				base.GeneralizationPenalty = f
			}
		}
	}
	return base, nil
}

func starlarkTruth(v starlark.Value) bool {
	return v.Truth() == starlark.True
}
