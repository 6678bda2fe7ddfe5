// Package synth implements the dataset synthesizer: schema-aware case
// generation with paraphrase and hard-negative augmentation, and
// train/val/test splitting.
package synth

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"station-aflowx-optimizer/internal/domain"
)

// Options controls the knobs the profile resolver (C9) can toggle.
type Options struct {
	RandomSeed          uint64
	EnableParaphrase    bool
	EnableHardNegatives bool
	TrainRatio          float64
	ValRatio            float64
	TestRatio           float64
}

// DefaultOptions is the default split ratios with both augmentation knobs
// enabled.
func DefaultOptions(seed uint64) Options {
	return Options{
		RandomSeed:          seed,
		EnableParaphrase:    true,
		EnableHardNegatives: true,
		TrainRatio:          0.6,
		ValRatio:            0.2,
		TestRatio:           0.2,
	}
}

// AnswerResolver resolves a question's expected answer; defaults to
// "UNKNOWN" when the caller doesn't provide one.
type AnswerResolver func(question string) string

// Synthesizer generates SyntheticDatasets from a task description and a
// schema snapshot.
type Synthesizer struct {
	opts     Options
	resolver AnswerResolver
	rng      *rand.Rand
}

// New builds a Synthesizer seeded per opts.RandomSeed, the sole randomness
// source touching dataset split/paraphrase/hard-negative selection (Design
// Note "Nondeterminism").
func New(opts Options, resolver AnswerResolver) (*Synthesizer, error) {
	if opts.TrainRatio+opts.ValRatio+opts.TestRatio != 1.0 {
		if absDiff(opts.TrainRatio+opts.ValRatio+opts.TestRatio, 1.0) > 1e-9 {
			return nil, fmt.Errorf("bad ratios: train+val+test must sum to 1.0, got %v", opts.TrainRatio+opts.ValRatio+opts.TestRatio)
		}
	}
	if resolver == nil {
		resolver = func(string) string { return "UNKNOWN" }
	}
	return &Synthesizer{
		opts:     opts,
		resolver: resolver,
		rng:      rand.New(rand.NewPCG(opts.RandomSeed, opts.RandomSeed^0x9e3779b97f4a7c15)),
	}, nil
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

type seedTemplate struct {
	intent domain.Intent
	text   string
}

var templatesByIntent = map[domain.Intent][]string{
	domain.IntentQuery: {
		"Find {label} entities linked by {relation} and return key properties.",
		"Which {label} nodes satisfy path constraints through {relation}?",
	},
	domain.IntentAnalytics: {
		"Run graph analytics on {label} using {relation} and explain top findings.",
		"Identify anomalous subgraphs in {label} connected by {relation}.",
	},
	domain.IntentModeling: {
		"Design schema evolution for {label} and relationship {relation}.",
		"Propose constraints for {label} connected via {relation}.",
	},
	domain.IntentImport: {
		"Create an ingestion plan for {label} and map edges via {relation}.",
		"Define pre-import validation for {label} with {relation}.",
	},
	domain.IntentQA: {
		"Explain the semantic meaning of {label} and {relation} in this graph.",
		"Provide concise domain summary centered on {label}/{relation}.",
	},
}

// inferIntents picks 1-2 intents by case-insensitive substring matching
// (English + Chinese keyword lists), defaulting to [QUERY, ANALYTICS].
func inferIntents(taskDesc string) []domain.Intent {
	text := strings.ToLower(taskDesc)
	include := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	var intents []domain.Intent
	if include("query", "查询", "cypher", "查找") {
		intents = append(intents, domain.IntentQuery)
	}
	if include("analytics", "analysis", "算法", "rank", "社区") {
		intents = append(intents, domain.IntentAnalytics)
	}
	if include("model", "schema", "建模", "实体", "关系") {
		intents = append(intents, domain.IntentModeling)
	}
	if include("import", "导入", "etl", "ingest") {
		intents = append(intents, domain.IntentImport)
	}
	if include("qa", "问答", "summarize", "explain", "介绍") {
		intents = append(intents, domain.IntentQA)
	}

	if len(intents) == 0 {
		intents = []domain.Intent{domain.IntentQuery, domain.IntentAnalytics}
	}
	if len(intents) > 2 {
		intents = intents[:2]
	}
	return intents
}

func buildTemplates(intents []domain.Intent) []seedTemplate {
	var seeds []seedTemplate
	for _, intent := range intents {
		for _, tmpl := range templatesByIntent[intent] {
			seeds = append(seeds, seedTemplate{intent: intent, text: tmpl})
		}
	}
	return seeds
}

func render(tmpl, label, relation string) string {
	s := strings.ReplaceAll(tmpl, "{label}", label)
	s = strings.ReplaceAll(s, "{relation}", relation)
	return s
}

func paraphrase(question string) []string {
	candidates := []string{
		strings.Replace(question, "Find", "Locate", 1),
		strings.Replace(question, "Which", "List", 1),
		strings.Replace(question, "Explain", "Summarize", 1),
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != question {
			out = append(out, c)
		}
	}
	return out
}

func dedupe(questions []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		key := strings.Join(strings.Fields(strings.ToLower(q)), " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func pickFrom(rng *rand.Rand, xs []string) string { return xs[rng.IntN(len(xs))] }
func pickTemplate(rng *rand.Rand, xs []seedTemplate) seedTemplate { return xs[rng.IntN(len(xs))] }
