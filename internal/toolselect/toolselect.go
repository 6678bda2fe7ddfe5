// Package toolselect ranks a tool catalog by intent keyword coverage,
// capability tags, and historical gain.
package toolselect

import (
	"sort"
	"strings"

	"station-aflowx-optimizer/internal/domain"
)

var capabilityKeywords = map[string][]string{
	"query":     {"query", "cypher", "search", "retrieve"},
	"analytics": {"analysis", "algorithm", "rank", "community"},
	"modeling":  {"schema", "label", "vertex", "edge", "model"},
	"import":    {"import", "extract", "ingest", "etl"},
	"qa":        {"knowledge", "qa", "summarize", "browser"},
}

var intentKeywords = map[string][]string{
	"query":     {"query", "cypher", "search", "schema"},
	"analytics": {"algorithm", "analysis", "rank", "community"},
	"modeling":  {"schema", "model", "label", "vertex", "edge"},
	"import":    {"import", "ingest", "extract", "etl"},
	"qa":        {"retrieval", "knowledge", "browser", "search"},
}

// inferCapabilities maps a tool to its normalized capability set, defaulting
// to {"general"} when nothing matches.
func inferCapabilities(t domain.Tool) map[string]bool {
	text := strings.ToLower(t.Name + " " + t.Description + " " + strings.Join(t.Tags, " "))
	caps := map[string]bool{}
	for capability, keywords := range capabilityKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				caps[capability] = true
				break
			}
		}
	}
	if len(caps) == 0 {
		caps["general"] = true
	}
	return caps
}

type scored struct {
	score float64
	name  string
	tool  domain.Tool
}

// Rank scores each tool by lexical keyword coverage + capability alignment
// + 0.5*historical gain, returning the top topK sorted by (-score, name).
func Rank(taskDesc string, intents []domain.Intent, catalog []domain.Tool, topK int, historicalGain map[string]float64) []domain.Tool {
	if historicalGain == nil {
		historicalGain = map[string]float64{}
	}
	normalizedTask := strings.ToLower(taskDesc)
	intentKeys := make([]string, len(intents))
	for i, in := range intents {
		intentKeys[i] = strings.ToLower(string(in))
	}

	weighted := make([]scored, 0, len(catalog))
	for _, tool := range catalog {
		caps := inferCapabilities(tool)
		text := strings.ToLower(tool.Name + " " + tool.Description + " " + strings.Join(tool.Tags, " "))

		var lexical, capabilityAlignment float64
		for _, intent := range intentKeys {
			for _, kw := range intentKeywords[intent] {
				if strings.Contains(text, kw) {
					lexical += 1.8
				}
				if strings.Contains(normalizedTask, kw) {
					lexical += 0.8
				}
			}
			if caps[intent] {
				capabilityAlignment += 1.5
			}
		}

		gainBonus := historicalGain[tool.Name]
		score := lexical + capabilityAlignment + 0.5*gainBonus
		weighted = append(weighted, scored{score: score, name: tool.Name, tool: tool})
	}

	sort.SliceStable(weighted, func(i, j int) bool {
		if weighted[i].score != weighted[j].score {
			return weighted[i].score > weighted[j].score
		}
		return weighted[i].name < weighted[j].name
	})

	if topK < 1 {
		topK = 1
	}
	if topK > len(weighted) {
		topK = len(weighted)
	}
	out := make([]domain.Tool, topK)
	for i := 0; i < topK; i++ {
		out[i] = weighted[i].tool
	}
	return out
}
