package promptopt

import (
	"sync"

	"github.com/google/uuid"
)

// Variant is one scored, registered prompt candidate.
type Variant struct {
	VariantID string            `json:"variant_id"`
	RunID     string            `json:"run_id"`
	Prompt    string            `json:"prompt"`
	Source    string            `json:"source"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Registry is a run-scoped, mutex-guarded store of scored prompt
// candidates (per the Design Note on shared mutable state: one mutex per
// structure, no hidden globals).
type Registry struct {
	mu       sync.Mutex
	variants []Variant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register records a scored candidate with a fresh variant_id.
func (r *Registry) Register(runID, prompt, source string, score float64) Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := Variant{
		VariantID: uuid.NewString(),
		RunID:     runID,
		Prompt:    prompt,
		Source:    source,
		Score:     score,
	}
	r.variants = append(r.variants, v)
	return v
}

// All returns every registered variant across every run, in registration
// order (search.Engine attaches these to its Result for reporting).
func (r *Registry) All() []Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Variant, len(r.variants))
	copy(out, r.variants)
	return out
}

// ForRun returns every variant registered for the given run_id.
func (r *Registry) ForRun(runID string) []Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Variant, 0)
	for _, v := range r.variants {
		if v.RunID == runID {
			out = append(out, v)
		}
	}
	return out
}
