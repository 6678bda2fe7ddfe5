// Package externalpb holds the hand-maintained message/service types for the
// external runtime bridge: the downstream system that actually executes a
// blueprint, modeled here as a narrow gRPC service rather than generated
// from a .proto file, since no schema registry ships with this module.
package externalpb

// ExecuteCaseRequest carries one (blueprint, case) execution request.
type ExecuteCaseRequest struct {
	BlueprintYAML string
	CaseID        string
	Question      string
	Expected      string
}

// ExecuteCaseResponse is the downstream runtime's raw output, before the
// judge ensemble scores it.
type ExecuteCaseResponse struct {
	Output    string
	LatencyMs float64
	TokenCost float64
}

// FetchSchemaResponse mirrors Executor.FetchSchemaSnapshot.
type FetchSchemaResponse struct {
	Labels    []string
	Relations []string
}

// FetchToolCatalogResponse mirrors Executor.FetchToolCatalog.
type FetchToolCatalogResponse struct {
	Tools []ToolSpec
}

// ToolSpec is the wire shape of domain.Tool.
type ToolSpec struct {
	Name        string
	ModulePath  string
	Description string
	Tags        []string
	ToolType    string
}
