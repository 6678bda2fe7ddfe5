package workflowyaml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	legacyyaml "gopkg.in/yaml.v2"

	"station-aflowx-optimizer/internal/domain"
)

// LoadManualBlueprint resolves path under allowRoot, rejects traversal /
// non-existent / non-file paths, and parses either the internal JSON form
// (blueprint_id/experts/actions) or the external workflow.yml YAML form
// (app/experts[].profile+workflow/leader.actions).
func LoadManualBlueprint(allowRoot, path string) (domain.WorkflowBlueprint, error) {
	absRoot, err := filepath.Abs(allowRoot)
	if err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint allow-list root invalid: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint path invalid: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint path outside allow-list root: %s", path)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint path does not exist: %s", path)
	}
	if info.IsDir() {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint path is not a file: %s", path)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint unreadable: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext == ".json" {
		return decodeInternalJSON(raw)
	}
	if ext == ".yml" || ext == ".yaml" {
		return decodeExternalYAML(raw)
	}

	// Extensionless input: try JSON object first, then YAML mapping.
	var probe map[string]interface{}
	if json.Unmarshal(raw, &probe) == nil {
		return decodeInternalJSON(raw)
	}
	if legacyyaml.Unmarshal(raw, &probe) == nil {
		return decodeExternalYAML(raw)
	}
	return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint payload is not a JSON or YAML object")
}

func decodeInternalJSON(raw []byte) (domain.WorkflowBlueprint, error) {
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint JSON payload must be an object: %w", err)
	}
	if _, ok := probe["blueprint_id"]; !ok {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint JSON form requires blueprint_id")
	}
	var bp domain.WorkflowBlueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint JSON form malformed: %w", err)
	}
	if err := bp.Validate(); err != nil {
		return domain.WorkflowBlueprint{}, err
	}
	return bp, nil
}

// externalManifest mirrors the workflow.yml shape this package renders, but
// with looser field requirements since it is hand-authored input.
type externalManifest struct {
	App struct {
		Name string `yaml:"name"`
		Desc string `yaml:"desc"`
	} `yaml:"app"`
	Tools   []toolRow   `yaml:"tools"`
	Actions []actionRow `yaml:"actions"`
	Experts []struct {
		Profile  profileRow      `yaml:"profile"`
		Workflow [][]operatorRow `yaml:"workflow"`
	} `yaml:"experts"`
	Leader struct {
		Actions []nameRow `yaml:"actions"`
	} `yaml:"leader"`
	Env struct {
		Topology string `yaml:"topology"`
	} `yaml:"env"`
}

func decodeExternalYAML(raw []byte) (domain.WorkflowBlueprint, error) {
	var probe map[string]interface{}
	if err := legacyyaml.Unmarshal(raw, &probe); err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint YAML payload must be a mapping: %w", err)
	}
	if _, ok := probe["app"]; !ok {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint YAML form requires an app block")
	}
	if _, ok := probe["experts"]; !ok {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint YAML form requires an experts block")
	}

	var m externalManifest
	if err := legacyyaml.Unmarshal(raw, &m); err != nil {
		return domain.WorkflowBlueprint{}, fmt.Errorf("manual blueprint YAML form malformed: %w", err)
	}

	bp := domain.WorkflowBlueprint{
		BlueprintID: "manual-" + strings.ToLower(strings.ReplaceAll(m.App.Name, " ", "-")),
		AppName:     m.App.Name,
		TaskDesc:    m.App.Desc,
		Topology:    domain.Topology(m.Env.Topology),
		Metadata:    map[string]string{},
	}
	if bp.Topology == "" {
		bp.Topology = domain.TopologyLinear
	}

	for _, t := range m.Tools {
		if t.Schema != nil {
			if err := validateToolSchema(t.Name, t.Schema); err != nil {
				return domain.WorkflowBlueprint{}, err
			}
		}
		bp.Tools = append(bp.Tools, domain.Tool{Name: t.Name, ToolType: t.Type, ModulePath: t.ModulePath})
	}
	for _, a := range m.Actions {
		var toolNames []string
		for _, tr := range a.Tools {
			toolNames = append(toolNames, tr.Name)
		}
		bp.Actions = append(bp.Actions, domain.Action{Name: a.Name, Description: a.Desc, Tools: toolNames})
	}
	for _, e := range m.Experts {
		expert := domain.Expert{Name: e.Profile.Name, Description: e.Profile.Desc}
		if len(e.Workflow) > 0 {
			for _, op := range e.Workflow[0] {
				var actionNames []string
				for _, an := range op.Actions {
					actionNames = append(actionNames, an.Name)
				}
				expert.Operators = append(expert.Operators, domain.Operator{
					Instruction:  op.Instruction,
					OutputSchema: op.OutputSchema,
					Actions:      actionNames,
				})
			}
		}
		bp.Experts = append(bp.Experts, expert)
	}
	for _, a := range m.Leader.Actions {
		bp.LeaderActions = append(bp.LeaderActions, a.Name)
	}

	if err := bp.Validate(); err != nil {
		return domain.WorkflowBlueprint{}, err
	}
	return bp, nil
}

// validateToolSchema structurally validates an embedded tool input schema
// fragment by round-tripping it through an OpenAPI v3 schema object.
func validateToolSchema(toolName string, raw map[string]interface{}) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("manual blueprint tool %q schema not serializable: %w", toolName, err)
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(encoded); err != nil {
		return fmt.Errorf("manual blueprint tool %q schema malformed: %w", toolName, err)
	}
	if err := schema.Validate(context.Background()); err != nil {
		return fmt.Errorf("manual blueprint tool %q schema invalid: %w", toolName, err)
	}
	return nil
}
