// Package workflowyaml renders a WorkflowBlueprint into the workflow.yml
// manifest shape and loads manual blueprints back, preserving its
// deliberately nested-singleton-list quirks (`toolkit`, `experts[].workflow`).
package workflowyaml

import (
	"gopkg.in/yaml.v3"

	"station-aflowx-optimizer/internal/domain"
)

type nameRow struct {
	Name string `yaml:"name"`
}

type toolRow struct {
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	ModulePath string                 `yaml:"module_path,omitempty"`
	Schema     map[string]interface{} `yaml:"schema,omitempty"`
}

type actionRow struct {
	Name  string    `yaml:"name"`
	Desc  string    `yaml:"desc"`
	Tools []nameRow `yaml:"tools"`
}

type operatorRow struct {
	Instruction  string    `yaml:"instruction"`
	OutputSchema string    `yaml:"output_schema"`
	Actions      []nameRow `yaml:"actions"`
}

type expertRow struct {
	Profile  profileRow        `yaml:"profile"`
	Workflow [][]operatorRow   `yaml:"workflow"`
}

type profileRow struct {
	Name string `yaml:"name"`
	Desc string `yaml:"desc"`
}

type appRow struct {
	Name    string `yaml:"name"`
	Desc    string `yaml:"desc"`
	Version string `yaml:"version"`
}

type envRow struct {
	Topology string            `yaml:"topology"`
	Meta     map[string]string `yaml:"meta"`
}

// manifest is the top-level workflow.yml document.
type manifest struct {
	App           appRow              `yaml:"app"`
	Plugin        map[string]string   `yaml:"plugin"`
	Reasoner      map[string]string   `yaml:"reasoner"`
	Tools         []toolRow           `yaml:"tools"`
	Actions       []actionRow         `yaml:"actions"`
	Toolkit       [][]nameRow         `yaml:"toolkit"`
	Experts       []expertRow         `yaml:"experts"`
	Leader        struct {
		Actions []nameRow `yaml:"actions"`
	} `yaml:"leader"`
	Knowledgebase map[string]string `yaml:"knowledgebase"`
	Memory        map[string]string `yaml:"memory"`
	Env           envRow            `yaml:"env"`
}

func toPayload(bp domain.WorkflowBlueprint) manifest {
	m := manifest{
		App:           appRow{Name: bp.AppName, Desc: bp.TaskDesc, Version: "0.1.0"},
		Plugin:        map[string]string{"workflow_platform": "BUILTIN"},
		Reasoner:      map[string]string{"type": "DUAL"},
		Knowledgebase: map[string]string{},
		Memory:        map[string]string{},
		Env:           envRow{Topology: string(bp.Topology), Meta: bp.Metadata},
	}

	for _, t := range bp.Tools {
		m.Tools = append(m.Tools, toolRow{Name: t.Name, Type: t.ToolType, ModulePath: t.ModulePath})
	}

	for _, a := range bp.Actions {
		row := actionRow{Name: a.Name, Desc: a.Description}
		for _, tn := range a.Tools {
			row.Tools = append(row.Tools, nameRow{Name: tn})
		}
		m.Actions = append(m.Actions, row)
		m.Toolkit = append(m.Toolkit, []nameRow{{Name: a.Name}})
	}

	for _, e := range bp.Experts {
		var operators []operatorRow
		for _, op := range e.Operators {
			row := operatorRow{Instruction: op.Instruction, OutputSchema: op.OutputSchema}
			for _, an := range op.Actions {
				row.Actions = append(row.Actions, nameRow{Name: an})
			}
			operators = append(operators, row)
		}
		m.Experts = append(m.Experts, expertRow{
			Profile:  profileRow{Name: e.Name, Desc: e.Description},
			Workflow: [][]operatorRow{operators},
		})
	}

	for _, an := range bp.LeaderActions {
		m.Leader.Actions = append(m.Leader.Actions, nameRow{Name: an})
	}

	return m
}

// Render materializes a blueprint into the workflow.yml byte shape.
func Render(bp domain.WorkflowBlueprint) ([]byte, error) {
	return yaml.Marshal(toPayload(bp))
}
