// Package schema derives the external API contract of a workflow from
// its input and output nodes.
package schema

import (
	"fmt"

	"github.com/reelforge/reelforge/pkg/types"
)

// InputSpec describes one externally supplied workflow parameter.
type InputSpec struct {
	Name         string          `json:"name"`
	Type         types.InputType `json:"type"`
	Required     bool            `json:"required"`
	DefaultValue string          `json:"defaultValue,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// OutputSpec describes one named workflow result slot.
type OutputSpec struct {
	Name string           `json:"name"`
	Type types.OutputKind `json:"type"`
}

// Schema is the callable contract of a workflow.
type Schema struct {
	Inputs  []InputSpec  `json:"inputs"`
	Outputs []OutputSpec `json:"outputs"`
}

// Extract derives the schema from the graph's input and output nodes.
// Nodes without a name are skipped; they are unreachable from the API.
func Extract(g *types.Graph) *Schema {
	s := &Schema{Inputs: []InputSpec{}, Outputs: []OutputSpec{}}

	for _, n := range g.Nodes {
		switch n.Type {
		case types.NodeTypeInput:
			d, ok := n.Data.(types.InputData)
			if !ok || d.Name == "" {
				continue
			}
			s.Inputs = append(s.Inputs, InputSpec{
				Name:         d.Name,
				Type:         d.InputType,
				Required:     d.Required,
				DefaultValue: d.DefaultValue,
				Description:  d.Description,
			})
		case types.NodeTypeOutput:
			d, ok := n.Data.(types.OutputData)
			if !ok || d.Name == "" {
				continue
			}
			s.Outputs = append(s.Outputs, OutputSpec{Name: d.Name, Type: d.OutputType})
		}
	}

	return s
}

// ValidateInputs checks the supplied values against the schema and
// returns one message per violation. An empty slice means the inputs
// are acceptable.
func ValidateInputs(s *Schema, inputs map[string]any) []string {
	var errs []string
	for _, in := range s.Inputs {
		if !in.Required {
			continue
		}
		v, ok := inputs[in.Name]
		if !ok || v == nil || v == "" {
			errs = append(errs, fmt.Sprintf("required input %q is missing", in.Name))
		}
	}
	return errs
}
