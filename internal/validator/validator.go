// Package validator provides structural validation for workflow graph
// documents: JSON schema checks on the document shape plus type checks
// on individual connections.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reelforge/reelforge/pkg/types"
)

// Validator validates workflow graph documents.
type Validator struct {
	graphSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new validator with the embedded graph schema.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("graph.json", strings.NewReader(graphSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add graph schema: %w", err)
	}

	graphSchema, err := compiler.Compile("graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &Validator{graphSchema: graphSchema}, nil
}

// ValidateGraphJSON validates a JSON-encoded graph document. Schema
// violations and type-incompatible edges are both reported; edge checks
// run only once the document shape is sound.
func (v *Validator) ValidateGraphJSON(data []byte) *ValidationResult {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}

	if result := v.validate(doc); !result.Valid {
		return result
	}

	var graph types.Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$.nodes", Message: err.Error()},
			},
		}
	}
	return v.ValidateGraph(&graph)
}

// ValidateGraph runs the semantic checks on a decoded graph: unique node
// ids and type-compatible edges.
func (v *Validator) ValidateGraph(g *types.Graph) *ValidationResult {
	result := &ValidationResult{Valid: true}

	seen := make(map[string]struct{}, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Path:    fmt.Sprintf("$.nodes[%d].id", i),
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
			})
		}
		seen[n.ID] = struct{}{}
	}

	for i, e := range g.Edges {
		if !IsValidConnection(g, e) {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Path:    fmt.Sprintf("$.edges[%d]", i),
				Message: fmt.Sprintf("invalid connection %s -> %s (handle %q)", e.Source, e.Target, e.TargetKey()),
			})
		}
	}

	return result
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(data interface{}) *ValidationResult {
	err := v.graphSchema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}

	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}

	return errors
}

// Embedded JSON schema

const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "graph.json",
  "title": "Workflow Graph",
  "description": "Schema for workflow graph documents",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {
            "type": "string",
            "minLength": 1,
            "description": "Unique node identifier"
          },
          "type": {
            "type": "string",
            "enum": [
              "text", "list", "image", "video", "input", "output",
              "gallery", "imageGen", "videoGen", "videoI2V", "videoKeyframe"
            ],
            "description": "Node type"
          },
          "data": {
            "type": "object",
            "description": "Type-specific node payload"
          }
        }
      },
      "description": "Nodes of the workflow graph"
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "id": {
            "type": "string",
            "description": "Edge identifier"
          },
          "source": {
            "type": "string",
            "minLength": 1,
            "description": "Source node id"
          },
          "target": {
            "type": "string",
            "minLength": 1,
            "description": "Target node id"
          },
          "sourceHandle": {
            "type": ["string", "null"],
            "description": "Source handle id"
          },
          "targetHandle": {
            "type": ["string", "null"],
            "description": "Target handle id"
          }
        }
      },
      "description": "Directed connections between nodes"
    }
  }
}`
