package schema

import (
	"testing"

	"github.com/reelforge/reelforge/pkg/types"
)

func testGraph() *types.Graph {
	return &types.Graph{Nodes: []types.Node{
		{ID: "in1", Type: types.NodeTypeInput, Data: types.InputData{
			Name: "subject", InputType: types.InputString, Required: true, Description: "main subject",
		}},
		{ID: "in2", Type: types.NodeTypeInput, Data: types.InputData{
			Name: "style", InputType: types.InputString, DefaultValue: "photo",
		}},
		{ID: "in3", Type: types.NodeTypeInput, Data: types.InputData{InputType: types.InputString}},
		{ID: "t", Type: types.NodeTypeText, Data: types.TextData{Value: "{subject} {style}"}},
		{ID: "out1", Type: types.NodeTypeOutput, Data: types.OutputData{Name: "image", OutputType: types.OutputKindImage}},
		{ID: "out2", Type: types.NodeTypeOutput, Data: types.OutputData{}},
	}}
}

func TestExtract(t *testing.T) {
	s := Extract(testGraph())

	if len(s.Inputs) != 2 {
		t.Fatalf("inputs = %+v", s.Inputs)
	}
	if s.Inputs[0].Name != "subject" || !s.Inputs[0].Required {
		t.Errorf("inputs[0] = %+v", s.Inputs[0])
	}
	if s.Inputs[1].DefaultValue != "photo" {
		t.Errorf("inputs[1] = %+v", s.Inputs[1])
	}

	if len(s.Outputs) != 1 || s.Outputs[0].Name != "image" {
		t.Errorf("outputs = %+v", s.Outputs)
	}
}

func TestExtractEmptyGraph(t *testing.T) {
	s := Extract(&types.Graph{})
	if s.Inputs == nil || s.Outputs == nil {
		t.Error("slices should be non-nil for JSON serialization")
	}
	if len(s.Inputs) != 0 || len(s.Outputs) != 0 {
		t.Errorf("schema = %+v", s)
	}
}

func TestValidateInputs(t *testing.T) {
	s := Extract(testGraph())

	if errs := ValidateInputs(s, map[string]any{"subject": "a fox"}); len(errs) != 0 {
		t.Errorf("errs = %v", errs)
	}
	if errs := ValidateInputs(s, nil); len(errs) != 1 {
		t.Errorf("errs = %v", errs)
	}
	if errs := ValidateInputs(s, map[string]any{"subject": ""}); len(errs) != 1 {
		t.Errorf("empty string should count as missing, got %v", errs)
	}
	// Optional inputs are never flagged.
	if errs := ValidateInputs(s, map[string]any{"subject": "x", "style": nil}); len(errs) != 0 {
		t.Errorf("errs = %v", errs)
	}
}
