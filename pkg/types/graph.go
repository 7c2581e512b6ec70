// Package types provides shared types for the reelforge workflow engine.
package types

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the kind of a workflow node. The set is closed:
// every type has a dedicated payload struct and a dedicated executor.
type NodeType string

const (
	// NodeTypeText is a template node: a raw string with {variable} slots.
	NodeTypeText NodeType = "text"
	// NodeTypeList is a static list of strings.
	NodeTypeList NodeType = "list"
	// NodeTypeImage is a static image URL.
	NodeTypeImage NodeType = "image"
	// NodeTypeVideo is a static video URL.
	NodeTypeVideo NodeType = "video"
	// NodeTypeInput reads a named value from the run's external inputs.
	NodeTypeInput NodeType = "input"
	// NodeTypeOutput forwards its resolved input into the run result under a name.
	NodeTypeOutput NodeType = "output"
	// NodeTypeGallery aggregates gallery items from all incoming handles.
	NodeTypeGallery NodeType = "gallery"
	// NodeTypeImageGen generates images from a prompt, optionally editing
	// reference images supplied on image_0..image_N handles.
	NodeTypeImageGen NodeType = "imageGen"
	// NodeTypeVideoGen generates videos from a prompt (text-to-video).
	NodeTypeVideoGen NodeType = "videoGen"
	// NodeTypeVideoI2V generates videos from a prompt plus a source image.
	NodeTypeVideoI2V NodeType = "videoI2V"
	// NodeTypeVideoKeyframe generates videos interpolating between a first and
	// last keyframe image.
	NodeTypeVideoKeyframe NodeType = "videoKeyframe"
)

// DefaultHandle is the handle id used when an edge names no target handle.
const DefaultHandle = "default"

// Node is one unit of a workflow graph. Nodes are immutable value records
// during a run; executors never write back into Data.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// Edge is a directed connection from a source node's output to a named
// input handle on a target node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// TargetKey returns the handle id this edge feeds on its target,
// defaulting to DefaultHandle when unset.
func (e Edge) TargetKey() string {
	if e.TargetHandle == "" {
		return DefaultHandle
	}
	return e.TargetHandle
}

// Graph is a node/edge document, the unit of persistence and execution.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`
}

// NodeData is the closed union of per-type node payloads.
type NodeData interface {
	nodeData()
}

// TextData is the payload of a NodeTypeText. Value holds the raw template.
// ResolvedValue/ResolvedItems are maintained by the canvas editor between
// runs; the engine reads them only for connection-type inference and always
// re-interpolates during execution.
type TextData struct {
	Label         string   `json:"label,omitempty"`
	Value         string   `json:"value"`
	ResolvedValue string   `json:"resolvedValue,omitempty"`
	ResolvedItems []string `json:"resolvedItems,omitempty"`
}

// ListData is the payload of a NodeTypeList.
type ListData struct {
	Label string   `json:"label,omitempty"`
	Items []string `json:"items"`
}

// MediaData is the payload of NodeTypeImage and NodeTypeVideo: a stored URL.
type MediaData struct {
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
}

// InputType enumerates the external value kinds an input node can declare.
type InputType string

const (
	InputString     InputType = "string"
	InputStringList InputType = "string[]"
	InputImage      InputType = "image"
	InputNumber     InputType = "number"
)

// InputData is the payload of a NodeTypeInput: the externally visible parameter
// this node binds from the run's workflow inputs.
type InputData struct {
	Name         string    `json:"name"`
	InputType    InputType `json:"inputType"`
	Required     bool      `json:"required,omitempty"`
	DefaultValue string    `json:"defaultValue,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// OutputKind enumerates the declared kinds of an output node.
type OutputKind string

const (
	OutputKindText  OutputKind = "text"
	OutputKindImage OutputKind = "image"
	OutputKindVideo OutputKind = "video"
)

// OutputData is the payload of a NodeTypeOutput: the named result slot this
// node contributes to the run's output contract.
type OutputData struct {
	Name       string     `json:"name"`
	OutputType OutputKind `json:"outputType,omitempty"`
}

// GalleryData is the payload of a NodeTypeGallery. Outputs holds items
// collected by previous interactive runs; headless execution replaces them.
type GalleryData struct {
	Label   string        `json:"label,omitempty"`
	Outputs []GalleryItem `json:"outputs,omitempty"`
}

// ModelData is the payload shared by the generative node types. Model names
// the backend endpoint to invoke.
type ModelData struct {
	Label string `json:"label,omitempty"`
	Model string `json:"model,omitempty"`
}

func (TextData) nodeData()    {}
func (ListData) nodeData()    {}
func (MediaData) nodeData()   {}
func (InputData) nodeData()   {}
func (OutputData) nodeData()  {}
func (GalleryData) nodeData() {}
func (ModelData) nodeData()   {}

// nodeJSON mirrors Node for (de)serialization with a raw payload.
type nodeJSON struct {
	ID   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes a node, selecting the payload struct by type.
// Unknown node types are an error: the union is closed.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	data, err := decodeNodeData(raw.Type, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Data = data
	return nil
}

// MarshalJSON encodes the node with its payload inline.
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Type, Data: data})
}

func decodeNodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var (
		data NodeData
		err  error
	)
	switch t {
	case NodeTypeText:
		var d TextData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeList:
		var d ListData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeImage, NodeTypeVideo:
		var d MediaData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeInput:
		var d InputData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeOutput:
		var d OutputData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeGallery:
		var d GalleryData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeImageGen, NodeTypeVideoGen, NodeTypeVideoI2V, NodeTypeVideoKeyframe:
		var d ModelData
		err = json.Unmarshal(raw, &d)
		data = d
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return data, nil
}

// IsGenerative reports whether the node type invokes a remote model backend.
func (t NodeType) IsGenerative() bool {
	switch t {
	case NodeTypeImageGen, NodeTypeVideoGen, NodeTypeVideoI2V, NodeTypeVideoKeyframe:
		return true
	default:
		return false
	}
}
