package validator

import (
	"strings"

	"github.com/reelforge/reelforge/pkg/types"
)

// DataType classifies the value flowing over an edge.
type DataType string

const (
	DataText      DataType = "text"
	DataTextList  DataType = "text[]"
	DataImage     DataType = "image"
	DataImageList DataType = "image[]"
	DataVideo     DataType = "video"
	DataVideoList DataType = "video[]"
	DataAny       DataType = "any"
)

// Well-known handle ids on generative and sink nodes.
const (
	HandlePrompt     = "prompt"
	HandleImage      = "image"
	HandleFirstFrame = "firstFrame"
	HandleLastFrame  = "lastFrame"
	HandleValue      = "value"

	// dynamicImagePrefix marks the numbered reference-image handles on
	// image generation nodes (image_0, image_1, ...).
	dynamicImagePrefix = "image_"
)

var (
	acceptsText  = []DataType{DataText, DataTextList}
	acceptsImage = []DataType{DataImage, DataImageList}
	acceptsAll   = []DataType{DataText, DataTextList, DataImage, DataImageList, DataVideo, DataVideoList}
)

// handleSpecs declares, per node type, the data types each named input
// handle accepts. Handles absent from the table fall through to the
// dynamic rules in AcceptedTypes.
var handleSpecs = map[types.NodeType]map[string][]DataType{
	types.NodeTypeImageGen: {
		HandlePrompt: acceptsText,
	},
	types.NodeTypeVideoGen: {
		HandlePrompt: acceptsText,
	},
	types.NodeTypeVideoI2V: {
		HandlePrompt: acceptsText,
		HandleImage:  acceptsImage,
	},
	types.NodeTypeVideoKeyframe: {
		HandlePrompt:     acceptsText,
		HandleFirstFrame: acceptsImage,
		HandleLastFrame:  acceptsImage,
	},
	types.NodeTypeGallery: {
		types.DefaultHandle: {DataImage, DataVideo},
	},
	types.NodeTypeOutput: {
		HandleValue: acceptsAll,
	},
}

// OutputTypeOf classifies what a node emits on its source handle.
// Text nodes flip to text[] once the editor has recorded a fan-out;
// during execution the engine works that out from live outputs instead.
func OutputTypeOf(node types.Node) DataType {
	switch node.Type {
	case types.NodeTypeText:
		if d, ok := node.Data.(types.TextData); ok && len(d.ResolvedItems) > 0 {
			return DataTextList
		}
		return DataText
	case types.NodeTypeList:
		return DataTextList
	case types.NodeTypeImage:
		return DataImage
	case types.NodeTypeVideo:
		return DataVideo
	case types.NodeTypeImageGen:
		return DataImage
	case types.NodeTypeVideoGen, types.NodeTypeVideoI2V, types.NodeTypeVideoKeyframe:
		return DataVideo
	case types.NodeTypeGallery:
		if d, ok := node.Data.(types.GalleryData); ok && len(d.Outputs) > 0 {
			if d.Outputs[0].Type == types.OutputVideo {
				return DataVideoList
			}
		}
		return DataImageList
	case types.NodeTypeInput:
		d, ok := node.Data.(types.InputData)
		if !ok {
			return DataText
		}
		switch d.InputType {
		case types.InputStringList:
			return DataTextList
		case types.InputImage:
			return DataImage
		default:
			return DataText
		}
	default:
		return DataAny
	}
}

// AcceptedTypes returns the data types the given handle on the target
// node accepts.
func AcceptedTypes(target types.Node, handle string) []DataType {
	if spec, ok := handleSpecs[target.Type]; ok {
		if accepts, ok := spec[handle]; ok {
			return accepts
		}
	}

	// Template variable handles on text nodes.
	if target.Type == types.NodeTypeText {
		return acceptsText
	}

	// Numbered reference-image handles on image generation nodes.
	if target.Type == types.NodeTypeImageGen && strings.HasPrefix(handle, dynamicImagePrefix) {
		return acceptsImage
	}

	return acceptsAll
}

var singularToPlural = map[DataType]DataType{
	DataText:  DataTextList,
	DataImage: DataImageList,
	DataVideo: DataVideoList,
}

// compatible reports whether a source type satisfies one of the accepted
// types. Media URLs pass as text, and singular values coerce to their
// list form.
func compatible(source DataType, accepted []DataType) bool {
	if source == DataAny {
		return true
	}
	for _, a := range accepted {
		if a == source {
			return true
		}
	}
	if source == DataImage || source == DataVideo {
		for _, a := range accepted {
			if a == DataText {
				return true
			}
		}
	}
	if plural, ok := singularToPlural[source]; ok {
		for _, a := range accepted {
			if a == plural {
				return true
			}
		}
	}
	return false
}

// IsValidConnection reports whether an edge between the named nodes is
// type-correct. Self-loops and edges referencing unknown nodes are
// rejected.
func IsValidConnection(g *types.Graph, edge types.Edge) bool {
	if edge.Source == "" || edge.Target == "" || edge.Source == edge.Target {
		return false
	}

	var source, target *types.Node
	for i := range g.Nodes {
		switch g.Nodes[i].ID {
		case edge.Source:
			source = &g.Nodes[i]
		case edge.Target:
			target = &g.Nodes[i]
		}
	}
	if source == nil || target == nil {
		return false
	}

	return compatible(OutputTypeOf(*source), AcceptedTypes(*target, edge.TargetKey()))
}
