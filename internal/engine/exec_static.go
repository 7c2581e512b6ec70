package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/reelforge/reelforge/internal/template"
	"github.com/reelforge/reelforge/pkg/types"
)

// textExecutor interpolates a text node's template against its inputs.
// Handles on text nodes are named after the template variable they bind;
// an input carrying items becomes a list binding and fans the result out
// over the cartesian product.
type textExecutor struct{}

func (textExecutor) Execute(_ context.Context, node types.Node, inputs Inputs, _ *ExecContext) Result {
	data, ok := node.Data.(types.TextData)
	if !ok {
		return failed(types.OutputText, "text node has no payload")
	}

	scalars := make(map[string]string)
	lists := make(map[string][]string)
	for handle, in := range inputs {
		if len(in.Items) > 0 {
			lists[handle] = in.Items
		} else {
			scalars[handle] = in.Value
		}
	}

	res, err := template.InterpolateWithLists(data.Value, scalars, lists)
	if err != nil {
		if errors.Is(err, template.ErrEmptyList) {
			return failed(types.OutputText, err.Error())
		}
		return failed(types.OutputText, fmt.Sprintf("interpolate template: %v", err))
	}

	out := types.NodeOutput{Value: res.Values[0], Type: types.OutputText}
	if len(res.Values) > 1 {
		out.Items = res.Values
	}
	return completed(out)
}

// listExecutor emits a list node's items. Value mirrors the first item
// so scalar consumers see a representative element.
type listExecutor struct{}

func (listExecutor) Execute(_ context.Context, node types.Node, _ Inputs, _ *ExecContext) Result {
	data, ok := node.Data.(types.ListData)
	if !ok || len(data.Items) == 0 {
		return failed(types.OutputList, "list node has no items")
	}
	return completed(types.NodeOutput{
		Value: data.Items[0],
		Items: data.Items,
		Type:  types.OutputList,
	})
}

// mediaExecutor passes through the stored URL of an image or video node.
type mediaExecutor struct {
	mediaType types.OutputType
}

func (e mediaExecutor) Execute(_ context.Context, node types.Node, _ Inputs, _ *ExecContext) Result {
	data, ok := node.Data.(types.MediaData)
	if !ok || data.Value == "" {
		return failed(e.mediaType, fmt.Sprintf("%s node has no value", e.mediaType))
	}
	return completed(types.NodeOutput{Value: data.Value, Type: e.mediaType})
}

// inputExecutor binds a named workflow input into the graph. A missing
// value falls back to the node's default; a required input with neither
// fails the node.
type inputExecutor struct{}

func (inputExecutor) Execute(_ context.Context, node types.Node, _ Inputs, ec *ExecContext) Result {
	data, ok := node.Data.(types.InputData)
	if !ok || data.Name == "" {
		return failed(types.OutputText, "input node has no name")
	}

	raw, present := ec.Inputs[data.Name]
	if !present || raw == nil || raw == "" {
		if data.DefaultValue != "" {
			raw = data.DefaultValue
		} else if data.Required {
			return failed(types.OutputText, fmt.Sprintf("required input %q is missing", data.Name))
		} else {
			raw = ""
		}
	}

	switch data.InputType {
	case types.InputStringList:
		items, err := toStringList(raw)
		if err != nil {
			return failed(types.OutputList, fmt.Sprintf("input %q: %v", data.Name, err))
		}
		out := types.NodeOutput{Type: types.OutputList, Items: items}
		if len(items) > 0 {
			out.Value = items[0]
		}
		return completed(out)
	case types.InputImage:
		return completed(types.NodeOutput{Value: toString(raw), Type: types.OutputImage})
	default:
		return completed(types.NodeOutput{Value: toString(raw), Type: types.OutputText})
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toStringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		items := make([]string, len(list))
		for i, it := range list {
			items[i] = toString(it)
		}
		return items, nil
	case string:
		return parseStringList(list), nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

// parseStringList splits a string-typed list value: a JSON array parses
// into its elements, anything else splits on commas with surrounding
// whitespace trimmed.
func parseStringList(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var parsed []any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			items := make([]string, len(parsed))
			for i, it := range parsed {
				items[i] = toString(it)
			}
			return items
		}
	}

	parts := strings.Split(trimmed, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// outputExecutor forwards its value input into the run result under the
// node's declared name.
type outputExecutor struct{}

func (outputExecutor) Execute(_ context.Context, node types.Node, inputs Inputs, _ *ExecContext) Result {
	in, ok := inputs["value"]
	if !ok {
		in, ok = inputs[types.DefaultHandle]
	}
	if !ok {
		return failed(types.OutputText, "no value connected to output node")
	}
	return completed(in)
}

// galleryExecutor aggregates gallery items from every incoming handle.
// Inputs without gallery entries contribute their plain media value so a
// directly connected image or video still lands in the gallery. When
// nothing is connected the items persisted on the node survive.
// orderedInputs returns handle ids sorted so gallery aggregation is
// deterministic across runs.
func orderedInputs(inputs Inputs) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type galleryExecutor struct{}

func (galleryExecutor) Execute(_ context.Context, node types.Node, inputs Inputs, _ *ExecContext) Result {
	var collected []types.GalleryItem
	for _, e := range orderedInputs(inputs) {
		in := inputs[e]
		if len(in.Gallery) > 0 {
			collected = append(collected, in.Gallery...)
			continue
		}
		if in.Value != "" && (in.Type == types.OutputImage || in.Type == types.OutputVideo) {
			collected = append(collected, types.GalleryItem{Type: in.Type, URL: in.Value})
		}
	}

	if len(collected) == 0 {
		if data, ok := node.Data.(types.GalleryData); ok {
			collected = data.Outputs
		}
	}

	return completed(types.NodeOutput{Type: types.OutputGallery, Gallery: collected})
}
