// Package engine executes workflow graphs: it orders nodes
// topologically, resolves each node's inputs from upstream outputs, and
// dispatches to a per-type executor. Failures are isolated per node so a
// partially broken graph still produces every output it can.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/pkg/types"
)

// Inputs maps a target handle id to the output of the node feeding it.
type Inputs map[string]types.NodeOutput

// Result is what an executor returns for one node.
type Result struct {
	Output types.NodeOutput
	Status types.NodeStatus
	Error  string
}

// completed wraps an output in a successful result.
func completed(out types.NodeOutput) Result {
	return Result{Output: out, Status: types.NodeStatusCompleted}
}

// failed builds a failed result carrying an empty output of the given type.
func failed(t types.OutputType, msg string) Result {
	return Result{
		Output: types.NodeOutput{Type: t},
		Status: types.NodeStatusFailed,
		Error:  msg,
	}
}

// Executor runs a single node. Implementations receive the node's
// resolved inputs and the shared execution context.
type Executor interface {
	Execute(ctx context.Context, node types.Node, inputs Inputs, ec *ExecContext) Result
}

// Observer receives execution progress callbacks. All methods may be
// called from concurrent goroutines.
type Observer interface {
	NodeStarted(nodeID string)
	NodeFinished(nodeID string, state types.NodeState)
	GalleryItem(nodeID string, index, total int, item types.GalleryItem)
}

type noopObserver struct{}

func (noopObserver) NodeStarted(string)                              {}
func (noopObserver) NodeFinished(string, types.NodeState)            {}
func (noopObserver) GalleryItem(string, int, int, types.GalleryItem) {}

// ExecContext is the shared state of one workflow run. Outputs of
// finished nodes are published here for downstream resolution; access is
// guarded so wave-parallel execution stays safe.
type ExecContext struct {
	Graph     *types.Graph
	Inputs    map[string]any
	Generator gen.Generator
	Logger    *slog.Logger
	Observer  Observer

	// BatchConcurrency caps parallel generation calls within one node's
	// fan-out (0 = unlimited).
	BatchConcurrency int
	// FailOnEmptyBatch marks a generative node failed when every fan-out
	// element errored. Off by default: the gallery still records the
	// per-item errors.
	FailOnEmptyBatch bool

	mu      sync.RWMutex
	outputs map[string]types.NodeOutput
}

// Output returns the published output of an already-executed node.
func (ec *ExecContext) Output(nodeID string) (types.NodeOutput, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out, ok := ec.outputs[nodeID]
	return out, ok
}

func (ec *ExecContext) setOutput(nodeID string, out types.NodeOutput) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.outputs[nodeID] = out
}

// resolveInputs gathers the outputs feeding a node, keyed by target
// handle. Edges from nodes that produced no output yet contribute
// nothing; when several edges share a handle the last one in edge order
// wins.
func resolveInputs(nodeID string, ec *ExecContext) Inputs {
	inputs := make(Inputs)
	for _, e := range ec.Graph.Edges {
		if e.Target != nodeID {
			continue
		}
		if out, ok := ec.Output(e.Source); ok {
			inputs[e.TargetKey()] = out
		}
	}
	return inputs
}

// promptInput selects the prompt feeding a generative node, accepting
// either the named prompt handle or the default handle.
func promptInput(inputs Inputs) (types.NodeOutput, bool) {
	if p, ok := inputs["prompt"]; ok {
		return p, true
	}
	p, ok := inputs[types.DefaultHandle]
	return p, ok
}
