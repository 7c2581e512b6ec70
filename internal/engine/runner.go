package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/pkg/types"
)

// executors maps each node type to its executor. The table is built per
// call so executions share no mutable state.
func executors() map[types.NodeType]Executor {
	return map[types.NodeType]Executor{
		types.NodeTypeText:          textExecutor{},
		types.NodeTypeList:          listExecutor{},
		types.NodeTypeImage:         mediaExecutor{mediaType: types.OutputImage},
		types.NodeTypeVideo:         mediaExecutor{mediaType: types.OutputVideo},
		types.NodeTypeInput:         inputExecutor{},
		types.NodeTypeOutput:        outputExecutor{},
		types.NodeTypeGallery:       galleryExecutor{},
		types.NodeTypeImageGen:      imageGenExecutor{},
		types.NodeTypeVideoGen:      videoGenExecutor{},
		types.NodeTypeVideoI2V:      videoI2VExecutor{},
		types.NodeTypeVideoKeyframe: videoKeyframeExecutor{},
	}
}

// Options configures one workflow execution.
type Options struct {
	Logger   *slog.Logger
	Observer Observer

	// WaveParallel runs independent nodes of the same depth concurrently.
	// Off by default: nodes execute one at a time in topological order.
	WaveParallel bool

	// BatchConcurrency caps parallel generation calls inside one node's
	// fan-out (0 = unlimited).
	BatchConcurrency int

	// FailOnEmptyBatch marks a generative node failed when every fan-out
	// element errored.
	FailOnEmptyBatch bool
}

// RunWorkflow executes a graph to completion. Execution is best-effort:
// a failing node never stops the run, downstream nodes simply see no
// input from it. The result carries per-node states, the outputs of all
// terminal nodes, and the first failure if any node failed.
func RunWorkflow(ctx context.Context, g *types.Graph, inputs map[string]any, generator gen.Generator, opts Options) *types.WorkflowRunResult {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	ec := &ExecContext{
		Graph:            g,
		Inputs:           inputs,
		Generator:        generator,
		Logger:           logger,
		Observer:         observer,
		BatchConcurrency: opts.BatchConcurrency,
		FailOnEmptyBatch: opts.FailOnEmptyBatch,
		outputs:          make(map[string]types.NodeOutput, len(g.Nodes)),
	}

	states := make(map[string]types.NodeState, len(g.Nodes))
	var statesMu sync.Mutex
	for _, n := range g.Nodes {
		states[n.ID] = types.NodeState{Status: types.NodeStatusPending}
	}
	setState := func(id string, st types.NodeState) {
		statesMu.Lock()
		states[id] = st
		statesMu.Unlock()
	}

	order, unscheduled := TopoSort(g)
	for _, n := range unscheduled {
		setState(n.ID, types.NodeState{
			Status: types.NodeStatusFailed,
			Error:  "node is on a cycle and cannot execute",
		})
		logger.Warn("skipping node on cycle", "node_id", n.ID)
	}

	table := executors()
	runNode := func(node types.Node) {
		exec, ok := table[node.Type]
		if !ok {
			setState(node.ID, types.NodeState{
				Status: types.NodeStatusFailed,
				Error:  "no executor for node type: " + string(node.Type),
			})
			return
		}

		setState(node.ID, types.NodeState{Status: types.NodeStatusRunning})
		observer.NodeStarted(node.ID)
		start := time.Now()

		res := safeExecute(ctx, exec, node, ec)
		ec.setOutput(node.ID, res.Output)

		out := res.Output
		state := types.NodeState{Status: res.Status, Output: &out, Error: res.Error}
		setState(node.ID, state)
		observer.NodeFinished(node.ID, state)

		if res.Status == types.NodeStatusFailed {
			logger.Warn("node failed",
				"node_id", node.ID,
				"node_type", string(node.Type),
				"error", res.Error,
				"duration_ms", time.Since(start).Milliseconds())
		} else {
			logger.Debug("node completed",
				"node_id", node.ID,
				"node_type", string(node.Type),
				"duration_ms", time.Since(start).Milliseconds())
		}
	}

	if opts.WaveParallel {
		for _, wave := range Waves(g, order) {
			var wg sync.WaitGroup
			for _, node := range wave {
				wg.Add(1)
				go func(node types.Node) {
					defer wg.Done()
					runNode(node)
				}(node)
			}
			wg.Wait()
			if ctx.Err() != nil {
				break
			}
		}
	} else {
		for _, node := range order {
			if ctx.Err() != nil {
				break
			}
			runNode(node)
		}
	}

	outputs := make(map[string]types.NodeOutput)
	for _, node := range TerminalNodes(g) {
		if out, ok := ec.Output(node.ID); ok {
			outputs[outputKey(node)] = out
		}
	}

	result := &types.WorkflowRunResult{
		Status:     types.RunStatusCompleted,
		NodeStates: states,
		Outputs:    outputs,
	}

	// First failure in node declaration order wins.
	for _, n := range g.Nodes {
		if st := states[n.ID]; st.Status == types.NodeStatusFailed {
			result.Status = types.RunStatusFailed
			msg := st.Error
			if msg == "" {
				msg = "unknown error"
			}
			result.Error = &types.RunError{NodeID: n.ID, Message: msg}
			break
		}
	}

	if ctx.Err() != nil && result.Error == nil {
		result.Status = types.RunStatusFailed
		result.Error = &types.RunError{Message: "execution cancelled: " + ctx.Err().Error()}
	}

	return result
}

// safeExecute runs an executor, converting a panic into a failed
// result. Wave mode runs nodes on their own goroutines, where an
// uncaught panic would kill the process.
func safeExecute(ctx context.Context, exec Executor, node types.Node, ec *ExecContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(types.OutputText, fmt.Sprintf("executor panic: %v", r))
		}
	}()
	return exec.Execute(ctx, node, resolveInputs(node.ID, ec), ec)
}

// outputKey names a terminal node's slot in the result. Output nodes use
// their declared name so the API contract matches the workflow schema;
// everything else keys by node id.
func outputKey(node types.Node) string {
	if node.Type == types.NodeTypeOutput {
		if d, ok := node.Data.(types.OutputData); ok && d.Name != "" {
			return d.Name
		}
	}
	return node.ID
}
