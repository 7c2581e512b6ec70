package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/reelforge/reelforge/internal/auth"
	"github.com/reelforge/reelforge/internal/credits"
	"github.com/reelforge/reelforge/internal/engine"
	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/runstore"
	"github.com/reelforge/reelforge/internal/schema"
	"github.com/reelforge/reelforge/internal/tracing"
	"github.com/reelforge/reelforge/pkg/types"
)

// RunWorkflow handles POST /api/v1/workflows/{id}/run
func (h *Handlers) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadWorkflow(w, r)
	if !ok {
		return
	}

	var req struct {
		Inputs map[string]any `json:"inputs,omitempty"`
		Async  bool           `json:"async,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	if errs := schema.ValidateInputs(schema.Extract(wf.Graph), req.Inputs); len(errs) > 0 {
		writeError(w, r, http.StatusBadRequest, "invalid inputs", errs)
		return
	}

	h.startRun(w, r, wf.ID, wf.Graph, req.Inputs, req.Async)
}

// ExecuteGraph handles POST /api/v1/runs
// Runs an ad-hoc graph without persisting a workflow first.
func (h *Handlers) ExecuteGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph  json.RawMessage `json:"graph"`
		Inputs map[string]any  `json:"inputs,omitempty"`
		Async  bool            `json:"async,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Graph) == 0 {
		writeError(w, r, http.StatusBadRequest, "graph is required", nil)
		return
	}

	g, result := h.decodeGraph(req.Graph)
	if result != nil {
		writeError(w, r, http.StatusBadRequest, "invalid graph", validationDetails(result))
		return
	}

	if errs := schema.ValidateInputs(schema.Extract(g), req.Inputs); len(errs) > 0 {
		writeError(w, r, http.StatusBadRequest, "invalid inputs", errs)
		return
	}

	h.startRun(w, r, "", g, req.Inputs, req.Async)
}

// startRun creates the run record and either executes inline or hands
// off to a background goroutine.
func (h *Handlers) startRun(w http.ResponseWriter, r *http.Request, workflowID string, g *types.Graph, inputs map[string]any, async bool) {
	run, err := h.runs.CreateRun(r.Context(), workflowID, g, inputs)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to create run", err)
		return
	}

	userID := auth.UserID(r.Context())

	if async {
		// The run outlives the request; detach from the request context.
		go h.executeRun(context.Background(), run, userID)
		h.respondJSON(w, http.StatusAccepted, map[string]string{
			"runId":     run.ID,
			"status":    string(types.RunStatusQueued),
			"eventsUrl": "/api/v1/runs/" + run.ID + "/events",
		})
		return
	}

	h.executeRun(r.Context(), run, userID)

	final, err := h.runs.GetRun(r.Context(), run.ID)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to load run result", err)
		return
	}
	h.respondJSON(w, http.StatusOK, final)
}

// executeRun drives one run to completion, mirroring progress into the
// run store as events.
func (h *Handlers) executeRun(ctx context.Context, run *types.Run, userID string) {
	if h.config != nil && h.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RunTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	h.registerCancel(run.ID, cancel)
	defer h.unregisterCancel(run.ID)

	ctx, span := tracing.StartRunSpan(ctx, run.ID, run.WorkflowID)
	defer span.End()

	started := time.Now().UTC()
	h.runs.UpdateRunStatus(ctx, run.ID, types.RunStatusRunning, &started, nil)
	h.appendEvent(run.ID, &types.EventInput{
		Type: types.EventTypeRunStatus,
		Data: types.RunStatusEvent{Status: types.RunStatusRunning},
	})

	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	generator := h.runGenerator(userID)
	observer := newRunObserver(h, run)

	result := engine.RunWorkflow(ctx, run.Graph, run.Inputs, generator, engine.Options{
		Logger:           h.logger.With("run_id", run.ID),
		Observer:         observer,
		WaveParallel:     h.config.WaveParallel,
		BatchConcurrency: h.config.BatchConcurrency,
		FailOnEmptyBatch: h.config.FailOnEmptyBatch,
	})

	// Cancellation requested through the API wins over the engine's view.
	status := result.Status
	if cancelled, _ := h.runs.IsCancelled(context.Background(), run.ID); cancelled {
		status = types.RunStatusCancelled
		result.Status = status
	}

	finished := time.Now().UTC()
	storeCtx := context.Background()
	h.runs.SetResult(storeCtx, run.ID, result)
	h.runs.UpdateRunStatus(storeCtx, run.ID, status, nil, &finished)

	statusEvt := types.RunStatusEvent{Status: status}
	if result.Error != nil {
		statusEvt.Error = result.Error.Message
	}
	h.appendEvent(run.ID, &types.EventInput{Type: types.EventTypeRunStatus, Data: statusEvt})
	h.appendEvent(run.ID, &types.EventInput{Type: types.EventTypeStreamEnd, Data: statusEvt})

	metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	metrics.RunDuration.WithLabelValues(string(status)).Observe(finished.Sub(started).Seconds())

	h.logger.Info("run finished",
		"run_id", run.ID,
		"status", string(status),
		"duration_ms", finished.Sub(started).Milliseconds(),
	)
}

// runGenerator builds the generator stack for one run: metrics always,
// credit metering when a ledger is configured.
func (h *Handlers) runGenerator(userID string) gen.Generator {
	g := gen.Generator(&observedGenerator{next: h.generator})
	if h.ledger != nil && h.pricer != nil {
		g = &meteredGenerator{next: g, ledger: h.ledger, pricer: h.pricer, userID: userID, h: h}
	}
	return g
}

func (h *Handlers) registerCancel(runID string, cancel context.CancelFunc) {
	h.mu.Lock()
	h.cancels[runID] = cancel
	h.mu.Unlock()
}

func (h *Handlers) unregisterCancel(runID string) {
	h.mu.Lock()
	delete(h.cancels, runID)
	h.mu.Unlock()
}

// appendEvent records an event, logging rather than failing on error:
// event delivery is best-effort and never blocks execution.
func (h *Handlers) appendEvent(runID string, input *types.EventInput) {
	if _, err := h.runs.AppendEvent(context.Background(), runID, input); err != nil {
		h.logger.Warn("failed to append event", "run_id", runID, "type", string(input.Type), "error", err)
		return
	}
	metrics.EventsTotal.WithLabelValues(string(input.Type)).Inc()
}

// ListRuns handles GET /api/v1/runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// CancelRun handles POST /api/v1/runs/{id}/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := h.runs.CancelRun(r.Context(), runID); err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to cancel run", err)
		return
	}

	h.mu.Lock()
	cancel, ok := h.cancels[runID]
	h.mu.Unlock()
	if ok {
		cancel()
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": string(types.RunStatusCancelled)})
}

// runObserver mirrors engine progress into the run's event stream.
// Callbacks may arrive from concurrent goroutines.
type runObserver struct {
	h         *Handlers
	runID     string
	nodeTypes map[string]types.NodeType

	mu     sync.Mutex
	starts map[string]time.Time
}

func newRunObserver(h *Handlers, run *types.Run) *runObserver {
	nodeTypes := make(map[string]types.NodeType, len(run.Graph.Nodes))
	for _, n := range run.Graph.Nodes {
		nodeTypes[n.ID] = n.Type
	}
	return &runObserver{
		h:         h,
		runID:     run.ID,
		nodeTypes: nodeTypes,
		starts:    make(map[string]time.Time),
	}
}

func (o *runObserver) NodeStarted(nodeID string) {
	o.mu.Lock()
	o.starts[nodeID] = time.Now()
	o.mu.Unlock()
	o.h.appendEvent(o.runID, &types.EventInput{
		Type:   types.EventTypeNodeStatus,
		NodeID: nodeID,
		Data:   types.NodeStatusEvent{Status: types.NodeStatusRunning},
	})
}

func (o *runObserver) NodeFinished(nodeID string, state types.NodeState) {
	nodeType := string(o.nodeTypes[nodeID])
	metrics.NodesTotal.WithLabelValues(nodeType, string(state.Status)).Inc()
	o.mu.Lock()
	start, ok := o.starts[nodeID]
	o.mu.Unlock()
	if ok {
		metrics.NodeDuration.WithLabelValues(nodeType).Observe(time.Since(start).Seconds())
	}

	o.h.appendEvent(o.runID, &types.EventInput{
		Type:   types.EventTypeNodeStatus,
		NodeID: nodeID,
		Data: types.NodeStatusEvent{
			Status: state.Status,
			Output: state.Output,
			Error:  state.Error,
		},
	})
}

func (o *runObserver) GalleryItem(nodeID string, index, total int, item types.GalleryItem) {
	if index == 0 {
		metrics.FanoutSize.Observe(float64(total))
	}
	o.h.appendEvent(o.runID, &types.EventInput{
		Type:   types.EventTypeGalleryItem,
		NodeID: nodeID,
		Data:   types.GalleryItemEvent{Index: index, Total: total, Item: item},
	})
}

// observedGenerator records call metrics around the backend.
type observedGenerator struct {
	next gen.Generator
}

func (g *observedGenerator) Generate(ctx context.Context, req gen.Request) (string, error) {
	start := time.Now()
	url, err := g.next.Generate(ctx, req)
	metrics.GenerationDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(req.Model, "error").Inc()
		return "", err
	}
	metrics.GenerationsTotal.WithLabelValues(req.Model, "success").Inc()
	return url, nil
}

// meteredGenerator deducts credits before each backend call and refunds
// when the call fails.
type meteredGenerator struct {
	next   gen.Generator
	ledger credits.Ledger
	pricer credits.Pricer
	userID string
	h      *Handlers
}

func (g *meteredGenerator) Generate(ctx context.Context, req gen.Request) (string, error) {
	price, err := g.pricer.Price(ctx, req.Model)
	if err != nil {
		// A pricing outage must not take generation down with it.
		g.h.logger.Warn("pricing unavailable, call not metered", "model", req.Model, "error", err)
		return g.next.Generate(ctx, req)
	}

	tx, err := g.ledger.Deduct(ctx, g.userID, req.Model, price)
	if err != nil {
		return "", err
	}
	metrics.CreditsSpent.WithLabelValues(req.Model).Add(price)

	url, err := g.next.Generate(ctx, req)
	if err != nil {
		if _, refundErr := g.ledger.Refund(ctx, g.userID, tx.ID, "generation failed"); refundErr != nil {
			g.h.logger.Error("refund failed", "user_id", g.userID, "tx_id", tx.ID, "error", refundErr)
		} else {
			metrics.CreditsRefunded.WithLabelValues(req.Model).Add(price)
		}
		return "", err
	}
	return url, nil
}
