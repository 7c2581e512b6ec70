package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/reelforge/reelforge/internal/auth"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/credits"
	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/internal/media"
	"github.com/reelforge/reelforge/internal/runstore"
	"github.com/reelforge/reelforge/internal/schema"
	"github.com/reelforge/reelforge/internal/validator"
	"github.com/reelforge/reelforge/internal/workflowstore"
	"github.com/reelforge/reelforge/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	workflows workflowstore.Store
	runs      runstore.RunStore
	validator *validator.Validator
	generator gen.Generator
	ledger    credits.Ledger
	pricer    credits.Pricer
	media     *media.Store
	config    *config.Config
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Deps bundles the dependencies handlers need. Ledger, pricer, and media
// are optional; the corresponding endpoints respond 503 when unset.
type Deps struct {
	Workflows workflowstore.Store
	Runs      runstore.RunStore
	Validator *validator.Validator
	Generator gen.Generator
	Ledger    credits.Ledger
	Pricer    credits.Pricer
	Media     *media.Store
	Config    *config.Config
	Logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		workflows: d.Workflows,
		runs:      d.Runs,
		validator: d.Validator,
		generator: d.Generator,
		ledger:    d.Ledger,
		pricer:    d.Pricer,
		media:     d.Media,
		config:    d.Config,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the run store backend.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	info, err := h.runs.AdapterInfo(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusServiceUnavailable, "run store unhealthy", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"runstore": info,
	})
}

// StoreInfo handles GET /api/v1/store/info
func (h *Handlers) StoreInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.runs.AdapterInfo(r.Context())
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to get store info", err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

// --- Workflow Management ---

// workflowRequest is the request body for creating or importing a
// workflow. The graph is kept raw until it passes schema validation.
type workflowRequest struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph"`
	Layout      json.RawMessage `json:"layout,omitempty"`
}

// decodeGraph validates the raw graph document and decodes it. The
// returned result is non-nil when validation failed.
func (h *Handlers) decodeGraph(raw json.RawMessage) (*types.Graph, *validator.ValidationResult) {
	if result := h.validator.ValidateGraphJSON(raw); !result.Valid {
		return nil, result
	}
	var g types.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, &validator.ValidationResult{
			Valid:  false,
			Errors: []validator.ValidationError{{Path: "$", Message: err.Error()}},
		}
	}
	return &g, nil
}

func validationDetails(result *validator.ValidationResult) []string {
	details := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		details = append(details, e.Path+": "+e.Message)
	}
	return details
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
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

	wf, err := h.workflows.Create(r.Context(), &workflowstore.CreateRequest{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Graph:       g,
		Layout:      req.Layout,
		CreatedBy:   auth.UserID(r.Context()),
	})
	if err != nil {
		if errors.Is(err, workflowstore.ErrWorkflowExists) {
			h.respondError(w, r, http.StatusConflict, "workflow already exists", err)
			return
		}
		h.respondError(w, r, http.StatusBadRequest, "failed to create workflow", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, wf)
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	opts := &workflowstore.ListOptions{
		CreatedBy: r.URL.Query().Get("created_by"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	list, err := h.workflows.List(r.Context(), opts)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to list workflows", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"workflows": list})
}

// GetWorkflow handles GET /api/v1/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadWorkflow(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, wf)
}

// UpdateWorkflow handles PUT /api/v1/workflows/{id}
func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Name        *string         `json:"name,omitempty"`
		Description *string         `json:"description,omitempty"`
		Graph       json.RawMessage `json:"graph,omitempty"`
		Layout      json.RawMessage `json:"layout,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	update := &workflowstore.UpdateRequest{
		Name:        req.Name,
		Description: req.Description,
		Layout:      req.Layout,
	}
	if len(req.Graph) > 0 {
		g, result := h.decodeGraph(req.Graph)
		if result != nil {
			writeError(w, r, http.StatusBadRequest, "invalid graph", validationDetails(result))
			return
		}
		update.Graph = g
	}

	wf, err := h.workflows.Update(r.Context(), id, update)
	if err != nil {
		if errors.Is(err, workflowstore.ErrWorkflowNotFound) {
			h.respondError(w, r, http.StatusNotFound, "workflow not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to update workflow", err)
		return
	}

	h.respondJSON(w, http.StatusOK, wf)
}

// DeleteWorkflow handles DELETE /api/v1/workflows/{id}
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.workflows.Delete(r.Context(), id); err != nil {
		if errors.Is(err, workflowstore.ErrWorkflowNotFound) {
			h.respondError(w, r, http.StatusNotFound, "workflow not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to delete workflow", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetWorkflowSchema handles GET /api/v1/workflows/{id}/schema
func (h *Handlers) GetWorkflowSchema(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadWorkflow(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, schema.Extract(wf.Graph))
}

// ExportWorkflow handles GET /api/v1/workflows/{id}/export
func (h *Handlers) ExportWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadWorkflow(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+wf.Name+`.json"`)
	json.NewEncoder(w).Encode(wf)
}

// ImportWorkflow handles POST /api/v1/workflows/import
// The document format matches export; a fresh ID is assigned unless the
// requested one is free.
func (h *Handlers) ImportWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	g, result := h.decodeGraph(req.Graph)
	if result != nil {
		writeError(w, r, http.StatusBadRequest, "invalid graph", validationDetails(result))
		return
	}

	create := &workflowstore.CreateRequest{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Graph:       g,
		Layout:      req.Layout,
		CreatedBy:   auth.UserID(r.Context()),
	}
	wf, err := h.workflows.Create(r.Context(), create)
	if errors.Is(err, workflowstore.ErrWorkflowExists) {
		create.ID = ""
		wf, err = h.workflows.Create(r.Context(), create)
	}
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "failed to import workflow", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, wf)
}

// ValidateGraph handles POST /api/v1/validate
func (h *Handlers) ValidateGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.respondJSON(w, http.StatusOK, h.validator.ValidateGraphJSON(req.Graph))
}

// --- Credits ---

// GetBalance handles GET /api/v1/credits/balance
func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, r, http.StatusServiceUnavailable, "credits not enabled", nil)
		return
	}

	account, err := h.ledger.Balance(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			h.respondJSON(w, http.StatusOK, &credits.Account{UserID: auth.UserID(r.Context())})
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get balance", err)
		return
	}

	h.respondJSON(w, http.StatusOK, account)
}

// GrantCredits handles POST /api/v1/credits/grant
func (h *Handlers) GrantCredits(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, r, http.StatusServiceUnavailable, "credits not enabled", nil)
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	tx, err := h.ledger.Grant(r.Context(), auth.UserID(r.Context()), req.Amount)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to grant credits", err)
		return
	}

	h.respondJSON(w, http.StatusOK, tx)
}

// --- Uploads ---

// PresignUpload handles POST /api/v1/uploads/presign
func (h *Handlers) PresignUpload(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, r, http.StatusServiceUnavailable, "media storage not enabled", nil)
		return
	}

	var req struct {
		Ext         string `json:"ext"`
		ContentType string `json:"contentType,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Ext == "" {
		writeError(w, r, http.StatusBadRequest, "ext is required", nil)
		return
	}

	putURL, getURL, err := h.media.PresignUpload(r.Context(), req.Ext, req.ContentType)
	if err != nil {
		h.respondError(w, r, http.StatusInternalServerError, "failed to presign upload", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"uploadUrl": putURL,
		"fileUrl":   getURL,
	})
}

// --- Helper Methods ---

// loadWorkflow fetches the workflow named in the route, writing the
// error response itself when the lookup fails.
func (h *Handlers) loadWorkflow(w http.ResponseWriter, r *http.Request) (*workflowstore.Workflow, bool) {
	id := mux.Vars(r)["id"]

	wf, err := h.workflows.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, workflowstore.ErrWorkflowNotFound) {
			h.respondError(w, r, http.StatusNotFound, "workflow not found", err)
			return nil, false
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get workflow", err)
		return nil, false
	}
	return wf, true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	h.logger.Error(message, "error", err, "status", status)
	var details []string
	if err != nil {
		details = []string{err.Error()}
	}
	writeError(w, r, status, message, details)
}
