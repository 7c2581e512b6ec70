// Package workflowstore provides workflow definition persistence.
package workflowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reelforge/reelforge/pkg/types"
)

// Common errors returned by Store implementations.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists")
)

// Workflow is a saved graph definition plus its metadata.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Version     int             `json:"version"`
	Graph       *types.Graph    `json:"graph"`
	Layout      json.RawMessage `json:"layout,omitempty"` // canvas positions, opaque to the engine
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// CreateRequest is the input for creating a new workflow.
type CreateRequest struct {
	ID          string          `json:"id,omitempty"` // auto-generated if empty
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       *types.Graph    `json:"graph"`
	Layout      json.RawMessage `json:"layout,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if r.Graph == nil {
		return fmt.Errorf("workflow graph is required")
	}
	return nil
}

// UpdateRequest is the input for updating an existing workflow. Nil
// fields are left unchanged; any change bumps the version.
type UpdateRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Graph       *types.Graph    `json:"graph,omitempty"`
	Layout      json.RawMessage `json:"layout,omitempty"`
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit     int
	Offset    int
	CreatedBy string // filter by creator
}

// Store defines the interface for workflow persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create saves a new workflow. Returns ErrWorkflowExists if the ID is taken.
	Create(ctx context.Context, req *CreateRequest) (*Workflow, error)

	// Get retrieves a workflow by ID. Returns ErrWorkflowNotFound if not found.
	Get(ctx context.Context, id string) (*Workflow, error)

	// Update modifies an existing workflow. Returns ErrWorkflowNotFound if not found.
	Update(ctx context.Context, id string, req *UpdateRequest) (*Workflow, error)

	// Delete removes a workflow. Returns ErrWorkflowNotFound if not found.
	Delete(ctx context.Context, id string) error

	// List returns workflows matching the options, newest first.
	List(ctx context.Context, opts *ListOptions) ([]*Workflow, error)

	// Close releases any resources.
	Close() error
}
