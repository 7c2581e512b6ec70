package workflowstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryStore creates a new in-memory workflow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*Workflow),
	}
}

// Create saves a new workflow.
func (s *MemoryStore) Create(ctx context.Context, req *CreateRequest) (*Workflow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	if _, exists := s.workflows[id]; exists {
		return nil, ErrWorkflowExists
	}

	now := time.Now().UTC()
	wf := &Workflow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		Graph:       req.Graph,
		Layout:      req.Layout,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.CreatedBy,
	}

	s.workflows[id] = wf
	copied := *wf
	return &copied, nil
}

// Get retrieves a workflow by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	// Return a copy to prevent external mutation
	copied := *wf
	return &copied, nil
}

// Update modifies an existing workflow.
func (s *MemoryStore) Update(ctx context.Context, id string, req *UpdateRequest) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Graph != nil {
		wf.Graph = req.Graph
	}
	if req.Layout != nil {
		wf.Layout = req.Layout
	}
	wf.Version++
	wf.UpdatedAt = time.Now().UTC()

	copied := *wf
	return &copied, nil
}

// Delete removes a workflow.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrWorkflowNotFound
	}

	delete(s.workflows, id)
	return nil
}

// List returns workflows matching the options, newest first.
func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*Workflow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	all := make([]*Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if opts.CreatedBy != "" && wf.CreatedBy != opts.CreatedBy {
			continue
		}
		copied := *wf
		all = append(all, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return []*Workflow{}, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}

	return all, nil
}

// Close releases resources (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)
