package runstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reelforge/reelforge/pkg/types"
)

// memoryRun holds all state for a single run in memory.
type memoryRun struct {
	mu          sync.RWMutex
	run         types.Run
	events      []*types.Event
	nextSeq     int64
	maxEvents   int64
	cancelled   bool
	subscribers map[chan *types.Event]struct{}
}

// MemoryStore is an in-memory implementation of RunStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*memoryRun
	config *Config
}

// NewMemoryStore creates a new in-memory RunStore.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		runs:   make(map[string]*memoryRun),
		config: cfg,
	}
}

func generateRunID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *MemoryStore) get(runID string) (*memoryRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, workflowID string, graph *types.Graph, inputs map[string]any) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	run := types.Run{
		ID:         generateRunID(),
		WorkflowID: workflowID,
		Status:     types.RunStatusQueued,
		Graph:      graph,
		Inputs:     inputs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.runs[run.ID] = &memoryRun{
		run:         run,
		events:      make([]*types.Event, 0),
		nextSeq:     1,
		maxEvents:   s.config.EventMaxLen,
		subscribers: make(map[chan *types.Event]struct{}),
	}

	copied := run
	return &copied, nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	run.mu.RLock()
	defer run.mu.RUnlock()

	copied := run.run
	return &copied, nil
}

func meta(r *types.Run) *types.RunMeta {
	return &types.RunMeta{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *MemoryStore) GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	run.mu.RLock()
	defer run.mu.RUnlock()
	return meta(&run.run), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]*types.RunMeta, error) {
	s.mu.RLock()
	metas := make([]*types.RunMeta, 0, len(s.runs))
	for _, run := range s.runs {
		run.mu.RLock()
		metas = append(metas, meta(&run.run))
		run.mu.RUnlock()
	}
	s.mu.RUnlock()

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, startedAt, finishedAt *time.Time) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.run.Status = status
	run.run.UpdatedAt = time.Now().UTC()
	if startedAt != nil {
		run.run.StartedAt = startedAt
	}
	if finishedAt != nil {
		run.run.FinishedAt = finishedAt
	}
	return nil
}

func (s *MemoryStore) SetResult(ctx context.Context, runID string, result *types.WorkflowRunResult) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.run.Result = result
	if result != nil && result.Error != nil {
		run.run.Error = result.Error.Message
	}
	run.run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CancelRun(ctx context.Context, runID string) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}

	run.mu.Lock()
	run.cancelled = true
	run.run.Status = types.RunStatusCancelled
	now := time.Now().UTC()
	run.run.FinishedAt = &now
	run.run.UpdatedAt = now

	// Close all subscriber channels
	for ch := range run.subscribers {
		close(ch)
	}
	run.subscribers = make(map[chan *types.Event]struct{})
	run.mu.Unlock()

	return nil
}

func (s *MemoryStore) IsCancelled(ctx context.Context, runID string) (bool, error) {
	run, err := s.get(runID)
	if err != nil {
		return false, err
	}

	run.mu.RLock()
	defer run.mu.RUnlock()
	return run.cancelled, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, runID string, input *types.EventInput) (*types.Event, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()

	dataJSON, err := json.Marshal(input.Data)
	if err != nil {
		run.mu.Unlock()
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	event := &types.Event{
		ID:        fmt.Sprintf("%d", run.nextSeq),
		RunID:     runID,
		Type:      input.Type,
		NodeID:    input.NodeID,
		Timestamp: time.Now().UTC(),
		Data:      dataJSON,
	}
	run.nextSeq++

	// Ring buffer: drop the oldest event at capacity
	if int64(len(run.events)) >= run.maxEvents {
		run.events = run.events[1:]
	}
	run.events = append(run.events, event)
	run.run.UpdatedAt = time.Now().UTC()

	// Notify subscribers non-blocking. Sends stay under the lock so a
	// concurrent cancel cannot close a channel mid-send.
	for ch := range run.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow, skip
		}
	}
	run.mu.Unlock()

	return event, nil
}

func (s *MemoryStore) GetEventsSince(ctx context.Context, runID string, lastEventID string) ([]*types.Event, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	run.mu.RLock()
	defer run.mu.RUnlock()

	if lastEventID == "" {
		result := make([]*types.Event, len(run.events))
		copy(result, run.events)
		return result, nil
	}

	var result []*types.Event
	found := false
	for _, evt := range run.events {
		if found {
			result = append(result, evt)
		}
		if evt.ID == lastEventID {
			found = true
		}
	}
	return result, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan *types.Event, 100)

	run.mu.Lock()
	run.subscribers[ch] = struct{}{}
	run.mu.Unlock()

	cleanup := func() {
		run.mu.Lock()
		delete(run.subscribers, ch)
		run.mu.Unlock()
	}

	return ch, cleanup, nil
}

func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	runCount := len(s.runs)
	s.mu.RUnlock()

	return map[string]any{
		"adapter":    "memory",
		"run_count":  runCount,
		"max_events": s.config.EventMaxLen,
	}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		run.mu.Lock()
		for ch := range run.subscribers {
			close(ch)
		}
		run.subscribers = nil
		run.mu.Unlock()
	}
	return nil
}

// Verify interface compliance
var _ RunStore = (*MemoryStore)(nil)
