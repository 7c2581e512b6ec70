// Package runstore provides run state persistence and event streaming.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/reelforge/reelforge/pkg/types"
)

// Common errors returned by RunStore implementations.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrCancelled   = errors.New("run cancelled")
)

// RunStore defines the interface for run state persistence and event
// streaming. Implementations must be safe for concurrent use.
type RunStore interface {
	// CreateRun persists a new queued run with a snapshot of the graph
	// and the caller's inputs.
	CreateRun(ctx context.Context, workflowID string, graph *types.Graph, inputs map[string]any) (*types.Run, error)

	// GetRun retrieves the full run including graph and result.
	GetRun(ctx context.Context, runID string) (*types.Run, error)

	// GetRunMeta retrieves the lightweight run header.
	GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error)

	// ListRuns returns run headers, newest first.
	ListRuns(ctx context.Context) ([]*types.RunMeta, error)

	// UpdateRunStatus transitions the run's status and stamps the
	// started/finished times when provided.
	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, startedAt, finishedAt *time.Time) error

	// SetResult stores the final execution result.
	SetResult(ctx context.Context, runID string, result *types.WorkflowRunResult) error

	// CancelRun flags a run as cancelled.
	CancelRun(ctx context.Context, runID string) error

	// IsCancelled reports whether a run has been cancelled.
	IsCancelled(ctx context.Context, runID string) (bool, error)

	// AppendEvent adds an event to the run's stream and returns it.
	AppendEvent(ctx context.Context, runID string, input *types.EventInput) (*types.Event, error)

	// GetEventsSince returns events after the given event ID
	// (exclusive). An empty lastEventID returns the whole buffer.
	GetEventsSince(ctx context.Context, runID string, lastEventID string) ([]*types.Event, error)

	// Subscribe returns a channel receiving new events for the run. The
	// cleanup function must be called when done.
	Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error)

	// AdapterInfo reports diagnostics about the backing store.
	AdapterInfo(ctx context.Context) (map[string]any, error)

	// Close releases resources.
	Close() error
}

// Config holds configuration for RunStore implementations.
type Config struct {
	// EventMaxLen caps events kept per run (ring buffer).
	EventMaxLen int64

	// TTLSeconds expires run data (0 = no expiry).
	TTLSeconds int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EventMaxLen: 5000,
		TTLSeconds:  7 * 24 * 60 * 60, // 7 days
	}
}
