package runstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/reelforge/reelforge/pkg/types"
)

func testStore(t *testing.T, name string) RunStore {
	t.Helper()
	switch name {
	case "memory":
		s := NewMemoryStore(nil)
		t.Cleanup(func() { s.Close() })
		return s
	case "redis":
		mr := miniredis.RunT(t)
		cfg := DefaultRedisConfig()
		cfg.URL = "redis://" + mr.Addr()
		s, err := NewRedisStore(cfg)
		if err != nil {
			t.Fatalf("NewRedisStore: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	default:
		t.Fatalf("unknown store %q", name)
		return nil
	}
}

func sampleGraph() *types.Graph {
	return &types.Graph{
		Nodes: []types.Node{
			{ID: "t1", Type: types.NodeTypeText, Data: types.TextData{Value: "hello"}},
		},
	}
}

func TestRunLifecycle(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), map[string]any{"topic": "sunsets"})
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			if run.ID == "" || run.Status != types.RunStatusQueued {
				t.Errorf("created run = %+v", run)
			}

			started := time.Now().UTC()
			if err := s.UpdateRunStatus(ctx, run.ID, types.RunStatusRunning, &started, nil); err != nil {
				t.Fatalf("UpdateRunStatus: %v", err)
			}

			result := &types.WorkflowRunResult{
				Status: "completed",
				NodeStates: map[string]types.NodeState{
					"t1": {Status: types.NodeStatusCompleted},
				},
				Outputs: map[string]types.NodeOutput{
					"t1": {Value: "hello", Type: types.OutputText},
				},
			}
			if err := s.SetResult(ctx, run.ID, result); err != nil {
				t.Fatalf("SetResult: %v", err)
			}
			finished := time.Now().UTC()
			if err := s.UpdateRunStatus(ctx, run.ID, types.RunStatusCompleted, nil, &finished); err != nil {
				t.Fatalf("UpdateRunStatus: %v", err)
			}

			got, err := s.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.Status != types.RunStatusCompleted {
				t.Errorf("status = %q", got.Status)
			}
			if got.StartedAt == nil || got.FinishedAt == nil {
				t.Error("timestamps not recorded")
			}
			if got.Result == nil || got.Result.Outputs["t1"].Value != "hello" {
				t.Errorf("result = %+v", got.Result)
			}
			if got.Inputs["topic"] != "sunsets" {
				t.Errorf("inputs = %v", got.Inputs)
			}

			m, err := s.GetRunMeta(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRunMeta: %v", err)
			}
			if m.ID != run.ID || m.Status != types.RunStatusCompleted {
				t.Errorf("meta = %+v", m)
			}
		})
	}
}

func TestRunNotFound(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("GetRun err = %v", err)
			}
			if err := s.CancelRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("CancelRun err = %v", err)
			}
			if _, err := s.AppendEvent(ctx, "missing", &types.EventInput{Type: types.EventTypeLog}); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("AppendEvent err = %v", err)
			}
		})
	}
}

func TestCancelRun(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil)
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			cancelled, err := s.IsCancelled(ctx, run.ID)
			if err != nil || cancelled {
				t.Fatalf("IsCancelled before cancel = %v, %v", cancelled, err)
			}

			if err := s.CancelRun(ctx, run.ID); err != nil {
				t.Fatalf("CancelRun: %v", err)
			}

			cancelled, err = s.IsCancelled(ctx, run.ID)
			if err != nil || !cancelled {
				t.Fatalf("IsCancelled after cancel = %v, %v", cancelled, err)
			}

			m, err := s.GetRunMeta(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRunMeta: %v", err)
			}
			if m.Status != types.RunStatusCancelled || m.FinishedAt == nil {
				t.Errorf("meta = %+v", m)
			}
		})
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			var ids []string
			for i := 0; i < 3; i++ {
				run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil)
				if err != nil {
					t.Fatalf("CreateRun: %v", err)
				}
				ids = append(ids, run.ID)
				time.Sleep(2 * time.Millisecond)
			}

			list, err := s.ListRuns(ctx)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("len(list) = %d", len(list))
			}
			if list[0].ID != ids[2] || list[2].ID != ids[0] {
				t.Errorf("order = [%s %s %s], created [%s %s %s]",
					list[0].ID, list[1].ID, list[2].ID, ids[0], ids[1], ids[2])
			}
		})
	}
}

func TestEventsAndReplay(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil)
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			var lastID string
			for i, nodeID := range []string{"a", "b", "c"} {
				evt, err := s.AppendEvent(ctx, run.ID, &types.EventInput{
					Type:   types.EventTypeNodeStatus,
					NodeID: nodeID,
					Data:   types.NodeStatusEvent{Status: types.NodeStatusRunning},
				})
				if err != nil {
					t.Fatalf("AppendEvent: %v", err)
				}
				if i == 1 {
					lastID = evt.ID
				}
			}

			all, err := s.GetEventsSince(ctx, run.ID, "")
			if err != nil {
				t.Fatalf("GetEventsSince: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("all events = %d", len(all))
			}
			if all[0].ID != "1" || all[2].ID != "3" {
				t.Errorf("event ids = %s..%s", all[0].ID, all[2].ID)
			}
			if all[0].NodeID != "a" {
				t.Errorf("first event node = %q", all[0].NodeID)
			}

			// Resume after the second event.
			tail, err := s.GetEventsSince(ctx, run.ID, lastID)
			if err != nil {
				t.Fatalf("GetEventsSince: %v", err)
			}
			if len(tail) != 1 || tail[0].NodeID != "c" {
				t.Errorf("tail = %+v", tail)
			}
		})
	}
}

func TestEventRingBuffer(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(&Config{EventMaxLen: 3})
	t.Cleanup(func() { s.Close() })

	run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.AppendEvent(ctx, run.ID, &types.EventInput{Type: types.EventTypeLog}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.GetEventsSince(ctx, run.ID, "")
	if err != nil {
		t.Fatalf("GetEventsSince: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("kept events = %d", len(events))
	}
	// Oldest dropped, IDs keep counting.
	if events[0].ID != "3" || events[2].ID != "5" {
		t.Errorf("event ids = %s..%s", events[0].ID, events[2].ID)
	}
}

func TestSubscribe(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			run, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil)
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			ch, cleanup, err := s.Subscribe(ctx, run.ID)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer cleanup()

			// Give the redis pub/sub goroutine time to attach.
			time.Sleep(50 * time.Millisecond)

			if _, err := s.AppendEvent(ctx, run.ID, &types.EventInput{
				Type:   types.EventTypeNodeStatus,
				NodeID: "t1",
			}); err != nil {
				t.Fatalf("AppendEvent: %v", err)
			}

			select {
			case evt := <-ch:
				if evt.NodeID != "t1" || evt.Type != types.EventTypeNodeStatus {
					t.Errorf("event = %+v", evt)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for event")
			}
		})
	}
}

func TestAdapterInfo(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			if _, err := s.CreateRun(ctx, "wf-1", sampleGraph(), nil); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			info, err := s.AdapterInfo(ctx)
			if err != nil {
				t.Fatalf("AdapterInfo: %v", err)
			}
			if info["adapter"] != impl {
				t.Errorf("adapter = %v", info["adapter"])
			}
		})
	}
}

func TestAppendEventDuringCancel(t *testing.T) {
	// Appends race cancellation, which closes subscriber channels. A
	// send on a closed channel would panic the appender goroutine.
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s := NewMemoryStore(nil)

		run, err := s.CreateRun(ctx, "wf-race", sampleGraph(), nil)
		if err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if _, cleanup, err := s.Subscribe(ctx, run.ID); err != nil {
			t.Fatalf("Subscribe: %v", err)
		} else {
			defer cleanup()
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.AppendEvent(ctx, run.ID, &types.EventInput{Type: types.EventTypeLog})
			}
		}()
		go func() {
			defer wg.Done()
			s.CancelRun(ctx, run.ID)
		}()
		wg.Wait()

		s.Close()
	}
}
