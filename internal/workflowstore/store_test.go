package workflowstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/reelforge/reelforge/pkg/types"
)

func testStore(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "redis":
		mr := miniredis.RunT(t)
		s, err := NewRedisStore(mr.Addr())
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
			{ID: "t1", Type: types.NodeTypeText, Data: types.TextData{Value: "a {x}"}},
			{ID: "g1", Type: types.NodeTypeImageGen, Data: types.ModelData{Model: "fal-ai/nano-banana"}},
		},
		Edges: []types.Edge{
			{ID: "e1", Source: "t1", Target: "g1", TargetHandle: "prompt"},
		},
	}
}

func TestStoreCRUD(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			ctx := context.Background()
			s := testStore(t, impl)

			wf, err := s.Create(ctx, &CreateRequest{Name: "beach shots", Graph: sampleGraph()})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if wf.ID == "" || wf.Version != 1 {
				t.Errorf("created = %+v", wf)
			}

			got, err := s.Get(ctx, wf.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != "beach shots" || len(got.Graph.Nodes) != 2 {
				t.Errorf("got = %+v", got)
			}
			// Node payloads round-trip typed.
			if _, ok := got.Graph.Nodes[0].Data.(types.TextData); !ok {
				t.Errorf("node data type = %T", got.Graph.Nodes[0].Data)
			}

			name := "renamed"
			updated, err := s.Update(ctx, wf.ID, &UpdateRequest{Name: &name})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if updated.Name != "renamed" || updated.Version != 2 {
				t.Errorf("updated = %+v", updated)
			}

			list, err := s.List(ctx, nil)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 {
				t.Errorf("list = %v", list)
			}

			if err := s.Delete(ctx, wf.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, wf.ID); !errors.Is(err, ErrWorkflowNotFound) {
				t.Errorf("expected ErrWorkflowNotFound, got %v", err)
			}
		})
	}
}

func TestStoreCreateValidation(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			s := testStore(t, impl)
			ctx := context.Background()

			if _, err := s.Create(ctx, &CreateRequest{Graph: sampleGraph()}); err == nil {
				t.Error("expected error for missing name")
			}
			if _, err := s.Create(ctx, &CreateRequest{Name: "x"}); err == nil {
				t.Error("expected error for missing graph")
			}
		})
	}
}

func TestStoreDuplicateID(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			s := testStore(t, impl)
			ctx := context.Background()

			req := &CreateRequest{ID: "fixed", Name: "a", Graph: sampleGraph()}
			if _, err := s.Create(ctx, req); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := s.Create(ctx, req); !errors.Is(err, ErrWorkflowExists) {
				t.Errorf("expected ErrWorkflowExists, got %v", err)
			}
		})
	}
}

func TestStoreListFilterAndPaging(t *testing.T) {
	for _, impl := range []string{"memory", "redis"} {
		t.Run(impl, func(t *testing.T) {
			s := testStore(t, impl)
			ctx := context.Background()

			for _, owner := range []string{"alice", "alice", "bob"} {
				if _, err := s.Create(ctx, &CreateRequest{Name: "wf", Graph: sampleGraph(), CreatedBy: owner}); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			list, err := s.List(ctx, &ListOptions{CreatedBy: "alice"})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Errorf("alice workflows = %d", len(list))
			}

			list, err = s.List(ctx, &ListOptions{Limit: 2})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Errorf("limited list = %d", len(list))
			}

			list, err = s.List(ctx, &ListOptions{Offset: 5})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 0 {
				t.Errorf("offset past end = %d", len(list))
			}
		})
	}
}
