package workflowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	workflowKeyPrefix = "workflow:"
	workflowListKey   = "workflows"
)

// RedisStore implements Store using Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed workflow store.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) workflowKey(id string) string {
	return workflowKeyPrefix + id
}

// Create saves a new workflow.
func (s *RedisStore) Create(ctx context.Context, req *CreateRequest) (*Workflow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	exists, err := s.client.Exists(ctx, s.workflowKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("check exists: %w", err)
	}
	if exists > 0 {
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

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}

	// Set the workflow and index it in one transaction
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.workflowKey(id), data, 0)
	pipe.SAdd(ctx, workflowListKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}

	return wf, nil
}

// Get retrieves a workflow by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*Workflow, error) {
	data, err := s.client.Get(ctx, s.workflowKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}

	return &wf, nil
}

// Update modifies an existing workflow.
func (s *RedisStore) Update(ctx context.Context, id string, req *UpdateRequest) (*Workflow, error) {
	wf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
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

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}

	if err := s.client.Set(ctx, s.workflowKey(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}

	return wf, nil
}

// Delete removes a workflow.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, s.workflowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrWorkflowNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.workflowKey(id))
	pipe.SRem(ctx, workflowListKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}

	return nil
}

// List returns workflows matching the options, newest first.
func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*Workflow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	ids, err := s.client.SMembers(ctx, workflowListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	workflows := make([]*Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Get(ctx, id)
		if err == ErrWorkflowNotFound {
			// Index entry without a key; skip the stale reference.
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.CreatedBy != "" && wf.CreatedBy != opts.CreatedBy {
			continue
		}
		workflows = append(workflows, wf)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(workflows) {
			return []*Workflow{}, nil
		}
		workflows = workflows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(workflows) {
		workflows = workflows[:opts.Limit]
	}

	return workflows, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Verify interface compliance
var _ Store = (*RedisStore)(nil)
