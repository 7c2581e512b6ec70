package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelforge/reelforge/pkg/types"
)

// RedisStore implements RunStore backed by Redis. Run documents live in
// string keys, events in a capped list, and live subscribers ride a
// pub/sub channel per run.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	maxLen int64
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db).
	URL string

	// Prefix for all keys (default: "runs").
	Prefix string

	// TTL for run data (default: 7 days).
	TTL time.Duration

	// EventMaxLen caps events kept per run.
	EventMaxLen int64

	// Connection pool settings.
	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:          "redis://localhost:6379/0",
		Prefix:       "runs",
		TTL:          7 * 24 * time.Hour,
		EventMaxLen:  5000,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a new Redis-backed RunStore.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opts := &redis.Options{
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		opts.Password = parsed.Password
		opts.DB = parsed.DB
	}

	return newRedisStore(redis.NewClient(opts), cfg)
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	return newRedisStore(client, cfg)
}

func newRedisStore(client *redis.Client, cfg *RedisConfig) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "runs"
	}
	maxLen := cfg.EventMaxLen
	if maxLen <= 0 {
		maxLen = 5000
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		maxLen: maxLen,
	}, nil
}

func (s *RedisStore) keyRun(runID string) string {
	return fmt.Sprintf("%s:%s:run", s.prefix, runID)
}

func (s *RedisStore) keyEvents(runID string) string {
	return fmt.Sprintf("%s:%s:events", s.prefix, runID)
}

func (s *RedisStore) keySeq(runID string) string {
	return fmt.Sprintf("%s:%s:seq", s.prefix, runID)
}

func (s *RedisStore) keyIndex() string {
	return s.prefix + ":index"
}

func (s *RedisStore) channel(runID string) string {
	return fmt.Sprintf("%s:%s:live", s.prefix, runID)
}

// refreshTTL extends expiry on all keys belonging to a run.
func (s *RedisStore) refreshTTL(ctx context.Context, runID string) {
	if s.ttl <= 0 {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.keyRun(runID), s.ttl)
	pipe.Expire(ctx, s.keyEvents(runID), s.ttl)
	pipe.Expire(ctx, s.keySeq(runID), s.ttl)
	pipe.Exec(ctx)
}

func (s *RedisStore) saveRun(ctx context.Context, run *types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := s.client.Set(ctx, s.keyRun(run.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.refreshTTL(ctx, run.ID)
	return nil
}

func (s *RedisStore) loadRun(ctx context.Context, runID string) (*types.Run, error) {
	data, err := s.client.Get(ctx, s.keyRun(runID)).Bytes()
	if err == redis.Nil {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

func (s *RedisStore) CreateRun(ctx context.Context, workflowID string, graph *types.Graph, inputs map[string]any) (*types.Run, error) {
	now := time.Now().UTC()
	run := &types.Run{
		ID:         generateRunID(),
		WorkflowID: workflowID,
		Status:     types.RunStatusQueued,
		Graph:      graph,
		Inputs:     inputs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyRun(run.ID), data, 0)
	pipe.Set(ctx, s.keySeq(run.ID), "0", 0)
	pipe.SAdd(ctx, s.keyIndex(), run.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.refreshTTL(ctx, run.ID)

	return run, nil
}

func (s *RedisStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	return s.loadRun(ctx, runID)
}

func (s *RedisStore) GetRunMeta(ctx context.Context, runID string) (*types.RunMeta, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return meta(run), nil
}

func (s *RedisStore) ListRuns(ctx context.Context) ([]*types.RunMeta, error) {
	ids, err := s.client.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	metas := make([]*types.RunMeta, 0, len(ids))
	for _, id := range ids {
		run, err := s.loadRun(ctx, id)
		if err == ErrRunNotFound {
			// Run data expired; drop the stale index entry.
			s.client.SRem(ctx, s.keyIndex(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta(run))
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

func (s *RedisStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, startedAt, finishedAt *time.Time) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	if startedAt != nil {
		run.StartedAt = startedAt
	}
	if finishedAt != nil {
		run.FinishedAt = finishedAt
	}
	return s.saveRun(ctx, run)
}

func (s *RedisStore) SetResult(ctx context.Context, runID string, result *types.WorkflowRunResult) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}

	run.Result = result
	if result != nil && result.Error != nil {
		run.Error = result.Error.Message
	}
	run.UpdatedAt = time.Now().UTC()
	return s.saveRun(ctx, run)
}

func (s *RedisStore) CancelRun(ctx context.Context, runID string) error {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	run.Status = types.RunStatusCancelled
	run.FinishedAt = &now
	run.UpdatedAt = now
	return s.saveRun(ctx, run)
}

func (s *RedisStore) IsCancelled(ctx context.Context, runID string) (bool, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status == types.RunStatusCancelled, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, runID string, input *types.EventInput) (*types.Event, error) {
	exists, err := s.client.Exists(ctx, s.keyRun(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return nil, ErrRunNotFound
	}

	seq, err := s.client.Incr(ctx, s.keySeq(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("next event id: %w", err)
	}

	dataJSON, err := json.Marshal(input.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	event := &types.Event{
		ID:        strconv.FormatInt(seq, 10),
		RunID:     runID,
		Type:      input.Type,
		NodeID:    input.NodeID,
		Timestamp: time.Now().UTC(),
		Data:      dataJSON,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.keyEvents(runID), encoded)
	pipe.LTrim(ctx, s.keyEvents(runID), -s.maxLen, -1)
	pipe.Publish(ctx, s.channel(runID), encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	s.refreshTTL(ctx, runID)

	return event, nil
}

func (s *RedisStore) GetEventsSince(ctx context.Context, runID string, lastEventID string) ([]*types.Event, error) {
	exists, err := s.client.Exists(ctx, s.keyRun(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return nil, ErrRunNotFound
	}

	raw, err := s.client.LRange(ctx, s.keyEvents(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var lastSeq int64 = -1
	if lastEventID != "" {
		if n, err := strconv.ParseInt(lastEventID, 10, 64); err == nil {
			lastSeq = n
		}
	}

	events := make([]*types.Event, 0, len(raw))
	for _, item := range raw {
		var evt types.Event
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			continue
		}
		if seq, err := strconv.ParseInt(evt.ID, 10, 64); err == nil && seq <= lastSeq {
			continue
		}
		events = append(events, &evt)
	}
	return events, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, runID string) (<-chan *types.Event, func(), error) {
	exists, err := s.client.Exists(ctx, s.keyRun(runID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return nil, nil, ErrRunNotFound
	}

	pubsub := s.client.Subscribe(ctx, s.channel(runID))
	ch := make(chan *types.Event, 100)

	go func() {
		defer close(ch)
		for msg := range pubsub.Channel() {
			var evt types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- &evt:
			default:
				// Subscriber too slow, skip
			}
		}
	}()

	cleanup := func() { pubsub.Close() }
	return ch, cleanup, nil
}

func (s *RedisStore) AdapterInfo(ctx context.Context) (map[string]any, error) {
	count, err := s.client.SCard(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	return map[string]any{
		"adapter":    "redis",
		"run_count":  count,
		"max_events": s.maxLen,
		"ttl":        s.ttl.String(),
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Verify interface compliance
var _ RunStore = (*RedisStore)(nil)
