package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/consultflow/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 运行历史存储
// =============================================================================

const (
	runKeyPrefix = "consultflow:run:"
	runIndexKey  = "consultflow:runs"
)

// RunStore 基于 Redis 的运行历史，实现 workflow.RunStore。
// 每条记录以 JSON 存为独立键并带过期时间；有序集合按开始时间索引。
type RunStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRunStore 创建运行历史存储，ttl <= 0 时记录永不过期
func NewRunStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "run_store")),
	}
}

// Save 写入运行记录并更新索引，同时清理已过期的索引项
func (s *RunStore) Save(ctx context.Context, run *workflow.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, runKeyPrefix+run.ID, data, s.ttl)
	pipe.ZAdd(ctx, runIndexKey, redis.Z{Score: float64(run.StartTime.UnixNano()), Member: run.ID})
	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl).UnixNano()
		pipe.ZRemRangeByScore(ctx, runIndexKey, "-inf", fmt.Sprintf("(%d", cutoff))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("save run failed", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get 读取运行记录，不存在或已过期时返回 workflow.ErrRunNotFound
func (s *RunStore) Get(ctx context.Context, id string) (*workflow.Run, error) {
	data, err := s.rdb.Get(ctx, runKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, workflow.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var run workflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// List 按开始时间倒序返回最近的运行，跳过已过期的记录
func (s *RunStore) List(ctx context.Context, limit int) ([]*workflow.Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRevRange(ctx, runIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*workflow.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyPrefix + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var run workflow.Run
		if err := json.Unmarshal([]byte(str), &run); err != nil {
			s.logger.Warn("skip undecodable run", zap.String("run_id", ids[i]), zap.Error(err))
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}
