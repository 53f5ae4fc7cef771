package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🗂️ 运行历史持久化
// =============================================================================

// RunRecord workflow_runs 表的行结构，完整运行记录以 JSON 存于 Payload
type RunRecord struct {
	ID            string    `gorm:"primaryKey;size:64"`
	Graph         string    `gorm:"size:128;not null;index"`
	State         string    `gorm:"size:32;not null"`
	Query         string    `gorm:"type:text;not null"`
	Language      string    `gorm:"size:16"`
	FinalResponse string    `gorm:"type:text"`
	Error         string    `gorm:"type:text"`
	StartedAt     time.Time `gorm:"not null;index"`
	DurationMS    int64     `gorm:"not null;default:0"`
	Payload       string    `gorm:"type:text;not null"`
}

// TableName 实现 gorm tabler
func (RunRecord) TableName() string { return "workflow_runs" }

// RunStore 基于关系数据库的运行历史，实现 workflow.RunStore
type RunStore struct {
	pool   *PoolManager
	logger *zap.Logger
}

// NewRunStore 创建运行历史存储
func NewRunStore(pool *PoolManager, logger *zap.Logger) *RunStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStore{pool: pool, logger: logger.With(zap.String("component", "run_store"))}
}

// AutoMigrate 创建 workflow_runs 表，生产环境使用 SQL 迁移
func (s *RunStore) AutoMigrate() error {
	return s.pool.DB().AutoMigrate(&RunRecord{})
}

// Save 写入或覆盖运行记录，死锁等瞬时错误会重试
func (s *RunStore) Save(ctx context.Context, run *workflow.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	rec := RunRecord{
		ID:            run.ID,
		Graph:         run.Graph,
		State:         string(run.State),
		Query:         run.Query,
		Language:      run.Language,
		FinalResponse: run.FinalResponse,
		Error:         run.Error,
		StartedAt:     run.StartTime,
		DurationMS:    run.Duration.Milliseconds(),
		Payload:       string(payload),
	}
	err = s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "language", "final_response", "error", "duration_ms", "payload",
			}),
		}).Create(&rec).Error
	})
	if err != nil {
		s.logger.Error("save run failed", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get 读取运行记录，不存在时返回 workflow.ErrRunNotFound
func (s *RunStore) Get(ctx context.Context, id string) (*workflow.Run, error) {
	var rec RunRecord
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return decodeRun(rec)
}

// List 按开始时间倒序返回最近的运行
func (s *RunStore) List(ctx context.Context, limit int) ([]*workflow.Run, error) {
	var recs []RunRecord
	q := s.pool.DB().WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]*workflow.Run, 0, len(recs))
	for _, rec := range recs {
		run, err := decodeRun(rec)
		if err != nil {
			s.logger.Warn("skip undecodable run", zap.String("run_id", rec.ID), zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Prune 删除早于 before 的运行记录，返回删除条数
func (s *RunStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.pool.DB().WithContext(ctx).Where("started_at < ?", before).Delete(&RunRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func decodeRun(rec RunRecord) (*workflow.Run, error) {
	var run workflow.Run
	if err := json.Unmarshal([]byte(rec.Payload), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", rec.ID, err)
	}
	return &run, nil
}
