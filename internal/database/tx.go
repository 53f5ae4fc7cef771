package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransactionFunc 事务回调，返回错误即回滚
type TransactionFunc func(tx *gorm.DB) error

const (
	txBaseDelay = 50 * time.Millisecond
	txMaxDelay  = 2 * time.Second
)

// WithTransaction 在单个事务中执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if pm.closed.Load() {
		return ErrPoolClosed
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 事务遇到锁冲突或断连时整体重放，最多 attempts 次
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = pm.WithTransaction(ctx, fn); err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := min(txBaseDelay<<i, txMaxDelay)
		pm.logger.Warn("transaction conflict, replaying",
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("transaction gave up after %d attempts: %w", attempts, err)
}

// sqlite 的 BUSY 与 LOCKED 结果码
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsRetryable 判断事务失败是否值得重放：
// postgres 序列化失败与死锁，mysql 死锁与锁等待超时，sqlite 忙，以及坏连接。
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrPoolClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		code := coded.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "deadlock", "connection reset", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
