package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sqliteCodeErr int

func (e sqliteCodeErr) Error() string { return fmt.Sprintf("sqlite error %d", int(e)) }
func (e sqliteCodeErr) Code() int     { return int(e) }

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	pm, mock := mockPool(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := pm.WithTransaction(context.Background(), func(*gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRetry_ReplaysDeadlock(t *testing.T) {
	pm, mock := mockPool(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRetry_StopsOnPermanentError(t *testing.T) {
	pm, mock := mockPool(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		calls++
		return dup
	})
	assert.ErrorIs(t, err, dup)
	assert.Equal(t, 1, calls)
}

func TestWithTransactionRetry_GivesUp(t *testing.T) {
	pm, mock := mockPool(t)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := pm.WithTransactionRetry(context.Background(), 2, func(*gorm.DB) error {
		return sqliteCodeErr(sqliteBusy)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRetry_ContextCancelled(t *testing.T) {
	pm, mock := mockPool(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := pm.WithTransactionRetry(ctx, 5, func(*gorm.DB) error {
		cancel()
		return driver.ErrBadConn
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock wrapped", fmt.Errorf("save: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
		{"mysql deadlock", &mysqldriver.MySQLError{Number: 1213}, true},
		{"mysql lock wait", &mysqldriver.MySQLError{Number: 1205}, true},
		{"mysql duplicate", &mysqldriver.MySQLError{Number: 1062}, false},
		{"sqlite busy", sqliteCodeErr(sqliteBusy), true},
		{"sqlite extended busy", sqliteCodeErr(sqliteBusy | 2<<8), true},
		{"sqlite constraint", sqliteCodeErr(19), false},
		{"bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"locked message", errors.New("database is locked"), true},
		{"cancelled", context.Canceled, false},
		{"closed pool", ErrPoolClosed, false},
		{"syntax", errors.New("syntax error at or near"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
