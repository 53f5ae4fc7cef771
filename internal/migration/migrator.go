package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/config"
)

// DefaultTable 版本记录表
const DefaultTable = "schema_migrations"

// Step 单条迁移及其在当前数据库中的状态
type Step struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Summary 当前 Schema 版本概况
type Summary struct {
	Version uint
	Dirty   bool
	Total   int
	Applied int
	Pending int
}

// Migrator 是 CLI 依赖的迁移操作集
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	// Steps n>0 前进 n 步，n<0 回退 |n| 步
	Steps(ctx context.Context, n int) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]Step, error)
	Info(ctx context.Context) (*Summary, error)
	Close() error
}

// Options 打开迁移器所需参数
type Options struct {
	Dialect     Dialect
	DSN         string
	Table       string
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// SchemaMigrator 基于 golang-migrate 管理 context_documents 与 workflow_runs 两张表
type SchemaMigrator struct {
	dialect Dialect
	db      *sql.DB
	m       *migrate.Migrate
	catalog []Step
	logger  *zap.Logger
}

var _ Migrator = (*SchemaMigrator)(nil)

// Open 连接数据库并装配内嵌迁移源
func Open(opts Options) (*SchemaMigrator, error) {
	if opts.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	spec, err := opts.Dialect.spec()
	if err != nil {
		return nil, err
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("component", "migration"), zap.String("dialect", string(opts.Dialect)))

	catalog, err := Catalog(opts.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(spec.sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := spec.open(db, opts.Table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create %s migration driver: %w", opts.Dialect, err)
	}
	src, err := iofs.New(migrationFiles, opts.Dialect.Dir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(opts.Dialect), driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.LockTimeout = opts.LockTimeout
	m.Log = migrateLogger{logger: logger}

	return &SchemaMigrator{
		dialect: opts.Dialect,
		db:      db,
		m:       m,
		catalog: catalog,
		logger:  logger,
	}, nil
}

// OpenURL 按方言名称与连接串打开迁移器
func OpenURL(dialect, dsn string, logger *zap.Logger) (*SchemaMigrator, error) {
	d, err := ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	return Open(Options{Dialect: d, DSN: dsn, Logger: logger})
}

// OpenConfig 按应用数据库配置打开迁移器
func OpenConfig(cfg config.DatabaseConfig, logger *zap.Logger) (*SchemaMigrator, error) {
	d, dsn, err := MigrationDSN(cfg)
	if err != nil {
		return nil, err
	}
	return Open(Options{Dialect: d, DSN: dsn, Logger: logger})
}

// Dialect 返回目标方言
func (s *SchemaMigrator) Dialect() Dialect { return s.dialect }

func (s *SchemaMigrator) Up(ctx context.Context) error {
	return s.apply(ctx, "up", s.m.Up)
}

func (s *SchemaMigrator) Down(ctx context.Context) error {
	return s.apply(ctx, "down", func() error { return s.m.Steps(-1) })
}

func (s *SchemaMigrator) DownAll(ctx context.Context) error {
	return s.apply(ctx, "down all", s.m.Down)
}

func (s *SchemaMigrator) Steps(ctx context.Context, n int) error {
	return s.apply(ctx, fmt.Sprintf("steps %d", n), func() error { return s.m.Steps(n) })
}

func (s *SchemaMigrator) Goto(ctx context.Context, version uint) error {
	return s.apply(ctx, fmt.Sprintf("goto %d", version), func() error { return s.m.Migrate(version) })
}

// Force 只改写版本记录，不执行 SQL，用于修复 dirty 状态
func (s *SchemaMigrator) Force(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.m.Force(version); err != nil {
		return fmt.Errorf("migration force %d: %w", version, err)
	}
	s.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// apply 执行一次迁移操作，ErrNoChange 视为成功。
// ctx 结束时通过 GracefulStop 让 golang-migrate 在当前迁移完成后停止。
func (s *SchemaMigrator) apply(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case s.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	start := time.Now()
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		s.logger.Debug("schema already current", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", op, err)
	}

	v, dirty, _ := s.Version(ctx)
	s.logger.Info("migration applied",
		zap.String("op", op),
		zap.Uint("version", v),
		zap.Bool("dirty", dirty),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Version 返回当前版本，尚未迁移时为 0
func (s *SchemaMigrator) Version(context.Context) (uint, bool, error) {
	v, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}

func (s *SchemaMigrator) Status(ctx context.Context) ([]Step, error) {
	v, dirty, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Step, len(s.catalog))
	for i, st := range s.catalog {
		st.Applied = st.Version <= v
		st.Dirty = dirty && st.Version == v
		out[i] = st
	}
	return out, nil
}

func (s *SchemaMigrator) Info(ctx context.Context) (*Summary, error) {
	steps, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	v, dirty, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Version: v, Dirty: dirty, Total: len(steps)}
	for _, st := range steps {
		if st.Applied {
			sum.Applied++
		}
	}
	sum.Pending = sum.Total - sum.Applied
	return sum, nil
}

// Close 关闭迁移源与数据库连接
func (s *SchemaMigrator) Close() error {
	srcErr, dbErr := s.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrateLogger 把 golang-migrate 的日志转到 zap
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
