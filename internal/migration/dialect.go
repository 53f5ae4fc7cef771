package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"

	// 纯 Go SQLite 驱动，注册名 "sqlite"，与 GORM 方言共用
	_ "github.com/glebarez/go-sqlite"

	"github.com/BaSui01/consultflow/config"
)

//go:embed migrations/*/*.sql
var migrationFiles embed.FS

// Dialect 迁移目标数据库方言
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// dialectSpec 描述一个方言的 database/sql 驱动、迁移目录与 golang-migrate 驱动构造
type dialectSpec struct {
	sqlDriver string
	open      func(db *sql.DB, table string) (database.Driver, error)
}

var dialects = map[Dialect]dialectSpec{
	Postgres: {
		sqlDriver: "postgres",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	MySQL: {
		sqlDriver: "mysql",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	SQLite: {
		sqlDriver: "sqlite",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
		},
	},
}

// ParseDialect 解析方言名称，接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", s)
	}
}

// Dir 返回内嵌迁移文件目录
func (d Dialect) Dir() string {
	return path.Join("migrations", string(d))
}

func (d Dialect) spec() (dialectSpec, error) {
	s, ok := dialects[d]
	if !ok {
		return dialectSpec{}, fmt.Errorf("unsupported database dialect %q", d)
	}
	return s, nil
}

// MigrationDSN 在应用 DSN 基础上补齐迁移所需参数：
// mysql 需要 multiStatements，sqlite 需要开启外键。
func MigrationDSN(cfg config.DatabaseConfig) (Dialect, string, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return "", "", err
	}
	cfg.Driver = string(d)
	dsn := cfg.DSN()

	switch d {
	case MySQL:
		dsn += "&multiStatements=true"
	case SQLite:
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite requires a database name")
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		if !strings.Contains(dsn, "_pragma=") {
			dsn += "?_pragma=foreign_keys(1)"
		}
	}
	return d, dsn, nil
}

// Catalog 列出某方言内嵌的全部迁移，按版本升序
func Catalog(d Dialect) ([]Step, error) {
	if _, err := d.spec(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(migrationFiles, d.Dir())
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", d, err)
	}

	var steps []Step
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if !ok {
			continue
		}
		num, title, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		steps = append(steps, Step{Version: uint(v), Name: title})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}
