package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appconfig "github.com/BaSui01/consultflow/config"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{"postgresql", Postgres, false},
		{"PG", Postgres, false},
		{"mysql", MySQL, false},
		{"mariadb", MySQL, false},
		{"sqlite", SQLite, false},
		{" sqlite3 ", SQLite, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrationDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     appconfig.DatabaseConfig
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{
			name:    "postgres",
			cfg:     appconfig.DatabaseConfig{Driver: "postgresql", Host: "db", Port: 5432, User: "cf", Password: "pw", Name: "consultflow", SSLMode: "disable"},
			dialect: Postgres,
			dsn:     "host=db port=5432 user=cf password=pw dbname=consultflow sslmode=disable",
		},
		{
			name:    "mysql",
			cfg:     appconfig.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "cf", Password: "pw", Name: "consultflow"},
			dialect: MySQL,
			dsn:     "cf:pw@tcp(db:3306)/consultflow?parseTime=true&multiStatements=true",
		},
		{
			name:    "sqlite path",
			cfg:     appconfig.DatabaseConfig{Driver: "sqlite", Name: "/var/lib/consultflow.db"},
			dialect: SQLite,
			dsn:     "file:/var/lib/consultflow.db?_pragma=foreign_keys(1)",
		},
		{
			name:    "sqlite with pragma",
			cfg:     appconfig.DatabaseConfig{Driver: "sqlite", Name: "file:cf.db?_pragma=busy_timeout(5000)"},
			dialect: SQLite,
			dsn:     "file:cf.db?_pragma=busy_timeout(5000)",
		},
		{name: "sqlite without name", cfg: appconfig.DatabaseConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", cfg: appconfig.DatabaseConfig{Driver: "oracle"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dsn, err := MigrationDSN(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, d)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestCatalog(t *testing.T) {
	for _, d := range []Dialect{Postgres, MySQL, SQLite} {
		t.Run(string(d), func(t *testing.T) {
			steps, err := Catalog(d)
			require.NoError(t, err)
			require.Len(t, steps, 2)
			assert.Equal(t, Step{Version: 1, Name: "create_context_documents"}, steps[0])
			assert.Equal(t, Step{Version: 2, Name: "create_workflow_runs"}, steps[1])
		})
	}

	_, err := Catalog("oracle")
	assert.Error(t, err)
}

func TestOpen_InvalidOptions(t *testing.T) {
	_, err := Open(Options{Dialect: SQLite})
	assert.Error(t, err)

	_, err = Open(Options{Dialect: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = OpenURL("oracle", "x", nil)
	assert.Error(t, err)

	_, err = OpenConfig(appconfig.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func openSQLite(t *testing.T) *SchemaMigrator {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "consultflow.db")
	m, err := OpenConfig(appconfig.DatabaseConfig{Driver: "sqlite", Name: dbPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSchemaMigrator_SQLiteLifecycle(t *testing.T) {
	m := openSQLite(t)
	ctx := context.Background()
	assert.Equal(t, SQLite, m.Dialect())

	v, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 重复执行无变化
	require.NoError(t, m.Up(ctx))

	for _, table := range []string{"context_documents", "workflow_runs"} {
		var name string
		err := m.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
	_, err = m.db.ExecContext(ctx,
		"INSERT INTO workflow_runs (id, graph, state, query, started_at, payload) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, ?)",
		"run-1", "consultation_standard", "terminated", "hello", "{}")
	require.NoError(t, err)

	sum, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Version: 2, Total: 2, Applied: 2}, sum)

	require.NoError(t, m.Down(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, m.Goto(ctx, 2))
	require.NoError(t, m.DownAll(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
}

func TestSchemaMigrator_ForceClearsDirty(t *testing.T) {
	m := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, m.Steps(ctx, 1))
	require.NoError(t, m.Force(ctx, 2))

	steps, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.True(t, steps[0].Applied)
	assert.True(t, steps[1].Applied)
	assert.False(t, steps[1].Dirty)
}

func TestSchemaMigrator_CancelledContext(t *testing.T) {
	m := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Up(ctx), context.Canceled)
	assert.ErrorIs(t, m.Force(ctx, 1), context.Canceled)
}

func TestCLI_Output(t *testing.T) {
	m := openSQLite(t)
	ctx := context.Background()

	var buf bytes.Buffer
	cli := NewCLI(m, &buf)

	require.NoError(t, cli.Version(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.Steps(ctx, 1))
	assert.Contains(t, buf.String(), "Applying 1 migration(s)")
	assert.Contains(t, buf.String(), "Schema version: 1")

	buf.Reset()
	require.NoError(t, cli.Status(ctx))
	out := buf.String()
	assert.Contains(t, out, "create_context_documents")
	assert.Contains(t, out, "create_workflow_runs")
	assert.Contains(t, out, "1 of 2 applied, 1 pending")

	buf.Reset()
	require.NoError(t, cli.Info(ctx))
	assert.Contains(t, buf.String(), "Pending:")

	buf.Reset()
	require.NoError(t, cli.Up(ctx))
	require.NoError(t, cli.Version(ctx))
	assert.Contains(t, buf.String(), "Schema version: 2")

	buf.Reset()
	require.NoError(t, cli.Down(ctx, true))
	assert.Contains(t, buf.String(), "Schema version: none")
}
