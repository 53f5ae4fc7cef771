package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/consultflow/config"
	"github.com/BaSui01/consultflow/internal/migration"
)

// =============================================================================
// 数据库迁移命令
// =============================================================================

// migrateFlags 迁移子命令共用参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
	all        bool
}

func newMigrateFlagSet(name string, f *migrateFlags, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("migrate "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")
	if name == "down" {
		fs.BoolVar(&f.all, "all", false, "Rollback all migrations")
	}
	return fs
}

// runMigrate 执行 migrate 子命令，输出写入 out
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return fmt.Errorf("missing migrate subcommand")
	}

	subcommand := args[0]
	subargs := args[1:]

	// goto/force/steps 的第一个位置参数是数字
	var number string
	switch subcommand {
	case "help", "-h", "--help":
		printMigrateUsage(out)
		return nil
	case "goto", "force", "steps":
		if len(subargs) < 1 {
			return fmt.Errorf("usage: consultflow migrate %s <n>", subcommand)
		}
		number, subargs = subargs[0], subargs[1:]
	case "up", "down", "status", "info", "version", "reset":
	default:
		printMigrateUsage(out)
		return fmt.Errorf("unknown migrate subcommand: %s", subcommand)
	}

	var f migrateFlags
	if err := newMigrateFlagSet(subcommand, &f, out).Parse(subargs); err != nil {
		return err
	}

	migrator, err := createMigrator(f)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator, out)

	switch subcommand {
	case "up":
		return cli.Up(ctx)
	case "down":
		return cli.Down(ctx, f.all)
	case "reset":
		return cli.Down(ctx, true)
	case "status":
		return cli.Status(ctx)
	case "info":
		return cli.Info(ctx)
	case "version":
		return cli.Version(ctx)
	case "goto":
		v, err := strconv.ParseUint(number, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", number)
		}
		return cli.Goto(ctx, uint(v))
	case "force":
		v, err := strconv.ParseInt(number, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", number)
		}
		return cli.Force(ctx, int(v))
	default: // steps
		n, err := strconv.Atoi(number)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid step count: %s", number)
		}
		return cli.Steps(ctx, n)
	}
}

// createMigrator 优先使用 --db-type/--db-url，否则从配置文件读取数据库配置
func createMigrator(f migrateFlags) (*migration.SchemaMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		return migration.OpenURL(f.dbType, f.dbURL, nil)
	}

	loader := config.NewLoader()
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	return migration.OpenConfig(cfg.Database, nil)
}

func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  consultflow migrate <subcommand> [options]

Subcommands:
  up           Apply all pending migrations
  down         Rollback the last migration (--all to rollback everything)
  steps <n>    Apply (n>0) or rollback (n<0) n migrations
  status       Show migration status
  info         Show migration info
  version      Show current migration version
  goto <v>     Migrate to a specific version
  force <v>    Force set migration version (use with caution)
  reset        Rollback all migrations
  help         Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  consultflow migrate up
  consultflow migrate up --db-type sqlite --db-url "file:consultflow.db?_pragma=foreign_keys(1)"
  consultflow migrate status --config /etc/consultflow/config.yaml
  consultflow migrate steps -1
  consultflow migrate goto 1`)
}
