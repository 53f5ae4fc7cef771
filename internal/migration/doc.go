// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 consultflow 的数据库 Schema，基于 golang-migrate，
迁移 SQL 以 embed.FS 内嵌，覆盖 PostgreSQL、MySQL 与 SQLite。

Schema 只有两张表：context_documents 保存检索文档（retrieval.Store），
workflow_runs 保存运行历史（database.RunStore）。SQLite 走纯 Go 驱动。

# 使用

	m, err := migration.OpenConfig(cfg.Database, logger)
	if err != nil { ... }
	defer m.Close()
	err = migration.NewCLI(m, os.Stdout).Up(ctx)

MigrationDSN 在应用 DSN 上补齐迁移需要的参数；Catalog 列出内嵌迁移；
SchemaMigrator 的日志通过 zap 输出，ctx 取消时在当前迁移完成后停止。
*/
package migration
