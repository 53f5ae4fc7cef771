// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 是 consultflow 的关系型存储层，基于 GORM，支持
postgres、mysql 与纯 Go sqlite 三种驱动。

Open 按 config.DatabaseConfig 选择方言并返回 PoolManager。sqlite
固定单连接，其余驱动在默认连接池参数上叠加配置值。

PoolManager 提供：

  - Ping / Stats：探活与连接池快照，用于健康检查。
  - Monitor：后台定时探活，把快照交给调用方（通常写入 Prometheus）。
  - WithTransaction / WithTransactionRetry：事务执行；后者在
    IsRetryable 判定的锁冲突、序列化失败或坏连接时整体重放。

RunStore 把 workflow.Run 持久化到 workflow_runs 表，实现
workflow.RunStore，供运行历史查询与过期清理使用。表结构由
internal/migration 管理，AutoMigrate 仅用于测试与单机部署。
*/
package database
