// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理 consultflow 与 Redis 的连接，并提供基于 Redis 的
工作流运行历史。

Manager 只负责连接：启动时 Ping，失败立即返回；Client 交给
llm 多级缓存与 RunStore 共用同一连接池；Ping 与 Stats 供就绪检查
与排障使用。SlowThreshold 大于 0 时通过 go-redis Hook 记录慢命令。

RunStore 实现 workflow.RunStore：

  - 每条运行以 JSON 存在 consultflow:run:<id> 下，按 TTL 过期。
  - 有序集合 consultflow:runs 以开始时间为分数建立索引，List 按
    时间倒序返回，并顺带清理已过期成员。
*/
package cache
