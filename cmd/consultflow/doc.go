// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
consultflow 是咨询工作流引擎的命令行入口。

子命令：

  - serve：启动 API 与 metrics 两个端口，收到 SIGINT/SIGTERM 后依次
    关闭监听、释放数据库与 Redis、刷新遥测。
  - run：不启动服务，执行一次工作流并把结果以 JSON 打印到 stdout。
  - migrate：golang-migrate 管理的数据库迁移（up/down/status/version）。
  - health：请求运行中服务的 /health。
  - version：打印 ldflags 注入的版本、提交与构建时间。

配置来自 --config 指定的 YAML 与 CONSULTFLOW_ 前缀的环境变量。

API 端口的中间件自外向内为 Recovery、RequestID、SecurityHeaders、
Instrument（span、访问日志与 Prometheus 指标）、CORS、JWTAuth（启用时）
与按用户或 IP 的 RateLimiter。
*/
package main
