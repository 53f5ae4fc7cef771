// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 consultflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、agent、llm、
retrieval、orchestrator 与 api 等上层模块提供统一的类型契约。

# 核心类型

  - Role / ResolveRole: 咨询角色的唯一枚举，别名只在入口解析一次
  - AgentResponse:      Agent 输出（content、sources、agent_name、status）
  - AgentStatus:        pending / processing / completed / error
  - Turn:               对话历史中的一轮（role、text、timestamp）
  - ContextDocument:    检索到的文档引用（id、title、snippet、score）
  - Error / ErrorCode:  结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithTenantID / WithUserID / WithRoles / WithRunID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 来源去重：DedupSources 保留首次出现顺序
*/
package types
