// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供咨询 Agent 工作流的图执行引擎。

# 概述

workflow 包负责把一次用户请求编排为有向图上的运行：顺序链、条件路由、
并行扇出/汇合以及带迭代上限的反馈循环。每次运行拥有独立的 State，
所有状态迁移都会通知 Observer。

# 核心接口与类型

  - State:      单次运行的共享状态（query、history、context、agent_outputs、
    active_branches、loop_counters、final_response）
  - Update:     Task 节点返回的状态增量
  - AgentUnit:  专家单元接口 Invoke(ctx, *State) (AgentResponse, error)
  - Builder:    Fluent API 构建图（环检测、孤立节点检测、默认边、分支键冲突）
  - Graph:      经过校验的不可变图定义
  - Executor:   图执行器（errgroup 并行分支、键并集合并、循环上限、取消）
  - Compiler:   按角色优先级拼接最终回复，来源去重，幂等
  - Observer:   有序 Sink 分发，Sink 错误与 panic 不影响执行
  - Run:        执行历史（节点记录、迭代侧日志）与 RunStore

# 主要能力

  - 节点类型：Agent、Task、Decision、FanOut、Merge、Terminal
  - 运行状态：building / executing / merging / terminated / cancelled / failed
  - Agent 失败记录为 status=error 并继续执行；critical 节点失败则终止运行
  - 序列化：Definition 支持 JSON / YAML，并通过 Catalog 解析名称引用
*/
package workflow
