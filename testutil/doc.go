// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 汇集 consultflow 各包测试共用的工具。

本包只有少量通用函数：TestContext 返回随测试清理的带超时上下文，
Logger 把 zap 日志接到 t.Log，Drain 收集流式事件通道。

子包：

  - mocks：MockGenerator 按调用方角色应答，MockProvider 替代
    llm.Provider，MockRetriever 返回预置文档。三者均记录调用，
    可注入错误。
  - fixtures：咨询场景的知识库文档、典型查询与对话历史。
*/
package testutil
