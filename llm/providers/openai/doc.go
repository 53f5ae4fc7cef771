// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于官方 openai-go SDK 提供 llm.Provider 实现，
适用于 OpenAI 及任何兼容 Chat Completions 的服务（通过 BaseURL 指定）。

# 错误映射

  - 401/403 → AUTHENTICATION
  - 429 → RATE_LIMITED（可重试）或 QUOTA_EXCEEDED
  - 408/504/超时 → UPSTREAM_TIMEOUT（可重试）
  - 5xx → UPSTREAM_ERROR（可重试）
*/
package openai
