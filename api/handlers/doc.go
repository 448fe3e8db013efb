// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 VoiceRelay HTTP 端点的请求处理器实现。

# 概述

handlers 包实现语音会话升级、一次性语音问答、健康检查以及统一的
响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - WSHandler         — /ws/audio，升级为 WebSocket 并交给 relay 驱动会话
  - VoiceChatHandler  — /api/voice-chat，上传音频 → 转写 → 回复 → 合成音频
  - HealthHandler     — 服务健康检查（/health, /healthz, /ready, /readyz, /version）
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter    — 包装 http.ResponseWriter，捕获状态码并支持 Hijack
  - CheckFunc         — 就绪检查函数，按名称注册，如音频缓存的 Ping

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx），上游状态码不透传
  - 会话计数：HealthHandler 通过 SessionCounter 报告活跃会话数
  - 优雅关闭：WSHandler.Shutdown 拒绝新连接并结束所有活跃会话
*/
package handlers
