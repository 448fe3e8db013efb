// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
Package main 提供 VoiceRelay 服务端程序入口。

# 概述

cmd/voicerelay 启动语音对话中继服务：/ws/audio 上的实时语音会话、
/api/voice-chat 一次性语音问答，以及健康检查与 Prometheus 指标端口。

# 核心类型

  - Server      — 装配转写、对话、合成与 relay，管理 HTTP、Metrics 双端口
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）
  - 中间件的响应包装支持 Hijack，WebSocket 升级可以穿过整条链
  - 优雅关闭：SIGINT/SIGTERM → 关闭 HTTP → 结束语音会话 → 关闭缓存与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
