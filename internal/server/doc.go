// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
VoiceRelay 用它分别承载业务端口（/ws/audio、/api/voice-chat）
与 Prometheus 指标端口。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 结束或服务异常时优雅关闭，适合 errgroup。
  - 关闭回调：OnShutdown 用于通知已劫持的 WebSocket 会话退出。
  - 状态查询：Addr 返回实际监听地址，Serving 报告是否正在服务。
*/
package server
