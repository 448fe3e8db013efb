// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
Package types 提供 voicerelay 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 gateway、relay、speech、
conversation 以及 api 等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - TransportError    — 与上游引擎或客户端之间的网络故障
  - UpstreamError     — 上游引擎返回的非成功状态码

# 错误分类

  - TRANSPORT_ERROR：网络或连接失败，向客户端发送 error 通知，会话继续。
  - UPSTREAM_ERROR：转写 / 对话 / 合成引擎返回非成功状态，处理方式同上。
  - PROTOCOL_ERROR：入站控制帧格式错误，静默忽略。
  - DISCONNECTED：客户端已断开，终止会话循环。
*/
package types
