// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP 入口、
语音会话、上游引擎与音频缓存四个维度。

# 概述

Collector 使用 promauto 将指标注册到默认 Registry，所有指标按
namespace 隔离。Collector 的记录方法对 nil 接收者安全，未启用指标
的组件可以直接传入 nil。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话数 Gauge、按结果分组的轮次计数、打断次数。
  - 上游指标：转写 / 对话 / 合成请求计数与耗时，按 service/status 分组。
  - 音频指标：按方向（inbound/outbound）累计的音频字节数。
  - 缓存指标：合成音频缓存的命中与未命中计数。
*/
package metrics
