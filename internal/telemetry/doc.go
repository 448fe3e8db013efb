// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑。
// 启用时通过 OTLP gRPC 导出 relay 的各阶段 span 与首句延迟直方图；
// 禁用时保留全局 noop 实现，不连接任何外部服务。
package telemetry
