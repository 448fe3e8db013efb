// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

// Package config 提供 VoiceRelay 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 兼容环境变量 → VOICERELAY_ 前缀环境变量
// 的顺序叠加。兼容变量（OPENAI_API_KEY、ELEVENLABS_API_KEY、
// CHATBOT_API_URL 等）沿用早期部署的命名，带前缀的变量优先级更高。
package config
