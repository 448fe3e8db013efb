// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的合成音频缓存。

# 概述

Manager 封装 go-redis 客户端，为 speech.Synthesizer 提供
GetAudio / SetAudio 两个操作，用于复用问候语等重复短语的合成结果。
键统一加上 KeyPrefix 前缀，值为原始音频字节。

# 主要能力

  - 连接池管理：通过 PoolSize 控制连接复用。
  - 健康检查：后台定时 Ping，仅在状态变化时通过 zap 记录告警或恢复，
    Healthy 返回最近一次结果，Close 后退出。
  - 错误语义：未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断。
*/
package cache
