// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 gateway 管理单个客户端的 WebSocket 连接。

# 概述

Accept 完成协议升级后启动一个读泵 goroutine，把收到的文本帧和
二进制帧投递到通道中。Receive 在通道与超时之间选择，超时以
FrameTimeout 帧返回而不是错误，调用方可以直接把它当作静音计时器。

coder/websocket 的 Read 在 ctx 到期时会关闭连接，因此读泵使用
连接自身的生命周期 ctx，超时只作用于 Receive 的等待。

# 发送

SendText / SendJSON / SendBinary 共享同一把写锁，不同流程的帧
不会交错。每次写入使用独立的写超时；调用方的 ctx 只在写入前检查，
已开始的帧总是完整写出。

# 错误

  - ErrDisconnected：对端已断开或连接已关闭。
  - ErrTransport：其他读写失败，使用 errors.Is 判断。
*/
package gateway
