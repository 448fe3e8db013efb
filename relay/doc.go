// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 relay 实现语音会话状态机与“转写 → 对话 → 合成”流水线。

# 概述

Relay.Serve 为每个连接运行一个接收循环，驱动 Session 在以下状态间迁移：

	idle ──音频──▶ user_speaking ──静音/done──▶ agent_speaking ──完成──▶ idle
	                                              │
	                                              └──done──▶ interrupted ──▶ idle

user_speaking 是隐式状态：idle 且缓冲区非空。interrupted 是瞬时状态，
打断处理完成后立即回到 idle。

# 流水线

转写与对话请求在接收循环中同步执行；回复朗读阶段作为可取消的子任务
运行，使 done 帧可以打断正在进行的合成。子任务在每句话之前检查打断
标志，取消通过 ctx 传递到进行中的 HTTP 请求。

# 出站消息

transcript、response、greeting、greeting_end、agent_idle、user_speaking、
interrupted、error，以及二进制音频帧。
*/
package relay
