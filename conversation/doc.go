// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
Package conversation 是对话引擎的流式客户端。

Client.Open 向 chat-messages 接口提交一次查询，返回惰性读取的 Stream。
Stream.Next 逐个产出 answer 片段；首次对话（请求未携带会话 ID）时，
Stream.ConversationID 返回引擎分配的会话 ID，调用方据此保持上下文。

引擎返回非 200 状态时 Open 返回 ErrNoReply，这是可恢复的结果，
调用方应使用 errors.Is 判断并放弃本轮而不是终止会话。
*/
package conversation
