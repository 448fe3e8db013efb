// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 speech 提供统一的语音合成 (TTS) 与语音识别 (STT) 接入层，
以及会话状态机直接使用的两个客户端：Synthesizer 与 Transcriber。

# 概述

本包将 TTS 与 STT 两大语音能力抽象为独立的 Provider 接口，
屏蔽不同服务商在鉴权方式、端点和响应结构上的差异。上层只依赖
Synthesizer / Transcriber，不关心具体服务商。

# 核心接口

  - TTSProvider：文本转语音接口，返回音频响应体，并通过 OutputFormat
    报告实际产出的容器格式。
  - STTProvider：语音转文本接口，包含 Transcribe 与 TranscribeFile。
  - Synthesizer：在 TTSProvider 之上提供分块流式（Stream）与整体
    （Synthesize）两种合成方式，可选 AudioCache 缓存重复短语。
  - Transcriber：将内存中的音频缓冲写入临时文件后转写，并保证在
    任何退出路径上删除临时文件。

# 服务商

  - ElevenLabsProvider：ElevenLabs 流式合成端点，默认语音设置
    stability 0.5 / similarity_boost 0.75。
  - OpenAITTSProvider：OpenAI /v1/audio/speech。
  - OpenAISTTProvider：Whisper /v1/audio/transcriptions。
  - DeepgramProvider：Deepgram /v1/listen。

# 错误

非成功状态码返回 types.ErrUpstreamError，网络失败返回 types.ErrTransport。
通过 ctx 取消会放弃正在进行的请求，尚未交付的音频块被丢弃。
*/
package speech
