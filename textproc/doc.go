// Copyright (c) VoiceRelay Authors.
// Licensed under the MIT License.

/*
包 textproc 提供合成前的文本处理：句子切分与 Markdown 清洗。

# 概述

对话引擎以 token 流的形式返回文本。Segmenter 将 token 累积为完整句子
（以 . ! ? 结尾），使每个句子可以独立合成并尽早播放；Sanitize 在合成
前去除 Markdown 展示标记，避免语音引擎读出星号、反引号等符号。

# 核心类型

  - Segmenter：增量句子累加器，Push 追加 token，Flush 输出流结束时的残余。
  - Segment：对完整 token 切片执行一次切分的便捷函数。
  - Sanitize：正则风格的尽力清洗，不要求标记成对出现。

两者均为纯函数式组件，不持有跨调用的隐藏状态。
*/
package textproc
