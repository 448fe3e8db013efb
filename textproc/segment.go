package textproc

import "strings"

// Segmenter 将流式 token 累积为完整句子。
// 零值可直接使用；每个生成轮次应使用新的 Segmenter。
type Segmenter struct {
	buf strings.Builder
}

// NewSegmenter 创建句子累加器
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push 追加一个 token。当缓冲区去掉尾部空白后以 . ! ? 结尾时，
// 返回累积的句子并清空缓冲区。
func (s *Segmenter) Push(token string) (string, bool) {
	s.buf.WriteString(token)
	if !endsSentence(s.buf.String()) {
		return "", false
	}
	sentence := s.buf.String()
	s.buf.Reset()
	return sentence, true
}

// Flush 返回流结束时的残余文本（可能没有结束标点）。
// 仅包含空白的残余视为空。
func (s *Segmenter) Flush() (string, bool) {
	rest := s.buf.String()
	s.buf.Reset()
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

// Segment 对完整 token 序列执行切分
func Segment(tokens []string) []string {
	var (
		seg       Segmenter
		sentences []string
	)
	for _, tok := range tokens {
		if sentence, ok := seg.Push(tok); ok {
			sentences = append(sentences, sentence)
		}
	}
	if rest, ok := seg.Flush(); ok {
		sentences = append(sentences, rest)
	}
	return sentences
}

func endsSentence(s string) bool {
	trimmed := strings.TrimRight(s, " \t\r\n\v\f")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
