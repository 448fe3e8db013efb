package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/voicerelay/conversation"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeSTT struct {
	text string
	err  error

	mu    sync.Mutex
	calls [][]byte
}

func (f *fakeSTT) Transcribe(_ context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]byte(nil), audio...))
	f.mu.Unlock()
	return f.text, f.err
}

// fakeChat 以 SSE 文本回放固定回复
type fakeChat struct {
	answers []string
	convID  string
	err     error

	mu        sync.Mutex
	queries   []string
	requested []string
}

func (f *fakeChat) Open(_ context.Context, query, conversationID string) (*conversation.Stream, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.requested = append(f.requested, conversationID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var sb strings.Builder
	for _, a := range f.answers {
		fmt.Fprintf(&sb, "data: {\"event\":\"message\",\"answer\":%q,\"conversation_id\":%q}\n\n", a, f.convID)
	}
	return conversation.NewStream(io.NopCloser(strings.NewReader(sb.String())), conversationID), nil
}

// fakeTTS 把文本原样作为音频返回
type fakeTTS struct {
	err    error
	format string

	mu    sync.Mutex
	texts []string
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3:" + text), nil
}

func (f *fakeTTS) Format() string {
	if f.format == "" {
		return "mp3"
	}
	return f.format
}

func (f *fakeTTS) Stream(_ context.Context, text string, fn func([]byte) error) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return fn([]byte("mp3:" + text))
}
