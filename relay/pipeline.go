package relay

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/conversation"
	"github.com/BaSui01/voicerelay/gateway"
	"github.com/BaSui01/voicerelay/textproc"
)

// 轮次结果，用于指标
const (
	outcomeCompleted   = "completed"
	outcomeInterrupted = "interrupted"
	outcomeNoReply     = "no_reply"
	outcomeEmpty       = "empty"
	outcomeFailed      = "failed"
)

// runPipeline 转写缓冲的音频，打开对话流并启动朗读子任务。
// 缓冲区在开始时即被清空，失败的音频不会重新处理。
func (s *Session) runPipeline(ctx context.Context) {
	audio := s.drainAudio()
	if len(audio) == 0 {
		return
	}

	s.mu.Lock()
	s.interrupted = false
	s.mu.Unlock()

	transcript, err := s.transcribe(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("transcription failed", zap.Int("audio_bytes", len(audio)), zap.Error(err))
		s.relay.deps.Metrics.RecordTurn(outcomeFailed)
		_ = s.send(ctx, Message{Type: MsgError, Message: noticeProcessFailed})
		return
	}
	if transcript == "" {
		s.logger.Info("empty transcript, skipping turn", zap.Int("audio_bytes", len(audio)))
		s.relay.deps.Metrics.RecordTurn(outcomeEmpty)
		return
	}

	if err := s.send(ctx, Message{Type: MsgTranscript, Text: transcript}); err != nil {
		return
	}

	turnStart := time.Now()
	taskCtx, cancel := context.WithCancel(ctx)
	stream, err := s.converse(taskCtx, transcript)
	if err != nil {
		cancel()
		switch {
		case errors.Is(err, conversation.ErrNoReply):
			s.logger.Warn("conversation engine gave no reply", zap.Error(err))
			s.relay.deps.Metrics.RecordTurn(outcomeNoReply)
		case ctx.Err() != nil:
		default:
			s.logger.Warn("conversation request failed", zap.Error(err))
			s.relay.deps.Metrics.RecordTurn(outcomeFailed)
			_ = s.send(ctx, Message{Type: MsgError, Message: noticeReplyFailed})
		}
		return
	}

	task := &speakTask{cancel: cancel, done: make(chan struct{}), startedAt: turnStart}
	s.mu.Lock()
	s.state = StateAgentSpeaking
	s.task = task
	s.mu.Unlock()

	go s.speak(taskCtx, stream, task)
}

func (s *Session) transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, span := s.relay.tracer.Start(ctx, "relay.transcribe",
		trace.WithAttributes(
			attribute.String("session.id", s.ID),
			attribute.Int("audio.bytes", len(audio)),
		))
	defer span.End()

	start := time.Now()
	text, err := s.relay.deps.Transcriber.Transcribe(ctx, audio)
	s.relay.deps.Metrics.RecordUpstream("transcribe", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return "", err
	}
	return text, nil
}

func (s *Session) converse(ctx context.Context, query string) (*conversation.Stream, error) {
	convID := s.ConversationID()

	ctx, span := s.relay.tracer.Start(ctx, "relay.converse",
		trace.WithAttributes(
			attribute.String("session.id", s.ID),
			attribute.Bool("conversation.resumed", convID != ""),
		))
	defer span.End()

	start := time.Now()
	stream, err := s.relay.deps.Conversation.Open(ctx, query, convID)
	s.relay.deps.Metrics.RecordUpstream("converse", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation open failed")
		return nil, err
	}
	return stream, nil
}

// speak 是朗读子任务：分句、逐句发送 response 文本与合成音频
func (s *Session) speak(ctx context.Context, stream *conversation.Stream, task *speakTask) {
	defer close(task.done)
	defer task.cancel()

	outcome := s.speakReply(ctx, stream, task.startedAt)
	_ = stream.Close()
	s.adoptConversationID(stream.ConversationID())

	s.finishSpeaking(ctx, outcome)
}

func (s *Session) speakReply(ctx context.Context, stream *conversation.Stream, turnStart time.Time) string {
	seg := textproc.NewSegmenter()
	first := true
	observe := func() {
		if first && s.relay.firstSentence != nil {
			s.relay.firstSentence.Record(ctx, time.Since(turnStart).Seconds())
		}
		first = false
	}

	for {
		token, ok := stream.Next()
		if !ok {
			break
		}
		// 首个片段到达即可采用会话 ID，打断后下一轮依然可以延续上下文
		s.adoptConversationID(stream.ConversationID())

		if sentence, ok := seg.Push(token); ok {
			observe()
			if outcome, cont := s.speakSentence(ctx, sentence); !cont {
				return outcome
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil || s.isInterrupted() {
			return outcomeInterrupted
		}
		s.logger.Warn("conversation stream failed", zap.Error(err))
		_ = s.send(ctx, Message{Type: MsgError, Message: noticeReplyFailed})
		return outcomeFailed
	}

	if sentence, ok := seg.Flush(); ok {
		observe()
		if outcome, cont := s.speakSentence(ctx, sentence); !cont {
			return outcome
		}
	}
	return outcomeCompleted
}

// speakSentence 返回 false 表示本轮应停止
func (s *Session) speakSentence(ctx context.Context, sentence string) (string, bool) {
	if s.isInterrupted() || ctx.Err() != nil {
		return outcomeInterrupted, false
	}

	if err := s.send(ctx, Message{Type: MsgResponse, Text: sentence}); err != nil {
		return outcomeInterrupted, false
	}

	err := s.synthesize(ctx, textproc.Sanitize(sentence))
	if err == nil {
		return "", true
	}
	if ctx.Err() != nil || s.isInterrupted() || errors.Is(err, gateway.ErrDisconnected) {
		return outcomeInterrupted, false
	}

	s.logger.Warn("sentence synthesis failed", zap.Error(err))
	_ = s.send(ctx, Message{Type: MsgError, Message: noticeSynthesizeFailed})
	return outcomeFailed, false
}

// synthesize 合成 text 并把音频块依次发给客户端
func (s *Session) synthesize(ctx context.Context, text string) error {
	ctx, span := s.relay.tracer.Start(ctx, "relay.synthesize",
		trace.WithAttributes(
			attribute.String("session.id", s.ID),
			attribute.Int("text.length", len(text)),
		))
	defer span.End()

	start := time.Now()
	err := s.relay.deps.Synthesizer.Stream(ctx, text, func(chunk []byte) error {
		if err := s.conn.SendBinary(ctx, chunk); err != nil {
			return err
		}
		s.relay.deps.Metrics.RecordAudioBytes("outbound", len(chunk))
		return nil
	})
	s.relay.deps.Metrics.RecordUpstream("synthesize", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
	}
	return err
}

// finishSpeaking 结束朗读。被打断时由打断处理发送唯一的 agent_idle。
func (s *Session) finishSpeaking(ctx context.Context, outcome string) {
	s.mu.Lock()
	if s.interrupted {
		s.mu.Unlock()
		s.relay.deps.Metrics.RecordTurn(outcomeInterrupted)
		return
	}
	s.state = StateIdle
	s.mu.Unlock()

	s.relay.deps.Metrics.RecordTurn(outcome)
	_ = s.send(ctx, Message{Type: MsgAgentIdle})
	_ = s.send(ctx, Message{Type: MsgUserSpeaking})
}
