package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/conversation"
	"github.com/BaSui01/voicerelay/gateway"
	"github.com/BaSui01/voicerelay/internal/metrics"
)

const instrumentationName = "github.com/BaSui01/voicerelay/relay"

// Transcriber 把一段完整音频转换为文本
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Conversation 打开一次对话回复流
type Conversation interface {
	Open(ctx context.Context, query, conversationID string) (*conversation.Stream, error)
}

// Synthesizer 把文本合成为有序的音频块
type Synthesizer interface {
	Stream(ctx context.Context, text string, fn func(chunk []byte) error) error
}

// Conn 是会话所需的连接能力，gateway.Conn 实现了该接口
type Conn interface {
	Receive(ctx context.Context, timeout time.Duration) (gateway.Frame, error)
	SendJSON(ctx context.Context, v any) error
	SendBinary(ctx context.Context, payload []byte) error
}

// Config 会话参数
type Config struct {
	// SilenceTimeout 静音多久后处理已缓冲的音频
	SilenceTimeout time.Duration
	// Greeting start 帧未指定问候语时使用
	Greeting string
}

// Deps 外部引擎
type Deps struct {
	Transcriber  Transcriber
	Conversation Conversation
	Synthesizer  Synthesizer
	Metrics      *metrics.Collector
}

// Relay 为每个连接创建并驱动一个 Session，可被多个连接并发使用
type Relay struct {
	cfg    Config
	deps   Deps
	tracer trace.Tracer
	logger *zap.Logger

	// 从转写完成到第一句回复开始朗读的耗时
	firstSentence metric.Float64Histogram
}

// New 创建 Relay
func New(cfg Config, deps Deps, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 2 * time.Second
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	r := &Relay{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "relay")),
	}

	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"voicerelay.relay.first_sentence_latency",
		metric.WithDescription("Time from transcript to the first spoken reply sentence"),
		metric.WithUnit("s"),
	)
	if err != nil {
		r.logger.Warn("failed to create first sentence histogram", zap.Error(err))
	}
	r.firstSentence = hist
	return r
}

// Serve 在 conn 上运行一个会话直到客户端断开、发送 cleanup 或 ctx 结束。
// 断开与 cleanup 都是正常结束，返回 nil。
func (r *Relay) Serve(ctx context.Context, conn Conn) error {
	s := newSession(uuid.NewString(), r, conn)

	r.deps.Metrics.SessionOpened()
	s.logger.Info("session started")
	defer func() {
		s.stopSpeaking()
		r.deps.Metrics.SessionClosed(time.Since(s.StartedAt))
		s.logger.Info("session ended", zap.Duration("lifetime", time.Since(s.StartedAt)))
	}()

	for {
		frame, err := conn.Receive(ctx, r.cfg.SilenceTimeout)
		if err != nil {
			if errors.Is(err, gateway.ErrDisconnected) || ctx.Err() != nil {
				s.logger.Info("client disconnected")
				return nil
			}
			s.logger.Warn("receive failed", zap.Error(err))
			return err
		}

		switch frame.Kind {
		case gateway.FrameBinary:
			s.appendAudio(frame.Data)
		case gateway.FrameText:
			if stop := s.handleControl(ctx, frame.Data); stop {
				return nil
			}
		case gateway.FrameTimeout:
			s.onSilence(ctx)
		}
	}
}
