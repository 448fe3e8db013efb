package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/internal/metrics"
	"github.com/BaSui01/voicerelay/types"
)

// DefaultChunkSize 是流式合成时每个音频块的最大字节数
const DefaultChunkSize = 16 * 1024

// AudioCache 缓存合成结果，internal/cache.Manager 实现了该接口
type AudioCache interface {
	GetAudio(ctx context.Context, key string) ([]byte, error)
	SetAudio(ctx context.Context, key string, audio []byte, ttl time.Duration) error
}

// SynthesizerConfig 合成参数
type SynthesizerConfig struct {
	Voice     string
	Model     string
	Format    string
	ChunkSize int
	CacheTTL  time.Duration
}

// SynthesizerOption 可选配置
type SynthesizerOption func(*Synthesizer)

// WithAudioCache 启用合成结果缓存
func WithAudioCache(cache AudioCache) SynthesizerOption {
	return func(s *Synthesizer) { s.cache = cache }
}

// WithMetrics 记录缓存命中情况
func WithMetrics(collector *metrics.Collector) SynthesizerOption {
	return func(s *Synthesizer) { s.metrics = collector }
}

// Synthesizer 把文本转换为有序的音频块
type Synthesizer struct {
	provider TTSProvider
	cfg      SynthesizerConfig
	cache    AudioCache
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewSynthesizer 创建合成器
func NewSynthesizer(provider TTSProvider, cfg SynthesizerConfig, logger *zap.Logger, opts ...SynthesizerOption) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	s := &Synthesizer{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "synthesizer"), zap.String("provider", provider.Name())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream 合成 text 并按顺序把音频块交给 fn，每块不超过 ChunkSize。
// 空白文本不发起请求。fn 返回错误或 ctx 取消时立即停止，剩余音频被丢弃。
func (s *Synthesizer) Stream(ctx context.Context, text string, fn func(chunk []byte) error) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	key := s.cacheKey(text)
	if audio, ok := s.lookup(ctx, key); ok {
		return s.emit(ctx, audio, fn)
	}

	resp, err := s.provider.Synthesize(ctx, &TTSRequest{
		Text:           text,
		Model:          s.cfg.Model,
		Voice:          s.cfg.Voice,
		ResponseFormat: s.cfg.Format,
	})
	if err != nil {
		return err
	}
	defer resp.Audio.Close()

	var full bytes.Buffer
	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, rerr := resp.Audio.Read(buf)
		if n > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if s.cache != nil {
				full.Write(chunk)
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return types.TransportError(s.provider.Name(), rerr)
		}
	}

	s.store(ctx, key, full.Bytes())
	return nil
}

// Format 返回合成音频的容器格式，由服务商根据配置的输出格式报告
func (s *Synthesizer) Format() string {
	return s.provider.OutputFormat(s.cfg.Format)
}

// Synthesize 一次性合成整段文本
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "nothing to synthesize")
	}
	var out bytes.Buffer
	err := s.Stream(ctx, text, func(chunk []byte) error {
		out.Write(chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *Synthesizer) emit(ctx context.Context, audio []byte, fn func([]byte) error) error {
	for len(audio) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(audio), s.cfg.ChunkSize)
		if err := fn(audio[:n]); err != nil {
			return err
		}
		audio = audio[n:]
	}
	return nil
}

// cacheKey 由服务商、音色、模型、格式和文本共同决定
func (s *Synthesizer) cacheKey(text string) string {
	h := sha256.New()
	for _, part := range []string{s.provider.Name(), s.cfg.Voice, s.cfg.Model, s.cfg.Format, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Synthesizer) lookup(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	audio, err := s.cache.GetAudio(ctx, key)
	if err != nil || len(audio) == 0 {
		s.metrics.RecordCacheMiss("audio")
		return nil, false
	}
	s.metrics.RecordCacheHit("audio")
	return audio, true
}

func (s *Synthesizer) store(ctx context.Context, key string, audio []byte) {
	if s.cache == nil || len(audio) == 0 {
		return
	}
	if err := s.cache.SetAudio(ctx, key, audio, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache synthesized audio", zap.Error(err))
	}
}
