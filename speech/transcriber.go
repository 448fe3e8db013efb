package speech

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/types"
)

// TranscriberConfig 转写参数
type TranscriberConfig struct {
	// TempDir 临时文件目录，为空时使用 os.TempDir()
	TempDir string
	// FileExt 临时文件扩展名，默认 .webm
	FileExt  string
	Model    string
	Language string
}

// Transcriber 把一段完整的音频缓冲转换为文本
type Transcriber struct {
	provider STTProvider
	cfg      TranscriberConfig
	logger   *zap.Logger
}

// NewTranscriber 创建转写器
func NewTranscriber(provider STTProvider, cfg TranscriberConfig, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.FileExt == "" {
		cfg.FileExt = ".webm"
	}
	if !strings.HasPrefix(cfg.FileExt, ".") {
		cfg.FileExt = "." + cfg.FileExt
	}
	return &Transcriber{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "transcriber"), zap.String("provider", provider.Name())),
	}
}

// Transcribe 将音频写入唯一命名的临时文件后转写。
// 临时文件在所有退出路径上都会被删除。
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", types.NewError(types.ErrInvalidRequest, "empty audio buffer")
	}

	path := filepath.Join(t.cfg.TempDir, uuid.NewString()+t.cfg.FileExt)
	defer t.remove(path)

	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return "", fmt.Errorf("write temp audio: %w", err)
	}

	resp, err := t.provider.TranscribeFile(ctx, path, &STTRequest{
		Model:    t.cfg.Model,
		Language: t.cfg.Language,
	})
	if err != nil {
		return "", err
	}

	t.logger.Debug("audio transcribed",
		zap.Int("bytes", len(audio)),
		zap.Duration("audio_duration", resp.Duration),
		zap.String("language", resp.Language),
		zap.Float64("confidence", resp.Confidence),
	)
	return strings.TrimSpace(resp.Text), nil
}

func (t *Transcriber) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("failed to remove temp audio", zap.String("path", path), zap.Error(err))
	}
}
