package speech

import (
	"context"
	"io"
	"strings"
	"time"
)

// ============================================================
// 文字转语音 (TTS)
// ============================================================

// TTSRequest 表示一次文本转语音请求
type TTSRequest struct {
	Text           string `json:"text"`
	Model          string `json:"model,omitempty"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// TTSResponse 表示 TTS 请求的响应。Audio 由调用方负责关闭。
type TTSResponse struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Audio    io.ReadCloser `json:"-"`
	Format   string        `json:"format"`
}

// TTSProvider 定义 TTS 服务商接口
type TTSProvider interface {
	// Synthesize 发起合成请求并返回音频响应体
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// Name 返回服务商名称
	Name() string

	// OutputFormat 返回请求格式 requested 实际产出的容器格式（mp3、wav、pcm 等），
	// requested 为空时按服务商默认配置
	OutputFormat(requested string) string
}

// ============================================================
// 语音转文本 (STT)
// ============================================================

// STTRequest 表示一次语音转文本请求
type STTRequest struct {
	Audio          io.Reader `json:"-"`
	Filename       string    `json:"filename,omitempty"`
	Model          string    `json:"model,omitempty"`
	Language       string    `json:"language,omitempty"` // ISO-639-1
	Prompt         string    `json:"prompt,omitempty"`
	ResponseFormat string    `json:"response_format,omitempty"`
}

// STTResponse 表示 STT 请求的响应
type STTResponse struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Language   string        `json:"language,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}

// STTProvider 定义 STT 服务商接口
type STTProvider interface {
	// Transcribe 将音频转换为文本
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// TranscribeFile 转写磁盘上的音频文件
	TranscribeFile(ctx context.Context, filepath string, opts *STTRequest) (*STTResponse, error)

	// Name 返回服务商名称
	Name() string
}

// readErrorBody reads at most 2 KiB of an error response body.
func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 2048))
	return strings.TrimSpace(string(data))
}
