package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/voicerelay/internal/tlsutil"
	"github.com/BaSui01/voicerelay/types"
)

// OpenAISTTProvider 使用 OpenAI Whisper API 执行 STT
type OpenAISTTProvider struct {
	cfg    OpenAISTTConfig
	client *http.Client
}

// NewOpenAISTTProvider 创建新的 OpenAI STT 提供者
func NewOpenAISTTProvider(cfg OpenAISTTConfig) *OpenAISTTProvider {
	def := DefaultOpenAISTTConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	return &OpenAISTTProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *OpenAISTTProvider) Name() string { return "openai-stt" }

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe 将语音转换为文本
func (p *OpenAISTTProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if req == nil || req.Audio == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "audio input is required")
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	// 构建 multipart 表单
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}

	_ = writer.WriteField("model", model)
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	format := req.ResponseFormat
	if format == "" {
		format = "verbose_json"
	}
	_ = writer.WriteField("response_format", format)

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/transcriptions",
		&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.TransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.UpstreamError(p.Name(), resp.StatusCode, readErrorBody(resp.Body))
	}

	var wResp whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode whisper response").
			WithCause(err).
			WithProvider(p.Name())
	}

	return &STTResponse{
		Provider: p.Name(),
		Model:    model,
		Text:     wResp.Text,
		Language: wResp.Language,
		Duration: time.Duration(wResp.Duration * float64(time.Second)),
	}, nil
}

// TranscribeFile 转写音频文件，文件名随表单一起上传以便服务端识别格式
func (p *OpenAISTTProvider) TranscribeFile(ctx context.Context, path string, opts *STTRequest) (*STTResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	req := STTRequest{}
	if opts != nil {
		req = *opts
	}
	req.Audio = file
	if req.Filename == "" {
		req.Filename = filepath.Base(path)
	}

	return p.Transcribe(ctx, &req)
}
