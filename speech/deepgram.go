package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/voicerelay/internal/tlsutil"
	"github.com/BaSui01/voicerelay/types"
)

// DeepgramProvider 使用 Deepgram 预录音频接口执行 STT
type DeepgramProvider struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgramProvider 创建新的 Deepgram STT 提供者
func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	def := DefaultDeepgramConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	return &DeepgramProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

// 按扩展名推断上传的 Content-Type
var deepgramContentTypes = map[string]string{
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
}

type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
			DetectedLanguage string `json:"detected_language,omitempty"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe 将语音转换为文本，请求体为原始音频
func (p *DeepgramProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if req == nil || req.Audio == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "audio input is required")
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	if req.Language != "" {
		params.Set("language", req.Language)
	}

	endpoint := fmt.Sprintf("%s/v1/listen?%s", strings.TrimRight(p.cfg.BaseURL, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, req.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	contentType := deepgramContentTypes[strings.ToLower(filepath.Ext(req.Filename))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.TransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.UpstreamError(p.Name(), resp.StatusCode, readErrorBody(resp.Body))
	}

	var dResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode deepgram response").
			WithCause(err).
			WithProvider(p.Name())
	}

	result := &STTResponse{
		Provider: p.Name(),
		Model:    model,
		Duration: time.Duration(dResp.Metadata.Duration * float64(time.Second)),
	}

	// 只取第一个声道的首选结果
	if len(dResp.Results.Channels) > 0 {
		ch := dResp.Results.Channels[0]
		result.Language = ch.DetectedLanguage
		if len(ch.Alternatives) > 0 {
			result.Text = ch.Alternatives[0].Transcript
			result.Confidence = ch.Alternatives[0].Confidence
		}
	}

	return result, nil
}

// TranscribeFile 转写磁盘上的音频文件
func (p *DeepgramProvider) TranscribeFile(ctx context.Context, path string, opts *STTRequest) (*STTResponse, error) {
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
