package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/voicerelay/internal/tlsutil"
	"github.com/BaSui01/voicerelay/types"
)

// ElevenLabsProvider 使用 ElevenLabs 流式端点执行 TTS
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabsProvider 创建 ElevenLabs TTS 服务商，空字段使用默认值
func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	def := DefaultElevenLabsConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = def.VoiceID
	}
	if cfg.Stability == 0 {
		cfg.Stability = def.Stability
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = def.SimilarityBoost
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	return &ElevenLabsProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// Synthesize 调用 /text-to-speech/{voice}/stream，响应体按到达顺序流式读取
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = p.cfg.VoiceID
	}
	format := req.ResponseFormat
	if format == "" {
		format = p.cfg.OutputFormat
	}

	payload, err := json.Marshal(elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       p.cfg.Stability,
			SimilarityBoost: p.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(voiceID))
	if format != "" {
		endpoint += "?output_format=" + url.QueryEscape(format)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.TransportError(p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, types.UpstreamError(p.Name(), resp.StatusCode, readErrorBody(resp.Body))
	}

	return &TTSResponse{
		Provider: p.Name(),
		Model:    model,
		Audio:    resp.Body,
		Format:   formatFamily(format),
	}, nil
}

func (p *ElevenLabsProvider) OutputFormat(requested string) string {
	if requested == "" {
		requested = p.cfg.OutputFormat
	}
	return formatFamily(requested)
}

// formatFamily 将 "mp3_44100_128" 之类的输出格式归一为容器名
func formatFamily(format string) string {
	if format == "" {
		return "mp3"
	}
	if i := strings.IndexByte(format, '_'); i > 0 {
		return format[:i]
	}
	return format
}
