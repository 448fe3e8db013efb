package speech

import "time"

// ElevenLabsConfig 配置 ElevenLabs TTS 服务商
type ElevenLabsConfig struct {
	APIKey          string        `json:"api_key" yaml:"api_key"`
	BaseURL         string        `json:"base_url" yaml:"base_url"`
	Model           string        `json:"model,omitempty" yaml:"model,omitempty"`
	VoiceID         string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	OutputFormat    string        `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Stability       float64       `json:"stability,omitempty" yaml:"stability,omitempty"`
	SimilarityBoost float64       `json:"similarity_boost,omitempty" yaml:"similarity_boost,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAITTSConfig 配置 OpenAI TTS 服务商
type OpenAITTSConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // tts-1, tts-1-hd
	Voice   string        `json:"voice,omitempty" yaml:"voice,omitempty"` // alloy, echo, fable, onyx, nova, shimmer
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAISTTConfig 配置 OpenAI Whisper STT 服务商
type OpenAISTTConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // whisper-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DeepgramConfig 配置 Deepgram STT 服务商
type DeepgramConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // nova-2
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultElevenLabsConfig 返回默认的 ElevenLabs 配置
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:         "https://api.elevenlabs.io/v1",
		Model:           "eleven_multilingual_v2",
		VoiceID:         "21m00Tcm4TlvDq8ikWAM", // Rachel
		OutputFormat:    "mp3_44100_128",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Timeout:         60 * time.Second,
	}
}

// DefaultOpenAITTSConfig 返回默认 OpenAI TTS 配置
func DefaultOpenAITTSConfig() OpenAITTSConfig {
	return OpenAITTSConfig{
		BaseURL: "https://api.openai.com",
		Model:   "tts-1",
		Voice:   "alloy",
		Timeout: 60 * time.Second,
	}
}

// DefaultOpenAISTTConfig 返回默认 OpenAI STT 配置
func DefaultOpenAISTTConfig() OpenAISTTConfig {
	return OpenAISTTConfig{
		BaseURL: "https://api.openai.com",
		Model:   "whisper-1",
		Timeout: 120 * time.Second,
	}
}

// DefaultDeepgramConfig 返回默认 Deepgram 配置
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL: "https://api.deepgram.com",
		Model:   "nova-2",
		Timeout: 120 * time.Second,
	}
}
