// =============================================================================
// 📦 VoiceRelay 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Session:       DefaultSessionConfig(),
		Transcription: DefaultTranscriptionConfig(),
		Synthesis:     DefaultSynthesisConfig(),
		Conversation:  DefaultConversationConfig(),
		Cache:         DefaultCacheConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		HTTPPort:           8000,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       0,
		ShutdownTimeout:    15 * time.Second,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       0,
		RateLimitBurst:     20,
		MaxUploadBytes:     25 << 20,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SilenceTimeout: 2 * time.Second,
		Greeting:       "Hi, this is your agent. How can I help you today?",
		ReadLimit:      4 << 20,
		WriteTimeout:   10 * time.Second,
	}
}

// DefaultTranscriptionConfig 返回默认语音识别配置
func DefaultTranscriptionConfig() TranscriptionConfig {
	// BaseURL 与 Model 为空时由具体服务商补齐默认值
	return TranscriptionConfig{
		Provider: "openai",
		Timeout:  120 * time.Second,
	}
}

// DefaultSynthesisConfig 返回默认语音合成配置
func DefaultSynthesisConfig() SynthesisConfig {
	// BaseURL、VoiceID、ModelID、OutputFormat 为空时由具体服务商补齐
	return SynthesisConfig{
		Provider:        "elevenlabs",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		ChunkSize:       16 * 1024,
		Timeout:         60 * time.Second,
	}
}

// DefaultConversationConfig 返回默认对话引擎配置
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		User:    "abc-123",
		Timeout: 30 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		DB:        0,
		KeyPrefix: "voicerelay:tts:",
		TTL:       24 * time.Hour,
		PoolSize:  10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voicerelay",
		SampleRate:   0.1,
	}
}
