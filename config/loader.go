// =============================================================================
// 📦 VoiceRelay 配置加载器
// =============================================================================
// 配置优先级: 默认值 → YAML 文件 → 兼容环境变量 → 带前缀环境变量
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 配置结构
// =============================================================================

// Config 是 VoiceRelay 的完整配置。env 标签按层级拼接，
// 如 VOICERELAY_SESSION_SILENCE_TIMEOUT。
type Config struct {
	Server        ServerConfig        `yaml:"server" env:"SERVER"`
	Session       SessionConfig       `yaml:"session" env:"SESSION"`
	Transcription TranscriptionConfig `yaml:"transcription" env:"TRANSCRIPTION"`
	Synthesis     SynthesisConfig     `yaml:"synthesis" env:"SYNTHESIS"`
	Conversation  ConversationConfig  `yaml:"conversation" env:"CONVERSATION"`
	Cache         CacheConfig         `yaml:"cache" env:"CACHE"`
	Log           LogConfig           `yaml:"log" env:"LOG"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 与指标端口
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"` // 0 表示不启动
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"` // 承载 WebSocket，需为 0
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"` // "*" 表示全部
	RateLimitRPS       float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`             // 每个 IP，0 表示不限流
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"` // /api/voice-chat 上传上限
}

// SessionConfig 语音会话
type SessionConfig struct {
	SilenceTimeout time.Duration `yaml:"silence_timeout" env:"SILENCE_TIMEOUT"` // 静音多久后处理缓冲音频
	Greeting       string        `yaml:"greeting" env:"GREETING"`
	ReadLimit      int64         `yaml:"read_limit" env:"READ_LIMIT"` // WebSocket 单帧上限
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// TranscriptionConfig 语音识别，Provider 为 openai 或 deepgram
type TranscriptionConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Model    string        `yaml:"model" env:"MODEL"`
	Language string        `yaml:"language" env:"LANGUAGE"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	TempDir  string        `yaml:"temp_dir" env:"TEMP_DIR"` // 为空时使用系统临时目录
}

// SynthesisConfig 语音合成，Provider 为 elevenlabs 或 openai
type SynthesisConfig struct {
	Provider        string        `yaml:"provider" env:"PROVIDER"`
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	VoiceID         string        `yaml:"voice_id" env:"VOICE_ID"`
	ModelID         string        `yaml:"model_id" env:"MODEL_ID"`
	OutputFormat    string        `yaml:"output_format" env:"OUTPUT_FORMAT"`
	Stability       float64       `yaml:"stability" env:"STABILITY"`
	SimilarityBoost float64       `yaml:"similarity_boost" env:"SIMILARITY_BOOST"`
	ChunkSize       int           `yaml:"chunk_size" env:"CHUNK_SIZE"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConversationConfig 对话引擎
type ConversationConfig struct {
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"` // chat-messages 接口地址
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	User     string        `yaml:"user" env:"USER"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"` // 等待响应头
}

// CacheConfig 合成音频的 Redis 缓存
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig zap 日志
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug / info / warn / error
	Format           string   `yaml:"format" env:"FORMAT"` // json / console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig OTLP 追踪与指标
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 加载器
// =============================================================================

// Loader 按固定优先级组装配置
type Loader struct {
	configPath string
	envPrefix  string
	legacyEnv  bool
	validators []func(*Config) error
}

// NewLoader 默认前缀 VOICERELAY，并读取兼容变量
func NewLoader() *Loader {
	return &Loader{envPrefix: "VOICERELAY", legacyEnv: true}
}

// WithConfigPath 指定 YAML 文件，文件不存在时忽略
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 替换环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 控制是否读取 OPENAI_API_KEY 等兼容变量
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacyEnv = enabled
	return l
}

// WithValidator 追加加载完成后执行的校验
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次应用默认值、YAML、兼容变量、带前缀变量，最后执行校验器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.mergeFile(cfg); err != nil {
		return nil, err
	}
	if l.legacyEnv {
		applyLegacyEnv(cfg)
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *Config) error {
	if l.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(l.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// =============================================================================
// 🌱 环境变量
// =============================================================================

// legacyEnvKeys 早期部署使用的变量名
var legacyEnvKeys = []struct {
	key   string
	field func(*Config) *string
}{
	{"OPENAI_API_KEY", func(c *Config) *string { return &c.Transcription.APIKey }},
	{"ELEVENLABS_API_KEY", func(c *Config) *string { return &c.Synthesis.APIKey }},
	{"ELEVEN_LABS_VOICE_ID", func(c *Config) *string { return &c.Synthesis.VoiceID }},
	{"ELEVEN_LABS_MODEL_ID", func(c *Config) *string { return &c.Synthesis.ModelID }},
	{"ELEVENLABS_API_URL", func(c *Config) *string { return &c.Synthesis.BaseURL }},
	{"CHATBOT_API_URL", func(c *Config) *string { return &c.Conversation.Endpoint }},
	{"NEXT_AGI_API_KEY", func(c *Config) *string { return &c.Conversation.APIKey }},
}

func applyLegacyEnv(cfg *Config) {
	for _, lk := range legacyEnvKeys {
		if v := os.Getenv(lk.key); v != "" {
			*lk.field(cfg) = v
		}
	}
}

var durationType = reflect.TypeFor[time.Duration]()

// applyEnv 按 env 标签遍历结构体，空值不覆盖
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", key, raw, err)
		}
	}
	return nil
}

func parseInto(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		// 逗号分隔
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// Validate 一次性报告所有不合法的字段
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.HTTPPort > 0 && c.Server.HTTPPort <= 65535, "invalid HTTP port %d", c.Server.HTTPPort)
	check(c.Server.MetricsPort >= 0 && c.Server.MetricsPort <= 65535, "invalid metrics port %d", c.Server.MetricsPort)
	check(c.Server.MetricsPort == 0 || c.Server.MetricsPort != c.Server.HTTPPort, "metrics port must differ from HTTP port")
	check(c.Server.RateLimitRPS >= 0, "server.rate_limit_rps must not be negative")

	check(c.Session.SilenceTimeout > 0, "session.silence_timeout must be positive")
	check(c.Session.ReadLimit > 0, "session.read_limit must be positive")

	check(slices.Contains([]string{"openai", "deepgram"}, c.Transcription.Provider),
		"unsupported transcription provider %q", c.Transcription.Provider)
	check(slices.Contains([]string{"elevenlabs", "openai"}, c.Synthesis.Provider),
		"unsupported synthesis provider %q", c.Synthesis.Provider)
	check(c.Synthesis.ChunkSize > 0, "synthesis.chunk_size must be positive")

	check(c.Conversation.Endpoint != "", "conversation.endpoint is required")
	check(!c.Cache.Enabled || c.Cache.Addr != "", "cache.addr is required when cache is enabled")
	check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "telemetry.sample_rate must be between 0 and 1")

	return errors.Join(errs...)
}
