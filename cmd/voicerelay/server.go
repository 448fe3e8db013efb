package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voicerelay/api/handlers"
	"github.com/BaSui01/voicerelay/config"
	"github.com/BaSui01/voicerelay/conversation"
	"github.com/BaSui01/voicerelay/gateway"
	"github.com/BaSui01/voicerelay/internal/cache"
	"github.com/BaSui01/voicerelay/internal/metrics"
	"github.com/BaSui01/voicerelay/internal/server"
	"github.com/BaSui01/voicerelay/internal/telemetry"
	"github.com/BaSui01/voicerelay/relay"
	"github.com/BaSui01/voicerelay/speech"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 VoiceRelay 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler    *handlers.HealthHandler
	wsHandler        *handlers.WSHandler
	voiceChatHandler *handlers.VoiceChatHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 合成结果缓存，未启用或连接失败时为 nil
	audioCache *cache.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器并装配所有组件，此时不监听任何端口
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otelProviders,
	}

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("voicerelay", s.logger)

	// 2. 初始化音频缓存
	s.initCache()

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 构建 HTTP 与 Metrics 服务器
	s.initHTTPServer()
	s.initMetricsServer()

	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initCache() {
	if !s.cfg.Cache.Enabled {
		s.logger.Info("Audio cache disabled")
		return
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Cache.Addr
	cacheCfg.Password = s.cfg.Cache.Password
	cacheCfg.DB = s.cfg.Cache.DB
	cacheCfg.KeyPrefix = s.cfg.Cache.KeyPrefix
	cacheCfg.DefaultTTL = s.cfg.Cache.TTL
	if s.cfg.Cache.PoolSize > 0 {
		cacheCfg.PoolSize = s.cfg.Cache.PoolSize
	}

	mgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn("Audio cache not available, continuing without it",
			zap.String("addr", cacheCfg.Addr),
			zap.Error(err))
		return
	}
	s.audioCache = mgr
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.audioCache != nil {
		s.healthHandler.RegisterCheck("audio_cache", s.audioCache.Ping)
	}

	transcriber, err := s.newTranscriber()
	if err != nil {
		return err
	}
	synthesizer, err := s.newSynthesizer()
	if err != nil {
		return err
	}

	chat := conversation.NewClient(conversation.Config{
		Endpoint: s.cfg.Conversation.Endpoint,
		APIKey:   s.cfg.Conversation.APIKey,
		User:     s.cfg.Conversation.User,
		Timeout:  s.cfg.Conversation.Timeout,
	}, s.logger)

	rl := relay.New(relay.Config{
		SilenceTimeout: s.cfg.Session.SilenceTimeout,
		Greeting:       s.cfg.Session.Greeting,
	}, relay.Deps{
		Transcriber:  transcriber,
		Conversation: chat,
		Synthesizer:  synthesizer,
		Metrics:      s.metricsCollector,
	}, s.logger)

	patterns, skipVerify := websocketOrigins(s.cfg.Server.CORSAllowedOrigins)
	s.wsHandler = handlers.NewWSHandler(rl, gateway.Options{
		ReadLimit:          s.cfg.Session.ReadLimit,
		WriteTimeout:       s.cfg.Session.WriteTimeout,
		OriginPatterns:     patterns,
		InsecureSkipVerify: skipVerify,
	}, s.logger)
	s.healthHandler.SetSessionCounter(s.wsHandler)

	s.voiceChatHandler = handlers.NewVoiceChatHandler(transcriber, chat, synthesizer, s.cfg.Server.MaxUploadBytes, s.logger)

	s.logger.Info("Handlers initialized",
		zap.String("transcription_provider", s.cfg.Transcription.Provider),
		zap.String("synthesis_provider", s.cfg.Synthesis.Provider),
		zap.Bool("audio_cache", s.audioCache != nil),
	)
	return nil
}

func (s *Server) newTranscriber() (*speech.Transcriber, error) {
	provider, err := s.sttProvider()
	if err != nil {
		return nil, err
	}
	tc := s.cfg.Transcription
	return speech.NewTranscriber(provider, speech.TranscriberConfig{
		TempDir:  tc.TempDir,
		Model:    tc.Model,
		Language: tc.Language,
	}, s.logger), nil
}

// sttProvider 按配置选择转写服务商，空字段由服务商默认值补全
func (s *Server) sttProvider() (speech.STTProvider, error) {
	tc := s.cfg.Transcription
	switch tc.Provider {
	case "openai":
		return speech.NewOpenAISTTProvider(speech.OpenAISTTConfig{
			APIKey:  tc.APIKey,
			BaseURL: tc.BaseURL,
			Model:   tc.Model,
			Timeout: tc.Timeout,
		}), nil
	case "deepgram":
		return speech.NewDeepgramProvider(speech.DeepgramConfig{
			APIKey:  tc.APIKey,
			BaseURL: tc.BaseURL,
			Model:   tc.Model,
			Timeout: tc.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", tc.Provider)
	}
}

func (s *Server) newSynthesizer() (*speech.Synthesizer, error) {
	provider, err := s.ttsProvider()
	if err != nil {
		return nil, err
	}

	opts := []speech.SynthesizerOption{speech.WithMetrics(s.metricsCollector)}
	if s.audioCache != nil {
		opts = append(opts, speech.WithAudioCache(s.audioCache))
	}

	sc := s.cfg.Synthesis
	return speech.NewSynthesizer(provider, speech.SynthesizerConfig{
		Voice:     sc.VoiceID,
		Model:     sc.ModelID,
		Format:    sc.OutputFormat,
		ChunkSize: sc.ChunkSize,
		CacheTTL:  s.cfg.Cache.TTL,
	}, s.logger, opts...), nil
}

func (s *Server) ttsProvider() (speech.TTSProvider, error) {
	sc := s.cfg.Synthesis
	switch sc.Provider {
	case "elevenlabs":
		return speech.NewElevenLabsProvider(speech.ElevenLabsConfig{
			APIKey:          sc.APIKey,
			BaseURL:         sc.BaseURL,
			Model:           sc.ModelID,
			VoiceID:         sc.VoiceID,
			OutputFormat:    sc.OutputFormat,
			Stability:       sc.Stability,
			SimilarityBoost: sc.SimilarityBoost,
			Timeout:         sc.Timeout,
		}), nil
	case "openai":
		return speech.NewOpenAITTSProvider(speech.OpenAITTSConfig{
			APIKey:  sc.APIKey,
			BaseURL: sc.BaseURL,
			Model:   sc.ModelID,
			Voice:   sc.VoiceID,
			Timeout: sc.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported synthesis provider: %s", sc.Provider)
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有业务与健康检查路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 语音接口
	mux.Handle("/ws/audio", s.wsHandler)
	mux.Handle("/api/voice-chat", s.voiceChatHandler)

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	return mux
}

func (s *Server) initHTTPServer() {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	// WebSocket 会话是长连接，写超时交给 gateway 按帧控制
	serverConfig := server.Config{
		Name:            "http",
		Addr:            listenAddr(s.cfg.Server.Host, s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	s.httpManager.OnShutdown(rateLimiterCancel)
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) initMetricsServer() {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            listenAddr(s.cfg.Server.Host, s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
}

func listenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动所有服务并阻塞，直到 ctx 结束或任一服务异常退出。
// 退出前依次结束语音会话、关闭缓存与遥测。
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(context.WithoutCancel(gctx))
		return nil
	})

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	err := g.Wait()
	s.logger.Info("Graceful shutdown completed")
	return err
}

// shutdown 释放 HTTP 服务器之外的资源。
// 已升级的 WebSocket 连接不受 http.Server.Shutdown 管理，需要单独结束。
func (s *Server) shutdown(parent context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(parent, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.wsHandler.Shutdown(ctx); err != nil {
			s.logger.Warn("Voice sessions did not finish in time", zap.Error(err))
		}
		if s.audioCache != nil {
			if err := s.audioCache.Close(); err != nil {
				s.logger.Error("Audio cache close error", zap.Error(err))
			}
		}
		return nil
	})
	g.Go(func() error {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
		return nil
	})
	_ = g.Wait()
}

// HTTPAddr 返回 HTTP 服务器实际监听的地址，启动前为配置地址
func (s *Server) HTTPAddr() string {
	return s.httpManager.Addr()
}
