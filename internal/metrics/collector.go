package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 Prometheus 指标
// =============================================================================

// Collector 汇总 HTTP、会话、上游与缓存指标。nil Collector 的记录方法均为空操作。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话指标
	sessionsActive     prometheus.Gauge
	sessionDuration    prometheus.Histogram
	turnsTotal         *prometheus.CounterVec
	interruptionsTotal prometheus.Counter

	// 上游指标
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	// 音频指标
	audioBytesTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 在默认 Registerer 上注册全部指标
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 在 reg 上注册全部指标，同一 reg 上 namespace 不能重复
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := builder{f: promauto.With(reg), ns: namespace}
	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 8)

	c := &Collector{
		httpRequestsTotal:   b.counters("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: b.histograms("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     b.histograms("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets, "method", "path"),
		httpResponseSize:    b.histograms("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets, "method", "path"),

		sessionsActive: b.f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active", Help: "Number of open voice sessions",
		}),
		sessionDuration: b.f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "session_duration_seconds", Help: "Voice session lifetime in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		// outcome: completed / interrupted / no_reply / failed
		turnsTotal: b.counters("turns_total", "Total number of conversational turns by outcome", "outcome"),
		interruptionsTotal: b.f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "interruptions_total", Help: "Total number of agent replies interrupted by the user",
		}),

		// service: transcribe / converse / synthesize
		upstreamRequestsTotal:   b.counters("upstream_requests_total", "Total number of upstream engine requests", "service", "status"),
		upstreamRequestDuration: b.histograms("upstream_request_duration_seconds", "Upstream engine request duration in seconds", []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}, "service"),

		audioBytesTotal: b.counters("audio_bytes_total", "Total audio bytes relayed", "direction"),
		cacheHits:       b.counters("cache_hits_total", "Total number of cache hits", "cache_type"),
		cacheMisses:     b.counters("cache_misses_total", "Total number of cache misses", "cache_type"),

		logger: logger.With(zap.String("component", "metrics")),
	}

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

type builder struct {
	f  promauto.Factory
	ns string
}

func (b builder) counters(name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) histograms(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎙️ 会话指标记录
// =============================================================================

// SessionOpened 记录会话建立
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionClosed 记录会话结束及其存活时长
func (c *Collector) SessionClosed(lifetime time.Duration) {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionDuration.Observe(lifetime.Seconds())
}

// RecordTurn 记录一轮对话的结果
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordInterruption 记录一次打断
func (c *Collector) RecordInterruption() {
	if c == nil {
		return
	}
	c.interruptionsTotal.Inc()
}

// =============================================================================
// 🔌 上游指标记录
// =============================================================================

// RecordUpstream 记录上游引擎请求，err 为 nil 时计为 success
func (c *Collector) RecordUpstream(service string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.upstreamRequestsTotal.WithLabelValues(service, status).Inc()
	c.upstreamRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordAudioBytes 记录转发的音频字节数
func (c *Collector) RecordAudioBytes(direction string, n int) {
	if c == nil {
		return
	}
	c.audioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 按百位归类状态码
func statusCode(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
