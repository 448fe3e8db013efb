package main

import (
	"context"
	"maps"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/voicerelay/api/handlers"
	"github.com/BaSui01/voicerelay/internal/metrics"
	"github.com/BaSui01/voicerelay/types"
)

const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext 返回 RequestID 中间件注入的请求 ID，没有时为空串
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Middleware 包装一个 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 按参数顺序由外向内包装 h
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for _, mw := range slices.Backward(middlewares) {
		h = mw(h)
	}
	return h
}

// =============================================================================
// 🛡️ 恢复与日志
// =============================================================================

// Recovery 捕获 handler 中的 panic 并返回 500 错误信封
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("error", v),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				)
				handlers.WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 每个请求结束后记一条日志，WebSocket 会话在连接关闭时记录
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := handlers.NewResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Bool("upgraded", rw.Hijacked),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

// =============================================================================
// 📊 指标与追踪
// =============================================================================

// 未登记的路径统一记为 "other"，控制标签基数
var knownRoutes = []string{
	"/ws/audio",
	"/api/voice-chat",
	"/health", "/healthz",
	"/ready", "/readyz",
	"/version",
}

func normalizePath(path string) string {
	if slices.Contains(knownRoutes, path) {
		return path
	}
	return "other"
}

// MetricsMiddleware 把每个请求的耗时、状态码与收发字节数交给 collector
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := handlers.NewResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode,
				time.Since(start), max(r.ContentLength, 0), rw.BytesWritten)
		})
	}
}

// OTelTracing 为每个请求开启 server span，并延续请求头中的上游追踪上下文
func OTelTracing() Middleware {
	tracer := otel.Tracer("voicerelay/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := normalizePath(r.URL.Path)
			parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(parent, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					attribute.String("http.route", route),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

type clientLimiter struct {
	*rate.Limiter
	seen time.Time
}

// ipLimiters 按客户端 IP 维护令牌桶
type ipLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{Limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	l.mu.Unlock()
	return c.AllowN(now, 1)
}

// sweep 定期清理长时间未出现的客户端，ctx 结束后退出
func (l *ipLimiters) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.prune(now)
		}
	}
}

func (l *ipLimiters) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	maps.DeleteFunc(l.clients, func(_ string, c *clientLimiter) bool {
		return now.Sub(c.seen) > limiterIdleTTL
	})
}

// RateLimiter 按客户端 IP 限流，超限返回 429；rps <= 0 时直接放行
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := &ipLimiters{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		clients: make(map[string]*clientLimiter),
	}
	go limiters.sweep(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiters.allow(ip, time.Now()) {
				logger.Debug("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				handlers.WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrRateLimited, "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// =============================================================================
// 🌍 跨域
// =============================================================================

var corsHeaders = map[string]string{
	"Access-Control-Allow-Methods":  "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers":  "Content-Type, Authorization, " + headerRequestID,
	"Access-Control-Expose-Headers": "Content-Disposition, X-Conversation-ID, " + headerRequestID,
	"Access-Control-Max-Age":        "86400",
}

// CORS 只回应 allowedOrigins 中的来源，包含 "*" 时回应所有来源。
// 不被允许的预检请求返回 403。
func CORS(allowedOrigins []string) Middleware {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (allowAll || slices.Contains(allowedOrigins, origin))
			if allowed {
				h := w.Header()
				if allowAll {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				for k, v := range corsHeaders {
					h.Set(k, v)
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				status := http.StatusNoContent
				if !allowed {
					status = http.StatusForbidden
				}
				w.WriteHeader(status)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// websocketOrigins 把 CORS 来源转换为 WebSocket 握手的 Origin 校验参数
func websocketOrigins(allowedOrigins []string) (patterns []string, skipVerify bool) {
	if slices.Contains(allowedOrigins, "*") {
		return nil, true
	}
	for _, o := range allowedOrigins {
		if _, rest, ok := strings.Cut(o, "://"); ok {
			o = rest
		}
		patterns = append(patterns, strings.TrimSuffix(o, "/"))
	}
	return patterns, false
}

// =============================================================================
// 🏷️ 请求 ID 与安全头
// =============================================================================

// RequestID 沿用客户端传入的 X-Request-ID，否则生成 "req-<uuid>"，
// 同时写入响应头与请求 ctx
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if id == "" {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set(headerRequestID, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'self'"},
}

// SecurityHeaders 为所有响应加上固定的安全头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, kv := range securityHeaders {
				w.Header().Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
