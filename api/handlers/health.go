package handlers

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 存活 / 就绪 / 版本
// =============================================================================

const readyTimeout = 5 * time.Second

// CheckFunc 就绪检查，返回 nil 表示依赖可用
type CheckFunc func(ctx context.Context) error

// SessionCounter 报告当前活跃的语音会话数
type SessionCounter interface {
	ActiveSessions() int
}

// HealthStatus /health 与 /ready 的响应体
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy | unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Sessions  *int                   `json:"active_sessions,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项就绪检查的结果
type CheckResult struct {
	Status  string `json:"status"` // pass | fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// HealthHandler 提供 /health、/ready 与 /version
type HealthHandler struct {
	logger *zap.Logger

	mu       sync.RWMutex
	checks   []namedCheck
	sessions SessionCounter
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger.With(zap.String("component", "health"))}
}

// RegisterCheck 注册一项就绪检查，如音频缓存的 Redis Ping
func (h *HealthHandler) RegisterCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, fn: fn})
}

// SetSessionCounter 让 /health 附带活跃会话数
func (h *HealthHandler) SetSessionCounter(c SessionCounter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = c
}

// HandleHealth 存活检查，进程能响应即为 healthy
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{Status: "healthy", Timestamp: time.Now()}

	h.mu.RLock()
	if h.sessions != nil {
		n := h.sessions.ActiveSessions()
		status.Sessions = &n
	}
	h.mu.RUnlock()

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 并发执行全部检查，任一失败返回 503
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		status = HealthStatus{Status: "healthy", Checks: make(map[string]CheckResult, len(checks))}
	)
	for _, c := range checks {
		g.Go(func() error {
			res := h.run(ctx, c)
			mu.Lock()
			status.Checks[c.name] = res
			if res.Status != "pass" {
				status.Status = "unhealthy"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	status.Timestamp = time.Now()

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, c namedCheck) CheckResult {
	start := time.Now()
	err := c.fn(ctx)
	latency := time.Since(start)
	if err == nil {
		return CheckResult{Status: "pass", Latency: latency.String()}
	}
	h.logger.Warn("readiness check failed",
		zap.String("check", c.name),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	return CheckResult{Status: "fail", Message: err.Error(), Latency: latency.String()}
}

// HandleVersion 返回构建信息
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, info)
	}
}
