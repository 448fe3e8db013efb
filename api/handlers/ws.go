package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/gateway"
	"github.com/BaSui01/voicerelay/relay"
	"github.com/BaSui01/voicerelay/types"
)

// =============================================================================
// 🎙️ /ws/audio 语音会话 Handler
// =============================================================================

// SessionServer 在一个连接上运行完整会话，relay.Relay 实现了该接口
type SessionServer interface {
	Serve(ctx context.Context, conn relay.Conn) error
}

// WSHandler 升级 WebSocket 并为每个连接运行一个会话
type WSHandler struct {
	sessions SessionServer
	opts     gateway.Options
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewWSHandler 创建 WebSocket 会话处理器
func NewWSHandler(sessions SessionServer, opts gateway.Options, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSHandler{
		sessions: sessions,
		opts:     opts,
		logger:   logger.With(zap.String("component", "ws_handler")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ServeHTTP 处理 GET /ws/audio
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "server is shutting down", h.logger)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := gateway.Accept(w, r, h.opts, h.logger)
	if err != nil {
		// 握手失败时 websocket.Accept 已写出响应
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	if err := h.sessions.Serve(ctx, conn); err != nil {
		h.logger.Warn("session ended with error", zap.Error(err))
		conn.Close("internal error")
		return
	}
	conn.Close("session ended")
}

// ActiveSessions 返回当前活跃会话数
func (h *WSHandler) ActiveSessions() int {
	return int(h.active.Load())
}

// Shutdown 拒绝新连接并通知所有会话结束，然后等待它们退出或 ctx 到期
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
