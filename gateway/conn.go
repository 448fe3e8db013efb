package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var (
	// ErrDisconnected 表示对端已断开或连接已关闭
	ErrDisconnected = errors.New("gateway: client disconnected")

	// ErrTransport 表示其他读写失败
	ErrTransport = errors.New("gateway: transport failure")
)

const (
	defaultReadLimit    = 4 << 20
	defaultWriteTimeout = 10 * time.Second
)

// Options 连接参数
type Options struct {
	// ReadLimit 单帧最大字节数，默认 4 MiB
	ReadLimit int64
	// WriteTimeout 单次写入超时，默认 10s
	WriteTimeout time.Duration
	// OriginPatterns 允许的跨域 Origin，见 websocket.AcceptOptions
	OriginPatterns []string
	// InsecureSkipVerify 跳过 Origin 校验
	InsecureSkipVerify bool
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	return o
}

// FrameKind 入站帧类型
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
	// FrameTimeout 表示在超时时间内没有收到任何帧
	FrameTimeout
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Frame 入站帧
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn 单个客户端连接
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	frames  chan Frame
	readErr error // 读泵退出前写入，frames 关闭后可读
	done    chan struct{}
	closing chan struct{} // Close 开始时关闭，读泵转为丢弃模式

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// Accept 升级 HTTP 请求为 WebSocket 连接并启动读泵
func Accept(w http.ResponseWriter, r *http.Request, opts Options, logger *zap.Logger) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     opts.OriginPatterns,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return NewConn(ws, opts, logger), nil
}

// NewConn 包装一个已建立的连接，服务端与客户端均可使用
func NewConn(ws *websocket.Conn, opts Options, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	ws.SetReadLimit(opts.ReadLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:      ws,
		opts:    opts,
		logger:  logger.With(zap.String("component", "gateway")),
		ctx:     ctx,
		cancel:  cancel,
		frames:  make(chan Frame),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go c.readPump()
	return c
}

func (c *Conn) readPump() {
	defer close(c.done)
	defer close(c.frames)

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.readErr = c.classify(err)
			c.logger.Debug("read pump stopped", zap.Error(err))
			return
		}

		kind := FrameBinary
		if typ == websocket.MessageText {
			kind = FrameText
		}

		select {
		case c.frames <- Frame{Kind: kind, Data: data}:
		case <-c.closing:
			c.readErr = ErrDisconnected
			c.discard()
			return
		case <-c.ctx.Done():
			c.readErr = ErrDisconnected
			return
		}
	}
}

// discard 在关闭过程中继续读取并丢弃入站帧，直到读到对端的关闭帧或读取失败。
// 没有人读取时对端的关闭帧无法被处理，关闭握手会一直等到超时。
func (c *Conn) discard() {
	for {
		if _, _, err := c.ws.Read(c.ctx); err != nil {
			return
		}
	}
}

// Receive 等待下一帧。timeout 内没有帧时返回 FrameTimeout，timeout <= 0 表示一直等待。
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) (Frame, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case f, ok := <-c.frames:
		if !ok {
			if c.readErr != nil {
				return Frame{}, c.readErr
			}
			return Frame{}, ErrDisconnected
		}
		return f, nil
	case <-expired:
		return Frame{Kind: FrameTimeout}, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// SendText 发送文本帧
func (c *Conn) SendText(ctx context.Context, payload []byte) error {
	return c.write(ctx, websocket.MessageText, payload)
}

// SendJSON 编码 v 并作为文本帧发送
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.write(ctx, websocket.MessageText, data)
}

// SendBinary 发送二进制帧
func (c *Conn) SendBinary(ctx context.Context, payload []byte) error {
	return c.write(ctx, websocket.MessageBinary, payload)
}

func (c *Conn) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 写超时与调用方 ctx 分离：写入中途取消会导致底层连接被关闭
	wctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
	defer cancel()

	if err := c.ws.Write(wctx, typ, data); err != nil {
		return c.classify(err)
	}
	return nil
}

// Done 在读泵退出（对端断开或 Close）后关闭
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close 以正常关闭状态码关闭连接，可重复调用
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)

		c.writeMu.Lock()
		if err := c.ws.Close(websocket.StatusNormalClosure, reason); err != nil {
			c.logger.Debug("close handshake incomplete", zap.Error(err))
		}
		c.writeMu.Unlock()

		c.cancel()
	})
}

func (c *Conn) classify(err error) error {
	switch {
	case c.closed.Load(),
		websocket.CloseStatus(err) != -1,
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled):
		return ErrDisconnected
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
