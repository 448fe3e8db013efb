package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/internal/tlsutil"
	"github.com/BaSui01/voicerelay/types"
)

// ErrNoReply 表示对话引擎没有给出回复（非 200 状态）
var ErrNoReply = errors.New("conversation engine returned no reply")

const providerName = "conversation"

// Config 对话引擎配置
type Config struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	User     string        `json:"user" yaml:"user"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// Client 对话引擎客户端，可被多个会话并发使用
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建客户端。Timeout 只约束等待响应头的时间，流式响应体由 ctx 控制。
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.User == "" {
		cfg.User = "abc-123"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: tlsutil.StreamingHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "conversation")),
	}
}

type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

// Open 提交查询并返回回复流。调用方必须 Close 返回的 Stream。
func (c *Client) Open(ctx context.Context, query, conversationID string) (*Stream, error) {
	payload, err := json.Marshal(chatRequest{
		Inputs:         map[string]any{},
		Query:          query,
		ResponseMode:   "streaming",
		ConversationID: conversationID,
		User:           c.cfg.User,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.TransportError(providerName, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("conversation engine returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: status %d", ErrNoReply, resp.StatusCode)
	}

	return newStream(ctx, resp.Body, conversationID), nil
}
