package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/voicerelay/gateway"
	"github.com/BaSui01/voicerelay/relay"
)

type wsHarness struct {
	handler *WSHandler
	server  *httptest.Server
	stt     *fakeSTT
	chat    *fakeChat
	tts     *fakeTTS
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{
		stt:  &fakeSTT{text: "hello there"},
		chat: &fakeChat{answers: []string{"Sure", ", I can *help*."}, convID: "conv-1"},
		tts:  &fakeTTS{},
	}
	logger := zaptest.NewLogger(t)
	r := relay.New(relay.Config{SilenceTimeout: 50 * time.Millisecond}, relay.Deps{
		Transcriber:  h.stt,
		Conversation: h.chat,
		Synthesizer:  h.tts,
	}, logger)

	h.handler = NewWSHandler(r, gateway.Options{InsecureSkipVerify: true}, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws/audio", h.handler)
	h.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.handler.Shutdown(ctx)
		h.server.Close()
	})
	return h
}

func (h *wsHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/audio"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

// next 读取一帧，文本帧返回 type 与 text/message 字段，二进制帧返回 "audio"
func next(t *testing.T, c *websocket.Conn) (string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	if typ == websocket.MessageBinary {
		return "audio", string(data)
	}
	var msg struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	if msg.Text != "" {
		return msg.Type, msg.Text
	}
	return msg.Type, msg.Message
}

func TestWSHandler_GreetingAndTurn(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t)
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"start","message":"Hi, I am Sandy."}`)))

	typ, text := next(t, c)
	assert.Equal(t, "greeting", typ)
	assert.Equal(t, "Hi, I am Sandy.", text)
	typ, text = next(t, c)
	assert.Equal(t, "audio", typ)
	assert.Equal(t, "mp3:Hi, I am Sandy.", text)
	typ, _ = next(t, c)
	assert.Equal(t, "greeting_end", typ)
	typ, _ = next(t, c)
	assert.Equal(t, "user_speaking", typ)

	for _, chunk := range []string{"a", "b", "c"} {
		require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte(chunk)))
	}

	typ, text = next(t, c)
	assert.Equal(t, "transcript", typ)
	assert.Equal(t, "hello there", text)
	typ, text = next(t, c)
	assert.Equal(t, "response", typ)
	assert.Equal(t, "Sure, I can *help*.", text)
	typ, text = next(t, c)
	assert.Equal(t, "audio", typ)
	assert.Equal(t, "mp3:Sure, I can help.", text)
	typ, _ = next(t, c)
	assert.Equal(t, "agent_idle", typ)
	typ, _ = next(t, c)
	assert.Equal(t, "user_speaking", typ)

	h.stt.mu.Lock()
	assert.Equal(t, [][]byte{[]byte("abc")}, h.stt.calls)
	h.stt.mu.Unlock()
}

func TestWSHandler_CleanupClosesSession(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t)

	require.Eventually(t, func() bool { return h.handler.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Write(context.Background(), websocket.MessageText, []byte(`{"type":"cleanup"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	assert.Eventually(t, func() bool { return h.handler.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSHandler_ShutdownEndsSessions(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t)
	require.Eventually(t, func() bool { return h.handler.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// 客户端需要持续读取才能完成关闭握手
	readErr := make(chan error, 1)
	go func() {
		_, _, err := c.Read(ctx)
		readErr <- err
	}()

	require.NoError(t, h.handler.Shutdown(ctx))
	assert.Equal(t, 0, h.handler.ActiveSessions())
	assert.Error(t, <-readErr)

	// 关闭后拒绝新连接
	resp, err := http.Get(h.server.URL + "/ws/audio")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWSHandler_PlainRequestRejected(t *testing.T) {
	h := newWSHarness(t)

	resp, err := http.Get(h.server.URL + "/ws/audio")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	assert.Equal(t, 0, h.handler.ActiveSessions())
}
