package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newPair 返回服务端 Conn 与原始客户端连接
func newPair(t *testing.T, opts Options) (*Conn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, opts, zap.NewNop())
		if err != nil {
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.CloseNow() })

	select {
	case c := <-accepted:
		t.Cleanup(func() { c.Close("test done") })
		return c, client
	case <-time.After(5 * time.Second):
		t.Fatal("server did not accept")
		return nil, nil
	}
}

func TestConn_ReceiveFrames(t *testing.T) {
	conn, client := newPair(t, Options{})
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte(`{"type":"done"}`)))

	f, err := conn.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, FrameBinary, f.Kind)
	assert.Equal(t, []byte{1, 2, 3}, f.Data)

	f, err = conn.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, FrameText, f.Kind)
	assert.JSONEq(t, `{"type":"done"}`, string(f.Data))
}

func TestConn_TimeoutIsNotAnError(t *testing.T) {
	conn, client := newPair(t, Options{})
	ctx := context.Background()

	f, err := conn.Receive(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, FrameTimeout, f.Kind)

	// 超时之后连接仍然可用
	require.NoError(t, client.Write(ctx, websocket.MessageBinary, []byte("after")))
	f, err = conn.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), f.Data)
}

func TestConn_PeerCloseIsDisconnected(t *testing.T) {
	conn, client := newPair(t, Options{})

	require.NoError(t, client.Close(websocket.StatusNormalClosure, "bye"))

	_, err := conn.Receive(context.Background(), 2*time.Second)
	assert.ErrorIs(t, err, ErrDisconnected)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not stop")
	}
}

func TestConn_SendJSONAndBinary(t *testing.T) {
	conn, client := newPair(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.SendJSON(ctx, map[string]string{"type": "agent_idle"}))
	require.NoError(t, conn.SendBinary(ctx, []byte("audio")))

	typ, data, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"type":"agent_idle"}`, string(data))

	typ, data, err = client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)
	assert.Equal(t, "audio", string(data))
}

func TestConn_ConcurrentSendsDoNotInterleave(t *testing.T) {
	conn, client := newPair(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const senders, perSender = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_ = conn.SendJSON(ctx, map[string]int{"sender": id, "seq": j})
			}
		}(i)
	}

	lastSeq := map[int]int{}
	for i := 0; i < senders*perSender; i++ {
		_, data, err := client.Read(ctx)
		require.NoError(t, err)

		var msg map[string]int
		require.NoError(t, json.Unmarshal(data, &msg), "frame %d must be intact JSON", i)
		if prev, ok := lastSeq[msg["sender"]]; ok {
			assert.Equal(t, prev+1, msg["seq"], "per-sender order preserved")
		}
		lastSeq[msg["sender"]] = msg["seq"]
	}
	wg.Wait()
}

func TestConn_CancelledContextKeepsConnection(t *testing.T) {
	conn, client := newPair(t, Options{})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := conn.SendBinary(cancelled, []byte("dropped"))
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, conn.SendText(ctx, []byte("still-open")))

	_, data, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still-open", string(data))
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn, client := newPair(t, Options{})
	client.CloseRead(context.Background())

	conn.Close("first")
	conn.Close("second")

	err := conn.SendText(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrDisconnected)

	_, err = conn.Receive(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrDisconnected), fmt.Sprintf("got %v", err))
}

// 客户端在服务端停止 Receive 后仍持续发送音频，Close 不能等到握手超时
func TestConn_CloseWhilePeerKeepsSending(t *testing.T) {
	conn, client := newPair(t, Options{})
	readCtx := client.CloseRead(context.Background())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		chunk := make([]byte, 1024)
		for {
			select {
			case <-stop:
				return
			case <-readCtx.Done():
				return
			default:
			}
			if err := client.Write(context.Background(), websocket.MessageBinary, chunk); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		_ = client.CloseNow()
		wg.Wait()
	})

	f, err := conn.Receive(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, FrameBinary, f.Kind)

	start := time.Now()
	conn.Close("session ended")
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("read pump did not stop after close")
	}
}

func TestConn_ReadLimit(t *testing.T) {
	conn, client := newPair(t, Options{ReadLimit: 16})
	ctx := context.Background()

	_ = client.Write(ctx, websocket.MessageBinary, make([]byte, 64))

	_, err := conn.Receive(ctx, 2*time.Second)
	assert.Error(t, err)
}

func TestFrameKind_String(t *testing.T) {
	assert.Equal(t, "text", FrameText.String())
	assert.Equal(t, "binary", FrameBinary.String())
	assert.Equal(t, "timeout", FrameTimeout.String())
	assert.Equal(t, "unknown", FrameKind(0).String())
}
