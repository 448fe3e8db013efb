package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewManager(Config{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}

func TestManager_SetAndGetAudio(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	audio := []byte{0x49, 0x44, 0x33, 0x00, 0xff}
	require.NoError(t, manager.SetAudio(ctx, "greeting", audio, 0))

	got, err := manager.GetAudio(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	// 键带前缀，TTL 使用默认值
	assert.True(t, mr.Exists("test:greeting"))
	assert.Equal(t, time.Minute, mr.TTL("test:greeting"))
}

func TestManager_GetAudioMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	got, err := manager.GetAudio(context.Background(), "missing")
	assert.Nil(t, got)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Expiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.SetAudio(ctx, "short", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := manager.GetAudio(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Close(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err := manager.GetAudio(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.SetAudio(ctx, "k", []byte("v"), 0), ErrClosed)
}

func TestManager_HealthCheckStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:                mr.Addr(),
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())

	select {
	case <-manager.stop:
	default:
		t.Fatal("stop channel must be closed")
	}
}

func TestManager_HealthTransitionsLoggedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	core, logs := observer.New(zapcore.InfoLevel)

	manager, err := NewManager(Config{
		Addr:                mr.Addr(),
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	assert.True(t, manager.Healthy())

	mr.Close()
	require.Eventually(t, func() bool { return !manager.Healthy() }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("audio cache unreachable").Len())

	require.NoError(t, mr.Restart())
	require.Eventually(t, manager.Healthy, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("audio cache recovered").Len())
}
