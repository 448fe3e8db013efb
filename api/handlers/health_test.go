package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixedSessions int

func (n fixedSessions) ActiveSessions() int { return int(n) }

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.Nil(t, status.Sessions)
}

func TestHealthHandler_HandleHealthReportsSessions(t *testing.T) {
	handler := NewHealthHandler(nil)
	handler.SetSessionCounter(fixedSessions(3))

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.NotNil(t, status.Sessions)
	assert.Equal(t, 3, *status.Sessions)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all pass",
			checks: map[string]CheckFunc{
				"audio_cache": func(context.Context) error { return nil },
				"other":       func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "one fails",
			checks: map[string]CheckFunc{
				"audio_cache": func(context.Context) error { return errors.New("connection refused") },
				"other":       func(context.Context) error { return nil },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(zap.NewNop())
			for name, fn := range tt.checks {
				handler.RegisterCheck(name, fn)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.wantStatus, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			if tt.wantState == "unhealthy" {
				assert.Equal(t, "fail", status.Checks["audio_cache"].Status)
				assert.Equal(t, "connection refused", status.Checks["audio_cache"].Message)
				assert.Equal(t, "pass", status.Checks["other"].Status)
			}
		})
	}
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(context.Context) error {
		wg.Done()
		wg.Wait()
		return nil
	}
	handler.RegisterCheck("a", barrier)
	handler.RegisterCheck("b", barrier)

	done := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		done <- w.Code
	}()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("checks did not run concurrently")
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.0.0", "2024-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "2024-01-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_RegisterCheck(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck("audio_cache", func(context.Context) error { return nil })

	require.Len(t, handler.checks, 1)
	assert.Equal(t, "audio_cache", handler.checks[0].name)
}

func TestHealthHandler_FailedCheckLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	handler := NewHealthHandler(zap.New(core))
	handler.RegisterCheck("audio_cache", func(context.Context) error { return errors.New("dial tcp: refused") })

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	entries := logs.FilterMessage("readiness check failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audio_cache", entries[0].ContextMap()["check"])
}
