package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/voicerelay/config"
)

func TestRunHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{name: "healthy", args: []string{"--addr", srv.URL}, wantCode: 0, wantOut: "OK"},
		{name: "not ready", args: []string{"--addr", srv.URL, "--ready"}, wantCode: 1, wantErr: "/ready returned 503"},
		{name: "unreachable", args: []string{"--addr", "http://127.0.0.1:1", "--timeout", "200ms"}, wantCode: 1, wantErr: "health check failed"},
		{name: "bad flag", args: []string{"--nope"}, wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runHealthCheck(tt.args, &stdout, &stderr)

			assert.Equal(t, tt.wantCode, code)
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, strings.TrimSpace(stdout.String()))
			}
			if tt.wantErr != "" {
				assert.Contains(t, stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	assert.Zero(t, runVersion(nil, &stdout, nil))
	assert.Contains(t, stdout.String(), "VoiceRelay "+Version)
}

func TestPrintUsageListsCommands(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	for name, cmd := range commands {
		assert.Contains(t, out.String(), name)
		assert.Contains(t, out.String(), cmd.summary)
	}
}

func TestInitLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"", zapcore.InfoLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LogConfig{Level: tt.level, Format: "json"})
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}
