package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/conversation"
	"github.com/BaSui01/voicerelay/types"
)

func uploadRequest(t *testing.T, field string, audio []byte, extra map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, "recording.webm")
		require.NoError(t, err)
		_, err = fw.Write(audio)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/voice-chat", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *ErrorInfo {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestVoiceChat_ReturnsSynthesizedReply(t *testing.T) {
	stt := &fakeSTT{text: "what is the weather"}
	chat := &fakeChat{answers: []string{"It is **sunny**", " today."}, convID: "conv-9"}
	tts := &fakeTTS{}
	h := NewVoiceChatHandler(stt, chat, tts, 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, uploadRequest(t, "file", []byte("webm-bytes"), map[string]string{"conversation_id": "conv-9"}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="audio_[0-9a-f-]{36}\.mp3"$`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "conv-9", w.Header().Get("X-Conversation-ID"))
	assert.Equal(t, "mp3:It is sunny today.", w.Body.String())

	assert.Equal(t, [][]byte{[]byte("webm-bytes")}, stt.calls)
	assert.Equal(t, []string{"what is the weather"}, chat.queries)
	assert.Equal(t, []string{"conv-9"}, chat.requested)
	assert.Equal(t, []string{"It is sunny today."}, tts.texts)
}

func TestVoiceChat_ContentTypeFollowsProviderFormat(t *testing.T) {
	tests := []struct {
		format      string
		contentType string
		ext         string
	}{
		{format: "mp3", contentType: "audio/mpeg", ext: "mp3"},
		{format: "wav", contentType: "audio/wav", ext: "wav"},
		{format: "pcm", contentType: "application/octet-stream", ext: "pcm"},
		{format: "opus", contentType: "audio/ogg", ext: "opus"},
		{format: "ulaw", contentType: "audio/basic", ext: "ulaw"},
		{format: "alaw", contentType: "application/octet-stream", ext: "alaw"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h := NewVoiceChatHandler(&fakeSTT{text: "hi"}, &fakeChat{answers: []string{"Hello."}},
				&fakeTTS{format: tt.format}, 0, zap.NewNop())

			w := httptest.NewRecorder()
			h.ServeHTTP(w, uploadRequest(t, "file", []byte("webm-bytes"), nil))

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.True(t, strings.HasSuffix(w.Header().Get("Content-Disposition"), "."+tt.ext+`"`),
				w.Header().Get("Content-Disposition"))
		})
	}
}

func TestVoiceChat_RequestErrors(t *testing.T) {
	h := NewVoiceChatHandler(&fakeSTT{text: "hi"}, &fakeChat{answers: []string{"ok."}}, &fakeTTS{}, 64, zap.NewNop())

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/voice-chat", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	})

	t.Run("missing file field", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, uploadRequest(t, "", nil, map[string]string{"other": "x"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(types.ErrInvalidRequest), decodeError(t, w).Code)
	})

	t.Run("empty file", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, uploadRequest(t, "file", nil, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("upload too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, uploadRequest(t, "file", bytes.Repeat([]byte("a"), 1024), nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, string(types.ErrPayloadTooBig), decodeError(t, w).Code)
	})
}

func TestVoiceChat_StageFailures(t *testing.T) {
	tests := []struct {
		name     string
		stt      *fakeSTT
		chat     *fakeChat
		tts      *fakeTTS
		wantCode int
		wantErr  types.ErrorCode
		wantMsg  string
	}{
		{
			name:     "transcription fails",
			stt:      &fakeSTT{err: errors.New("whisper down")},
			chat:     &fakeChat{},
			tts:      &fakeTTS{},
			wantCode: http.StatusInternalServerError,
			wantErr:  types.ErrTranscribe,
			wantMsg:  "Failed to transcribe audio",
		},
		{
			name:     "nothing recognized",
			stt:      &fakeSTT{text: ""},
			chat:     &fakeChat{},
			tts:      &fakeTTS{},
			wantCode: http.StatusBadRequest,
			wantErr:  types.ErrInvalidRequest,
		},
		{
			name:     "engine gives no reply",
			stt:      &fakeSTT{text: "hi"},
			chat:     &fakeChat{err: fmt.Errorf("%w: status 500", conversation.ErrNoReply)},
			tts:      &fakeTTS{},
			wantCode: http.StatusInternalServerError,
			wantErr:  types.ErrNoReply,
			wantMsg:  "Failed to get a response",
		},
		{
			name:     "engine unreachable",
			stt:      &fakeSTT{text: "hi"},
			chat:     &fakeChat{err: types.TransportError("conversation", errors.New("refused"))},
			tts:      &fakeTTS{},
			wantCode: http.StatusInternalServerError,
			wantErr:  types.ErrUpstreamError,
		},
		{
			name:     "reply is only markup",
			stt:      &fakeSTT{text: "hi"},
			chat:     &fakeChat{answers: []string{"``"}},
			tts:      &fakeTTS{},
			wantCode: http.StatusInternalServerError,
			wantErr:  types.ErrNoReply,
		},
		{
			name:     "synthesis fails",
			stt:      &fakeSTT{text: "hi"},
			chat:     &fakeChat{answers: []string{"Hello."}},
			tts:      &fakeTTS{err: types.UpstreamError("elevenlabs", 401, "bad key")},
			wantCode: http.StatusInternalServerError,
			wantErr:  types.ErrSynthesize,
			wantMsg:  "Failed to generate audio response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewVoiceChatHandler(tt.stt, tt.chat, tt.tts, 0, nil)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, uploadRequest(t, "file", []byte("audio"), nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
			info := decodeError(t, w)
			assert.Equal(t, string(tt.wantErr), info.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, info.Message)
			}
		})
	}
}
