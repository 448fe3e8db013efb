package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voicerelay/conversation"
	"github.com/BaSui01/voicerelay/textproc"
	"github.com/BaSui01/voicerelay/types"
)

// =============================================================================
// 🔁 POST /api/voice-chat 一次性语音对话
// =============================================================================

// SpeechToText 把完整音频转为文本
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ReplyOpener 打开对话回复流
type ReplyOpener interface {
	Open(ctx context.Context, query, conversationID string) (*conversation.Stream, error)
}

// AudioSynthesizer 一次性合成整段文本，Format 返回服务商报告的容器格式
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Format() string
}

// audioMedia 容器格式对应的 Content-Type 与文件扩展名
var audioMedia = map[string]struct{ contentType, ext string }{
	"mp3":  {"audio/mpeg", "mp3"},
	"wav":  {"audio/wav", "wav"},
	"opus": {"audio/ogg", "opus"},
	"aac":  {"audio/aac", "aac"},
	"flac": {"audio/flac", "flac"},
	"ulaw": {"audio/basic", "ulaw"},
	"pcm":  {"application/octet-stream", "pcm"},
}

func mediaFor(format string) (contentType, ext string) {
	if m, ok := audioMedia[format]; ok {
		return m.contentType, m.ext
	}
	if format == "" {
		format = "bin"
	}
	return "application/octet-stream", format
}

// VoiceChatHandler 转写上传音频 → 取完整回复 → 清洗 → 整段合成，返回音频文件
type VoiceChatHandler struct {
	stt       SpeechToText
	chat      ReplyOpener
	tts       AudioSynthesizer
	maxUpload int64
	logger    *zap.Logger
}

// NewVoiceChatHandler 创建处理器，maxUpload <= 0 时不限制上传大小
func NewVoiceChatHandler(stt SpeechToText, chat ReplyOpener, tts AudioSynthesizer, maxUpload int64, logger *zap.Logger) *VoiceChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceChatHandler{
		stt:       stt,
		chat:      chat,
		tts:       tts,
		maxUpload: maxUpload,
		logger:    logger.With(zap.String("component", "voice_chat")),
	}
}

// ServeHTTP 处理 multipart 字段 file，可选字段 conversation_id 延续已有会话
func (h *VoiceChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	audio, apiErr := h.readUpload(w, r)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	ctx := r.Context()

	transcript, err := h.stt.Transcribe(ctx, audio)
	if err != nil {
		WriteError(w, types.NewError(types.ErrTranscribe, "Failed to transcribe audio").
			WithCause(err).
			WithHTTPStatus(http.StatusInternalServerError), h.logger)
		return
	}
	if transcript == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "no speech recognized", h.logger)
		return
	}

	stream, err := h.chat.Open(ctx, transcript, r.FormValue("conversation_id"))
	if err != nil {
		h.writeReplyError(w, err)
		return
	}
	reply, err := conversation.Collect(stream)
	if err != nil {
		h.writeReplyError(w, err)
		return
	}

	speakable := textproc.Sanitize(reply.Text)
	if strings.TrimSpace(speakable) == "" {
		WriteError(w, types.NewError(types.ErrNoReply, "Failed to get a response").
			WithHTTPStatus(http.StatusInternalServerError), h.logger)
		return
	}

	audioOut, err := h.tts.Synthesize(ctx, speakable)
	if err != nil {
		WriteError(w, types.NewError(types.ErrSynthesize, "Failed to generate audio response").
			WithCause(err).
			WithHTTPStatus(http.StatusInternalServerError), h.logger)
		return
	}

	contentType, ext := mediaFor(h.tts.Format())
	filename := fmt.Sprintf("audio_%s.%s", uuid.NewString(), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if reply.ConversationID != "" {
		w.Header().Set("X-Conversation-ID", reply.ConversationID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audioOut); err != nil {
		h.logger.Debug("failed to write audio response", zap.Error(err))
	}
}

func (h *VoiceChatHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, *types.Error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, types.NewError(types.ErrPayloadTooBig, "audio upload too large").WithCause(err)
		}
		return nil, types.NewError(types.ErrInvalidRequest, "multipart field \"file\" is required").WithCause(err)
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read audio upload").WithCause(err)
	}
	if len(audio) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "audio upload is empty")
	}
	return audio, nil
}

func (h *VoiceChatHandler) writeReplyError(w http.ResponseWriter, err error) {
	code := types.ErrUpstreamError
	if errors.Is(err, conversation.ErrNoReply) {
		code = types.ErrNoReply
	}
	WriteError(w, types.NewError(code, "Failed to get a response").
		WithCause(err).
		WithHTTPStatus(http.StatusInternalServerError), h.logger)
}
