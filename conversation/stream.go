package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/BaSui01/voicerelay/types"
)

const (
	readBufferSize = 64 * 1024
	// maxLineSize 单行 SSE 数据上限，超出的行按格式错误跳过
	maxLineSize = 1024 * 1024
)

// record 是 SSE data 行中的 JSON 载荷
type record struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Status         int    `json:"status"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// Stream 惰性读取的回复流，非并发安全
type Stream struct {
	ctx         context.Context
	body        io.ReadCloser
	reader      *bufio.Reader
	requestedID string
	resolvedID  string
	err         error
	done        bool
	closeOnce   sync.Once
}

// NewStream 包装一个已经成功建立的 SSE 响应体
func NewStream(body io.ReadCloser, requestedID string) *Stream {
	return newStream(context.Background(), body, requestedID)
}

func newStream(ctx context.Context, body io.ReadCloser, requestedID string) *Stream {
	return &Stream{
		ctx:         ctx,
		body:        body,
		reader:      bufio.NewReaderSize(body, readBufferSize),
		requestedID: requestedID,
	}
}

// Next 返回下一个回复片段。流结束或出错时返回 false，之后通过 Err 查看原因。
func (s *Stream) Next() (string, bool) {
	for !s.done {
		line, err := s.readLine()
		if err != nil {
			s.finish(s.readError(err))
		}

		token, ok := s.parse(line)
		if ok {
			return token, true
		}
	}
	return "", false
}

// Err 返回导致流提前结束的错误，正常结束时为 nil
func (s *Stream) Err() error { return s.err }

// ConversationID 仅在请求未携带会话 ID 时返回引擎分配的 ID
func (s *Stream) ConversationID() string {
	if s.requestedID != "" {
		return ""
	}
	return s.resolvedID
}

// Close 释放响应体，可重复调用
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		err = s.body.Close()
	})
	return err
}

func (s *Stream) finish(err error) {
	if s.err == nil {
		s.err = err
	}
	_ = s.Close()
}

func (s *Stream) readError(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return types.TransportError(providerName, err)
}

// readLine 读取一整行。超过 maxLineSize 的行被读完丢弃，返回空串。
func (s *Stream) readLine() (string, error) {
	var (
		buf       []byte
		oversized bool
	)
	for {
		frag, err := s.reader.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(frag) > maxLineSize {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), err
	}
}

// parse 解析一行 SSE 数据。格式错误或不完整的记录直接跳过。
func (s *Stream) parse(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return "", false
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", false
	}

	if rec.Event == "error" {
		msg := rec.Message
		if msg == "" {
			msg = rec.Code
		}
		status := rec.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		s.finish(types.UpstreamError(providerName, status, msg))
		return "", false
	}

	if rec.ConversationID != "" && s.resolvedID == "" {
		s.resolvedID = rec.ConversationID
	}
	if rec.Answer == "" {
		return "", false
	}
	return rec.Answer, true
}

// Reply 是一次完整的回复
type Reply struct {
	Text           string
	ConversationID string
}

// Collect 读完整个流并拼接回复文本，结束后关闭流
func Collect(stream *Stream) (Reply, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		token, ok := stream.Next()
		if !ok {
			break
		}
		sb.WriteString(token)
	}

	return Reply{Text: sb.String(), ConversationID: stream.ConversationID()}, stream.Err()
}
