package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 会话状态
type State string

const (
	StateIdle          State = "idle"
	StateUserSpeaking  State = "user_speaking"
	StateAgentSpeaking State = "agent_speaking"
	StateInterrupted   State = "interrupted"
)

// speakTask 是正在朗读回复的子任务
type speakTask struct {
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Session 单个连接的会话状态
type Session struct {
	ID        string
	StartedAt time.Time

	relay  *Relay
	conn   Conn
	logger *zap.Logger

	// 仅接收循环访问
	greeted     bool
	lastAudioAt time.Time

	// mu 保护以下字段，朗读子任务同样会访问
	mu             sync.Mutex
	audio          [][]byte
	state          State
	interrupted    bool
	conversationID string
	task           *speakTask
}

func newSession(id string, r *Relay, conn Conn) *Session {
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		relay:     r,
		conn:      conn,
		logger:    r.logger.With(zap.String("session_id", id)),
		state:     StateIdle,
	}
}

// State 返回当前状态，idle 且缓冲区非空时为 user_speaking
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle && len(s.audio) > 0 {
		return StateUserSpeaking
	}
	return s.state
}

// ConversationID 返回当前会话 ID，首次对话成功前为空
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// adoptConversationID 只在尚未设置时采用 id
func (s *Session) adoptConversationID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		s.conversationID = id
		s.logger.Debug("conversation id adopted", zap.String("conversation_id", id))
	}
}

func (s *Session) appendAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	s.audio = append(s.audio, chunk)
	s.mu.Unlock()

	s.lastAudioAt = time.Now()
	s.relay.deps.Metrics.RecordAudioBytes("inbound", len(chunk))
}

func (s *Session) hasAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio) > 0
}

// drainAudio 取出并清空缓冲区
func (s *Session) drainAudio() []byte {
	s.mu.Lock()
	chunks := s.audio
	s.audio = nil
	s.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}
	return bytes.Join(chunks, nil)
}

func (s *Session) isInterrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

func (s *Session) speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAgentSpeaking
}

// =============================================================================
// 控制帧
// =============================================================================

// handleControl 处理文本控制帧，返回 true 表示会话应结束
func (s *Session) handleControl(ctx context.Context, data []byte) bool {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("ignoring malformed control frame", zap.Error(err))
		return false
	}

	switch msg.Type {
	case controlStart:
		s.greet(ctx, msg.Message)
	case controlDone:
		s.onDone(ctx)
	case controlCleanup:
		s.logger.Info("cleanup requested")
		s.stopSpeaking()
		return true
	default:
		s.logger.Debug("ignoring unknown control type", zap.String("type", msg.Type))
	}
	return false
}

// greet 发送问候语及其音频，每个会话只执行一次
func (s *Session) greet(ctx context.Context, message string) {
	if s.greeted {
		s.logger.Debug("ignoring repeated start")
		return
	}
	s.greeted = true

	text := strings.TrimSpace(message)
	if text == "" {
		text = s.relay.cfg.Greeting
	}

	if err := s.send(ctx, Message{Type: MsgGreeting, Text: text}); err != nil {
		return
	}
	if err := s.synthesize(ctx, text); err != nil && ctx.Err() == nil {
		s.logger.Warn("greeting synthesis failed", zap.Error(err))
		_ = s.send(ctx, Message{Type: MsgError, Message: noticeSynthesizeFailed})
	}
	_ = s.send(ctx, Message{Type: MsgGreetingEnd})
	_ = s.send(ctx, Message{Type: MsgUserSpeaking})
}

// onDone 用户说完：先打断正在朗读的回复，再处理缓冲的音频
func (s *Session) onDone(ctx context.Context) {
	s.interrupt(ctx)
	s.awaitTask()
	s.runPipeline(ctx)
}

// onSilence 静音超时：朗读中则保留缓冲区，留待下一次超时处理
func (s *Session) onSilence(ctx context.Context) {
	if !s.hasAudio() {
		return
	}
	s.logger.Debug("silence timeout", zap.Duration("since_last_audio", time.Since(s.lastAudioAt)))
	if s.speaking() {
		s.logger.Debug("agent speaking, deferring buffered audio")
		return
	}
	s.awaitTask()
	s.runPipeline(ctx)
}

// interrupt 取消正在朗读的子任务并等待其退出
func (s *Session) interrupt(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateAgentSpeaking || s.task == nil {
		s.mu.Unlock()
		return
	}
	s.interrupted = true
	s.state = StateInterrupted
	task := s.task
	s.mu.Unlock()

	task.cancel()
	<-task.done

	s.relay.deps.Metrics.RecordInterruption()
	s.logger.Info("agent interrupted")

	_ = s.send(ctx, Message{Type: MsgInterrupted})
	_ = s.send(ctx, Message{Type: MsgAgentIdle})

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}

// awaitTask 等待已结束或正在结束的子任务
func (s *Session) awaitTask() {
	s.mu.Lock()
	task := s.task
	s.task = nil
	s.mu.Unlock()

	if task != nil {
		<-task.done
	}
}

// stopSpeaking 取消并等待子任务，之后不再发送任何消息
func (s *Session) stopSpeaking() {
	s.mu.Lock()
	task := s.task
	s.task = nil
	if task != nil {
		s.interrupted = true
	}
	s.mu.Unlock()

	if task != nil {
		task.cancel()
		<-task.done
	}
}

func (s *Session) send(ctx context.Context, msg Message) error {
	if err := s.conn.SendJSON(ctx, msg); err != nil {
		s.logger.Debug("send failed", zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	return nil
}
