package relay

// 入站控制消息类型
const (
	controlStart   = "start"
	controlDone    = "done"
	controlCleanup = "cleanup"
)

// 出站消息类型
const (
	MsgTranscript   = "transcript"
	MsgResponse     = "response"
	MsgGreeting     = "greeting"
	MsgGreetingEnd  = "greeting_end"
	MsgAgentIdle    = "agent_idle"
	MsgUserSpeaking = "user_speaking"
	MsgInterrupted  = "interrupted"
	MsgError        = "error"
)

// 客户端可见的错误提示
const (
	noticeProcessFailed    = "Failed to process audio"
	noticeSynthesizeFailed = "Failed to synthesize audio"
	noticeReplyFailed      = "Failed to get a response"
)

// DefaultGreeting 是 start 帧未携带 message 时使用的问候语
const DefaultGreeting = "Hi, this is your agent. How can I help you today?"

type controlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Message 出站 JSON 消息
type Message struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}
