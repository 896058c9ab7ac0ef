package relay

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session 表示一条已接入的语音连接：一个下游客户端配对一个上游会话。
// 会话状态只属于当前连接，连接关闭后不保留任何内容。
type Session struct {
	ID string

	// Downstream 指向客户端侧连接。Upstream 在上游建立前为 nil。
	Downstream *websocket.Conn
	Upstream   *UpstreamClient

	mu         sync.Mutex
	configured bool
	transcript strings.Builder
}

// NewSession 为一条新接入的下游连接创建会话。
func NewSession(downstream *websocket.Conn) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Downstream: downstream,
	}
}

// BindUpstream 记录已建立的上游连接。
func (s *Session) BindUpstream(up *UpstreamClient) {
	s.Upstream = up
}

// MarkConfigured 执行一次性的 configured 置位，只有第一次调用返回 true。
// 重复的 session.created 事件因此不会触发第二次配置下发。
func (s *Session) MarkConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return false
	}
	s.configured = true
	return true
}

// Configured 返回是否已发送过会话配置。
func (s *Session) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// AppendTranscript 累积上游的转写增量。
func (s *Session) AppendTranscript(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript.WriteString(fragment)
}

// FlushTranscript 返回累积的转写文本并清空缓冲。
func (s *Session) FlushTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.transcript.String()
	s.transcript.Reset()
	return text
}
