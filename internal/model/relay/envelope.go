// Package relay defines the JSON message envelopes exchanged on both sides of
// the realtime voice relay. Frames are relayed verbatim; the typed view exists
// so the bridge can recognize the handful of lifecycle events it reacts to.
package relay

import "encoding/json"

// EventType 标识信封的事件类型。
type EventType string

// 已知的事件类型。未列出的类型仍会原样转发。
const (
	// 上游生命周期
	EventSessionCreated EventType = "session.created"
	EventSessionUpdate  EventType = "session.update"

	// 客户端 → 中继 → 上游
	EventInputAudioAppend EventType = "input_audio_buffer.append"

	// 上游 → 中继 → 客户端
	EventSpeechStarted           EventType = "input_audio_buffer.speech_started"
	EventSpeechStopped           EventType = "input_audio_buffer.speech_stopped"
	EventResponseAudioDelta      EventType = "response.audio.delta"
	EventResponseAudioDone       EventType = "response.audio.done"
	EventResponseTranscriptDelta EventType = "response.audio_transcript.delta"
	EventResponseTranscriptDone  EventType = "response.audio_transcript.done"
	EventError                   EventType = "error"

	// EventGeneric 表示无法识别类型的帧，仅作透传。
	EventGeneric EventType = ""
)

// ErrorDetail 错误信封携带的信息。
type ErrorDetail struct {
	Message string `json:"message"`
}

// Envelope 是一条不可变的带类型消息。raw 保存原始帧，转发时原样使用，
// 解析出的字段只用于桥接器识别生命周期事件。
type Envelope struct {
	Type       EventType    `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`

	raw []byte
}

// ParseEnvelope 从原始帧构建信封。非JSON或无类型的帧返回通用信封，
// 从不阻止转发。
func ParseEnvelope(raw []byte) Envelope {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		env = Envelope{Type: EventGeneric}
	}
	env.raw = raw
	return env
}

// Raw 返回未经修改的原始帧。
func (e Envelope) Raw() []byte {
	return e.raw
}

// errorEvent 是发往下游的错误帧的完整形状。
type errorEvent struct {
	Type  EventType   `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorEnvelope 构造发往下游的错误帧。
func ErrorEnvelope(message string) []byte {
	raw, err := json.Marshal(errorEvent{Type: EventError, Error: ErrorDetail{Message: message}})
	if err != nil {
		// 形状固定，不会走到这里。
		return []byte(`{"type":"error","error":{"message":"internal error"}}`)
	}
	return raw
}
