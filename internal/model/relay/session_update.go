package relay

import "encoding/json"

// SessionSettings 是一次性会话配置文档的内容，对应上游的 session.update。
type SessionSettings struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions"`
	Voice                   string              `json:"voice"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *AudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	Temperature             float64             `json:"temperature,omitempty"`
	MaxResponseOutputTokens int                 `json:"max_response_output_tokens,omitempty"`
}

// AudioTranscription 指定输入音频的转写模型。
type AudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection 服务端VAD参数。
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// sessionUpdateEvent 包装配置文档为上游信封。
type sessionUpdateEvent struct {
	Type    EventType       `json:"type"`
	Session SessionSettings `json:"session"`
}

// SessionUpdate 构造发往上游的一次性配置帧。每个会话最多发送一次。
func SessionUpdate(settings SessionSettings) ([]byte, error) {
	return json.Marshal(sessionUpdateEvent{Type: EventSessionUpdate, Session: settings})
}
