package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/config"
	relaymodel "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/model/relay"
)

var (
	// ErrMissingAPIKey 上游密钥缺失。必须在任何连接动作之前暴露。
	ErrMissingAPIKey = errors.New("relay: missing realtime API key")
	// ErrNotConnected 尚未建立上游连接。
	ErrNotConnected = errors.New("relay: upstream not connected")
)

// Dialer 抽象上游 WebSocket 建连，便于测试注入假实现。
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// UpstreamClient 持有到第三方实时语音模型的出站连接，
// 负责认证建连与一次性的会话配置下发。
type UpstreamClient struct {
	cfg    config.RealtimeConfig
	dialer Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewUpstreamClient 创建上游客户端。密钥缺失时立即失败，不会尝试建连。
// dialer 为 nil 时使用默认 gorilla Dialer。
func NewUpstreamClient(cfg config.RealtimeConfig, dialer Dialer) (*UpstreamClient, error) {
	if !cfg.Enabled() {
		return nil, ErrMissingAPIKey
	}

	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}

	return &UpstreamClient{cfg: cfg, dialer: dialer}, nil
}

// Connect 建立带认证头的上游连接。
func (c *UpstreamClient) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.SessionURL(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to realtime upstream: %w", err)
	}

	c.conn = conn
	return nil
}

// ReadMessage 读取上游的下一帧。
func (c *UpstreamClient) ReadMessage() ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}

// Send 将原始帧原样写入上游。写入方可能来自两个方向的泵，需串行化。
func (c *UpstreamClient) Send(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Configure 下发一次性的 session.update 配置帧。调用方负责 configured 保护。
func (c *UpstreamClient) Configure() error {
	raw, err := relaymodel.SessionUpdate(relaymodel.SessionSettings{
		Modalities:        []string{"text", "audio"},
		Instructions:      c.cfg.Instructions,
		Voice:             c.cfg.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &relaymodel.AudioTranscription{
			Model: "whisper-1",
		},
		TurnDetection: &relaymodel.TurnDetection{
			Type:              "server_vad",
			Threshold:         c.cfg.VADThreshold,
			PrefixPaddingMS:   c.cfg.VADPrefixPaddingMS,
			SilenceDurationMS: c.cfg.VADSilenceDurationMS,
		},
		Temperature:             c.cfg.Temperature,
		MaxResponseOutputTokens: c.cfg.MaxOutputTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to build session configuration: %w", err)
	}

	return c.Send(raw)
}

// Close 关闭上游连接。重复关闭是无害的空操作。
func (c *UpstreamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
