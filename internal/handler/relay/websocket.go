// Package relay exposes the voice relay's connection entry point.
package relay

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/config"
	relaymodel "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/model/relay"
	relayservice "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/service/relay"
	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/pkg/utils"
)

// Handler 语音中继的连接入口：每接受一条升级请求，建立恰好一个会话
// 与一座桥。
type Handler struct {
	cfg      config.RealtimeConfig
	dialer   relayservice.Dialer
	upgrader websocket.Upgrader
}

// New 创建中继入口处理器。
func New(cfg config.RealtimeConfig) *Handler {
	return NewWithDialer(cfg, nil)
}

// NewWithDialer 允许注入上游Dialer，测试用。
func NewWithDialer(cfg config.RealtimeConfig, dialer relayservice.Dialer) *Handler {
	return &Handler{
		cfg:    cfg,
		dialer: dialer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册语音中继路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/relay/voice", h.handleVoice)
}

// handleVoice 处理一次连接升级请求。升级成功后，上游建连与桥接
// 相对于HTTP响应异步进行，不阻塞入口。
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	// 凭证缺失必须在任何升级或建连动作之前显式失败。
	if !h.cfg.Enabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime speech credential is not configured")
		return
	}

	if !isWebSocketUpgrade(r) {
		utils.RespondError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}

	session := relayservice.NewSession(conn)
	log.Printf("[relay] new voice connection session=%s", session.ID)

	go h.runSession(session)
}

// runSession 建立上游连接并驱动桥接，直至任一侧结束。
func (h *Handler) runSession(session *relayservice.Session) {
	up, err := relayservice.NewUpstreamClient(h.cfg, h.dialer)
	if err != nil {
		h.rejectDownstream(session, "realtime speech credential is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandshakeTimeout)
	defer cancel()

	if err := up.Connect(ctx); err != nil {
		log.Printf("[relay] session=%s upstream connect failed: %v", session.ID, err)
		h.rejectDownstream(session, "failed to reach speech service")
		return
	}

	bridge := relayservice.NewBridge(session, up, h.cfg.ReadyTimeout)
	bridge.Run()
}

// rejectDownstream 在上游不可用时通知客户端并关闭下游连接。
func (h *Handler) rejectDownstream(session *relayservice.Session, message string) {
	if err := session.Downstream.WriteMessage(websocket.TextMessage, relaymodel.ErrorEnvelope(message)); err != nil {
		log.Printf("[relay] session=%s failed to deliver error envelope: %v", session.ID, err)
	}
	_ = session.Downstream.Close()
}

// isWebSocketUpgrade 判断请求是否携带WebSocket升级握手头。
func isWebSocketUpgrade(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		headerContainsToken(r.Header, "Upgrade", "websocket")
}

func headerContainsToken(header http.Header, name, token string) bool {
	for _, value := range header.Values(name) {
		for _, field := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(field), token) {
				return true
			}
		}
	}
	return false
}
