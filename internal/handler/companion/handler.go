package companion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/pkg/utils"
)

// CompanionService 抽象陪伴聊天业务，便于测试与替换实现。
type CompanionService interface {
	StreamingEnabled() bool
	Respond(ctx context.Context, message string) (*schema.Message, error)
	Stream(ctx context.Context, message string) (*schema.StreamReader[*schema.Message], error)
}

// Handler 陪伴聊天的HTTP处理器
type Handler struct {
	svc CompanionService
}

// New 创建陪伴聊天处理器
func New(svc CompanionService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册陪伴聊天相关的路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/companion/chat", h.handleChat)
	r.Get("/companion/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk.
type StreamResponse struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleChat 对单条消息返回一条完整回复。无会话、无历史。
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	response, err := h.svc.Respond(r.Context(), payload.Message)
	if err != nil {
		log.Printf("[companion] generation failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "generation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"reply": response.Content})
}

// handleStream 以SSE流式返回回复。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start"})

	if err := h.dispatchResponse(r.Context(), w, flusher, message); err != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", Error: err.Error()})
		return
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "end", Finished: true})
}

func (h *Handler) dispatchResponse(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, message string) error {
	if !h.svc.StreamingEnabled() {
		response, err := h.svc.Respond(ctx, message)
		if err != nil {
			return err
		}
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", Content: response.Content})
		return nil
	}

	stream, err := h.svc.Stream(ctx, message)
	if err != nil {
		return err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamResponse{Event: "delta", Content: chunk.Content})
		}
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", Content: merged.Content})
	return nil
}
