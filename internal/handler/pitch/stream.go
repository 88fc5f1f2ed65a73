package pitch

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pitch-tank/backend/pkg/utils"
)

// StreamResponse SSE 数据块
type StreamResponse struct {
	Event      string `json:"event"`
	SessionID  string `json:"sessionId,omitempty"`
	Content    string `json:"content,omitempty"`
	Evaluation string `json:"evaluation,omitempty"`
	Finished   bool   `json:"finished,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleStream 执行一次对话推进，依次推送 start、message 或 evaluation、end 事件
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	reply, err := h.engine.Send(r.Context(), sessionID, message, r.URL.Query().Get("persona"))
	if err != nil {
		log.Printf("[stream] session=%s failed: %v", sessionID, err)
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "error",
			SessionID: sessionID,
			Error:     publicMessage(err),
		})
		return
	}

	event := "message"
	if reply.Evaluation != "" {
		event = "evaluation"
	}
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:      event,
		SessionID:  sessionID,
		Content:    reply.Message,
		Evaluation: reply.Evaluation,
		Finished:   reply.Done,
	})
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
}
