package pitch

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket 处理 WebSocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	personaName := r.URL.Query().Get("persona")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	client := &wsClient{conn: conn}
	h.conns.Add(sessionID, client)
	h.metrics.WSConnected()
	log.Printf("[websocket] new connection for session: %s", sessionID)

	defer func() {
		h.conns.Remove(sessionID, client)
		h.metrics.WSDisconnected()
		conn.Close()
		log.Printf("[websocket] connection closed for session: %s", sessionID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, client)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		h.metrics.ObserveWSMessage("in", inboundLabel(msg.Type))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(client, sessionID, "session mismatch")
		} else {
			h.dispatch(ctx, client, sessionID, personaName, &msg)
		}
		// dispatch 可能阻塞到模型超时，处理完再续期
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

// inboundLabel 将客户端消息类型收敛到 text、reset、unknown
func inboundLabel(msgType string) string {
	switch msgType {
	case "text", "reset":
		return msgType
	default:
		return "unknown"
	}
}

func (h *Handler) dispatch(ctx context.Context, client *wsClient, sessionID, personaName string, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(client, sessionID, "invalid text payload")
			return
		}
		reply, err := h.engine.Send(ctx, sessionID, text.Text, personaName)
		if err != nil {
			h.sendError(client, sessionID, publicMessage(err))
			return
		}
		h.send(client, sessionID, "result", reply)

	case "reset":
		message, err := h.engine.Reset(ctx, sessionID, personaName)
		if err != nil {
			h.sendError(client, sessionID, publicMessage(err))
			return
		}
		h.send(client, sessionID, "reset", resetResponse{Message: message})

	default:
		h.sendError(client, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) send(client *wsClient, sessionID, kind string, data any) {
	h.metrics.ObserveWSMessage("out", kind)
	err := client.writeJSON(outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("[websocket] write failed for session %s: %v", sessionID, err)
	}
}

func (h *Handler) sendError(client *wsClient, sessionID, message string) {
	h.send(client, sessionID, "error", map[string]string{"error": message})
}

func (h *Handler) pingLoop(ctx context.Context, client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				client.conn.Close()
				return
			}
		}
	}
}
