// Package pitch 通过 HTTP、SSE 与 websocket 暴露路演对话
package pitch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/observability"
	pitchsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/speech"
	"github.com/zhouzirui/pitch-tank/backend/pkg/utils"
)

// Engine 对话状态机
type Engine interface {
	Send(ctx context.Context, sessionID, message, personaName string) (pitchsvc.Reply, error)
	Reset(ctx context.Context, sessionID, personaName string) (string, error)
	Transcript(ctx context.Context, sessionID string) (conversation.Session, error)
}

// VoicePipeline 语音路演链
type VoicePipeline interface {
	Process(ctx context.Context, input *speechsvc.VoicePitchInput) (*speechsvc.VoicePitchOutput, error)
}

// Handler 路演会话网关
type Handler struct {
	engine   Engine
	voice    VoicePipeline
	personas persona.Store
	metrics  *observability.Metrics
	conns    *ConnectionManager

	readTimeout time.Duration
}

// New 创建路演处理器；voice 为 nil 时语音接口返回 503，personas 用于选择投资人音色
func New(engine Engine, voice VoicePipeline, personas persona.Store, metrics *observability.Metrics) *Handler {
	return &Handler{
		engine:   engine,
		voice:    voice,
		personas: personas,
		metrics:  metrics,
		conns:    NewConnectionManager(),

		readTimeout: wsReadTimeout,
	}
}

// RegisterRoutes 注册 /vc 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vc", func(vc chi.Router) {
		vc.Post("/message", h.handleMessage)
		vc.Post("/reset", h.handleReset)
		vc.Get("/sessions/{sessionID}", h.handleTranscript)
		vc.Get("/stream/{sessionID}", h.handleStream)
		vc.Get("/ws/{sessionID}", h.handleWebSocket)
		vc.Post("/audio-pitch", h.handleAudioPitch)
		vc.Post("/reset-audio-session", h.handleResetAudioSession)
	})
}

// Close 关闭所有 websocket 连接
func (h *Handler) Close() {
	h.conns.CloseAll()
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Persona   string `json:"persona,omitempty"`
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
	Persona   string `json:"persona,omitempty"`
}

type resetResponse struct {
	Message string `json:"message"`
}

type transcriptResponse struct {
	SessionID string              `json:"sessionId"`
	Persona   string              `json:"persona"`
	Status    conversation.Status `json:"status"`
	Turns     []conversation.Turn `json:"turns"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.engine.Send(r.Context(), strings.TrimSpace(req.SessionID), req.Message, req.Persona)
	if err != nil {
		h.respondEngineError(w, "message", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.reset(r.Context(), w, req.SessionID, req.Persona)
}

func (h *Handler) reset(ctx context.Context, w http.ResponseWriter, sessionID, personaName string) {
	msg, err := h.engine.Reset(ctx, strings.TrimSpace(sessionID), personaName)
	if err != nil {
		h.respondEngineError(w, "reset", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, resetResponse{Message: msg})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Transcript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondEngineError(w, "transcript", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcriptResponse{
		SessionID: sess.ID,
		Persona:   sess.Persona,
		Status:    sess.Status,
		Turns:     sess.Turns,
	})
}

func (h *Handler) respondEngineError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[pitch] %s failed: %v", op, err)
	}
	utils.RespondError(w, status, publicMessage(err))
}

// statusFor 将错误类型映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, pitchsvc.ErrInvalidInput), errors.Is(err, speechsvc.ErrEmptyTranscript):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pitchsvc.ErrProviderFailure):
		return http.StatusBadGateway
	case errors.Is(err, speechsvc.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, pitchsvc.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, speechsvc.ErrEmptyTranscript):
		return "no speech detected in audio"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, pitchsvc.ErrProviderFailure):
		return "investor is unavailable, please retry"
	case errors.Is(err, speechsvc.ErrNotConfigured):
		return "speech service unavailable"
	case errors.Is(err, pitchsvc.ErrPersistence):
		return "failed to save session"
	default:
		return "internal error"
	}
}
