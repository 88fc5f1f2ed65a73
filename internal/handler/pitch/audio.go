package pitch

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	pitchsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	speechsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/speech"
	"github.com/zhouzirui/pitch-tank/backend/pkg/utils"
)

const maxAudioUpload = 32 << 20

// audioPitchResponse 语音合成失败时返回的文本结果
type audioPitchResponse struct {
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
	Message    string `json:"message"`
	Done       bool   `json:"done"`
	Evaluation string `json:"evaluation,omitempty"`
}

// handleAudioPitch 语音路演：上传音频，返回投资人语音回复
func (h *Handler) handleAudioPitch(w http.ResponseWriter, r *http.Request) {
	if h.voice == nil {
		h.metrics.ObserveAudioPitch("unavailable")
		utils.RespondError(w, http.StatusServiceUnavailable, "speech service unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	format, ok := inferAudioFormat(header.Filename)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unsupported audio format")
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	personaName := r.FormValue("persona")
	voice := strings.TrimSpace(r.FormValue("voice"))
	if voice == "" {
		voice = h.voiceFor(r.Context(), sessionID, personaName)
	}

	out, err := h.voice.Process(r.Context(), &speechsvc.VoicePitchInput{
		SessionID:   sessionID,
		AudioData:   audio,
		AudioFormat: format,
		Language:    r.FormValue("language"),
		Persona:     personaName,
		Voice:       voice,
	})
	if err != nil {
		h.metrics.ObserveAudioPitch(audioOutcome(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError && !errors.Is(err, pitchsvc.ErrPersistence) {
			// 语音识别链路失败
			status = http.StatusBadGateway
		}
		log.Printf("[speech] audio pitch failed for session %s: %v", sessionID, err)
		utils.RespondError(w, status, publicMessage(err))
		return
	}

	w.Header().Set("X-Pitch-Done", strconv.FormatBool(out.Reply.Done))
	if len(out.Audio) == 0 {
		h.metrics.ObserveAudioPitch("text_only")
		utils.RespondJSON(w, http.StatusOK, audioPitchResponse{
			SessionID:  sessionID,
			Transcript: out.Transcript,
			Message:    out.Reply.Message,
			Done:       out.Reply.Done,
			Evaluation: out.Reply.Evaluation,
		})
		return
	}

	h.metrics.ObserveAudioPitch("ok")
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Audio); err != nil {
		log.Printf("[speech] failed to write audio for session %s: %v", sessionID, err)
	}
}

// handleResetAudioSession 表单版重置
func (h *Handler) handleResetAudioSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	h.reset(r.Context(), w, r.FormValue("session_id"), r.FormValue("persona"))
}

// voiceFor 选择投资人音色：已有会话以创建时的角色为准，未知角色回退到默认投资人
func (h *Handler) voiceFor(ctx context.Context, sessionID, requested string) string {
	if h.personas == nil {
		return ""
	}
	name := requested
	if sess, err := h.engine.Transcript(ctx, sessionID); err == nil && sess.Persona != "" {
		name = sess.Persona
	}
	p, ok := h.personas.FindByName(name)
	if !ok {
		p, ok = h.personas.FindByName(persona.DefaultName)
	}
	if !ok {
		return ""
	}
	return p.VoiceID
}

func audioOutcome(err error) string {
	switch {
	case errors.Is(err, speechsvc.ErrEmptyTranscript):
		return "empty_transcript"
	case errors.Is(err, speechsvc.ErrNotConfigured):
		return "unavailable"
	default:
		return "error"
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) (string, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3", true
	case ".wav":
		return "wav", true
	case ".webm":
		return "webm", true
	case ".m4a":
		return "m4a", true
	default:
		return "", false
	}
}
