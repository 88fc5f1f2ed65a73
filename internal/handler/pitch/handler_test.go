package pitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	pitchsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/speech"
)

type fakeEngine struct {
	mu        sync.Mutex
	reply     pitchsvc.Reply
	err       error
	sessions  map[string]conversation.Session
	lastID    string
	lastMsg   string
	lastPers  string
	resetErr  error
	resetCall int
	delay     time.Duration
}

func (f *fakeEngine) Send(_ context.Context, sessionID, message, personaName string) (pitchsvc.Reply, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastID, f.lastMsg, f.lastPers = sessionID, message, personaName
	if sessionID == "" || strings.TrimSpace(message) == "" {
		return pitchsvc.Reply{}, fmt.Errorf("%w: message is required", pitchsvc.ErrInvalidInput)
	}
	return f.reply, f.err
}

func (f *fakeEngine) Reset(_ context.Context, sessionID, personaName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCall++
	f.lastID, f.lastPers = sessionID, personaName
	if f.resetErr != nil {
		return "", f.resetErr
	}
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is required", pitchsvc.ErrInvalidInput)
	}
	return fmt.Sprintf("Session '%s' reset.", sessionID), nil
}

func (f *fakeEngine) Transcript(_ context.Context, sessionID string) (conversation.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return conversation.Session{}, session.ErrSessionNotFound
	}
	return sess, nil
}

type fakeVoice struct {
	out   *speechsvc.VoicePitchOutput
	err   error
	input *speechsvc.VoicePitchInput
}

func (f *fakeVoice) Process(_ context.Context, input *speechsvc.VoicePitchInput) (*speechsvc.VoicePitchOutput, error) {
	f.input = input
	return f.out, f.err
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessage(t *testing.T) {
	engine := &fakeEngine{reply: pitchsvc.Reply{Message: "What is your burn rate?"}}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := postJSON(t, router, "/vc/message", messageRequest{SessionID: " s1 ", Message: "We build robots", Persona: "Shark"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	var reply pitchsvc.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Message != "What is your burn rate?" || reply.Done {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if engine.lastID != "s1" || engine.lastPers != "Shark" {
		t.Fatalf("engine got id=%q persona=%q", engine.lastID, engine.lastPers)
	}
	if strings.Contains(rec.Body.String(), "evaluation") {
		t.Fatalf("evaluation should be omitted: %s", rec.Body)
	}
}

func TestHandleMessageErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   messageRequest
		status int
	}{
		{"invalid input", nil, messageRequest{SessionID: "s1"}, http.StatusBadRequest},
		{"provider failure", fmt.Errorf("%w: timeout", pitchsvc.ErrProviderFailure), messageRequest{SessionID: "s1", Message: "hi"}, http.StatusBadGateway},
		{"persistence failure", fmt.Errorf("%w: disk full", pitchsvc.ErrPersistence), messageRequest{SessionID: "s1", Message: "hi"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(New(&fakeEngine{err: tc.err}, nil, nil, nil))
			rec := postJSON(t, router, "/vc/message", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected error body, got %s", rec.Body)
			}
		})
	}
}

func TestHandleMessageMalformedBody(t *testing.T) {
	router := newTestRouter(New(&fakeEngine{}, nil, nil, nil))
	req := httptest.NewRequest(http.MethodPost, "/vc/message", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleReset(t *testing.T) {
	engine := &fakeEngine{}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := postJSON(t, router, "/vc/reset", resetRequest{SessionID: "s1", Persona: "Angel"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp resetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Session 's1' reset." {
		t.Fatalf("message = %q", resp.Message)
	}
	if engine.lastPers != "Angel" {
		t.Fatalf("persona = %q", engine.lastPers)
	}
}

func TestHandleResetPersistenceFailure(t *testing.T) {
	engine := &fakeEngine{resetErr: fmt.Errorf("%w: boom", pitchsvc.ErrPersistence)}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := postJSON(t, router, "/vc/reset", resetRequest{SessionID: "s1"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleResetAudioSessionForm(t *testing.T) {
	engine := &fakeEngine{}
	router := newTestRouter(New(engine, nil, nil, nil))

	form := url.Values{"session_id": {"voice-1"}}
	req := httptest.NewRequest(http.MethodPost, "/vc/reset-audio-session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "Session 'voice-1' reset.") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestHandleTranscript(t *testing.T) {
	engine := &fakeEngine{sessions: map[string]conversation.Session{
		"s1": {
			ID:      "s1",
			Persona: "Shark",
			Status:  conversation.StatusActive,
			Turns:   []conversation.Turn{conversation.SystemTurn("be tough"), conversation.UserTurn("hi")},
		},
	}}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vc/sessions/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp transcriptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" || resp.Persona != "Shark" || len(resp.Turns) != 2 {
		t.Fatalf("unexpected transcript %+v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vc/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rec.Code)
	}
}

func TestHandleStreamEvaluation(t *testing.T) {
	engine := &fakeEngine{reply: pitchsvc.Reply{Message: pitchsvc.MessageEvaluation, Done: true, Evaluation: "Score: 6/10"}}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vc/stream/s1?message=exit&persona=Shark", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := decodeSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Event != "start" || events[1].Event != "evaluation" || events[2].Event != "end" {
		t.Fatalf("event order = %s, %s, %s", events[0].Event, events[1].Event, events[2].Event)
	}
	if events[1].Evaluation != "Score: 6/10" || !events[1].Finished {
		t.Fatalf("evaluation event = %+v", events[1])
	}
	if engine.lastMsg != "exit" || engine.lastPers != "Shark" {
		t.Fatalf("engine got msg=%q persona=%q", engine.lastMsg, engine.lastPers)
	}
}

func TestHandleStreamProviderError(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("%w: boom", pitchsvc.ErrProviderFailure)}
	router := newTestRouter(New(engine, nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vc/stream/s1?message=hello", nil))

	events := decodeSSE(t, rec.Body.String())
	if len(events) != 2 || events[1].Event != "error" || events[1].Error == "" {
		t.Fatalf("events = %+v", events)
	}
}

func TestHandleStreamRequiresMessage(t *testing.T) {
	router := newTestRouter(New(&fakeEngine{}, nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vc/stream/s1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func decodeSSE(t *testing.T, body string) []StreamResponse {
	t.Helper()
	var events []StreamResponse
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		var ev StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &ev); err != nil {
			t.Fatalf("decode sse chunk %q: %v", chunk, err)
		}
		events = append(events, ev)
	}
	return events
}

func multipartAudio(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("RIFF....WAVE")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postAudio(router http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/vc/audio-pitch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAudioPitchReturnsAudio(t *testing.T) {
	voice := &fakeVoice{out: &speechsvc.VoicePitchOutput{
		SessionID:   "voice-1",
		Transcript:  "We sell shovels",
		Reply:       pitchsvc.Reply{Message: "Who buys them?"},
		Audio:       []byte("ID3-mp3"),
		AudioFormat: "mp3",
	}}
	router := newTestRouter(New(&fakeEngine{}, voice, nil, nil))

	body, ct := multipartAudio(t, "pitch.wav", map[string]string{"session_id": "voice-1", "persona": "Shark", "language": "en-US"})
	rec := postAudio(router, body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "ID3-mp3" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Pitch-Done") != "false" {
		t.Fatalf("X-Pitch-Done = %q", rec.Header().Get("X-Pitch-Done"))
	}
	if voice.input.AudioFormat != "wav" || voice.input.Persona != "Shark" || voice.input.Language != "en-US" {
		t.Fatalf("pipeline input = %+v", voice.input)
	}
}

func TestHandleAudioPitchUsesPersonaVoice(t *testing.T) {
	personas := persona.NewMemoryStore(persona.Seed())
	engine := &fakeEngine{sessions: map[string]conversation.Session{
		"angel-1": {ID: "angel-1", Persona: "Angel"},
	}}

	cases := []struct {
		name   string
		fields map[string]string
		voice  string
	}{
		{"new session with shark", map[string]string{"session_id": "shark-1", "persona": "Shark"}, "en_male"},
		{"unknown persona", map[string]string{"session_id": "new-1", "persona": "nobody"}, "en_default"},
		{"stored persona wins", map[string]string{"session_id": "angel-1", "persona": "Shark"}, "en_female"},
		{"explicit voice", map[string]string{"session_id": "shark-1", "persona": "Shark", "voice": "en_custom"}, "en_custom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			voice := &fakeVoice{out: &speechsvc.VoicePitchOutput{Reply: pitchsvc.Reply{Message: "Go on."}, Audio: []byte("mp3")}}
			router := newTestRouter(New(engine, voice, personas, nil))

			body, ct := multipartAudio(t, "pitch.wav", tc.fields)
			rec := postAudio(router, body, ct)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
			}
			if voice.input.Voice != tc.voice {
				t.Fatalf("voice = %q, want %q", voice.input.Voice, tc.voice)
			}
		})
	}
}

func TestHandleAudioPitchTextFallback(t *testing.T) {
	voice := &fakeVoice{out: &speechsvc.VoicePitchOutput{
		SessionID:  "voice-1",
		Transcript: "exit",
		Reply:      pitchsvc.Reply{Message: pitchsvc.MessageEvaluation, Done: true, Evaluation: "Pass."},
	}}
	router := newTestRouter(New(&fakeEngine{}, voice, nil, nil))

	body, ct := multipartAudio(t, "pitch.mp3", map[string]string{"session_id": "voice-1"})
	rec := postAudio(router, body, ct)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp audioPitchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Done || resp.Evaluation != "Pass." {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandleAudioPitchErrors(t *testing.T) {
	cases := []struct {
		name     string
		voice    VoicePipeline
		filename string
		fields   map[string]string
		status   int
	}{
		{"speech disabled", nil, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusServiceUnavailable},
		{"missing session", &fakeVoice{}, "pitch.wav", nil, http.StatusBadRequest},
		{"missing audio", &fakeVoice{}, "", map[string]string{"session_id": "s1"}, http.StatusBadRequest},
		{"unsupported format", &fakeVoice{}, "pitch.ogg", map[string]string{"session_id": "s1"}, http.StatusBadRequest},
		{"empty transcript", &fakeVoice{err: speechsvc.ErrEmptyTranscript}, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusBadRequest},
		{"speech credentials missing", &fakeVoice{err: fmt.Errorf("ASR failed: %w", speechsvc.ErrNotConfigured)}, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusServiceUnavailable},
		{"recognition failure", &fakeVoice{err: errors.New("ASR failed: dial refused")}, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusBadGateway},
		{"provider failure", &fakeVoice{err: fmt.Errorf("%w: boom", pitchsvc.ErrProviderFailure)}, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusBadGateway},
		{"persistence failure", &fakeVoice{err: fmt.Errorf("%w: boom", pitchsvc.ErrPersistence)}, "pitch.wav", map[string]string{"session_id": "s1"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(New(&fakeEngine{}, tc.voice, nil, nil))
			body, ct := multipartAudio(t, tc.filename, tc.fields)
			rec := postAudio(router, body, ct)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tc.status, rec.Body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(fmt.Errorf("load: %w", session.ErrSessionNotFound)); got != http.StatusNotFound {
		t.Fatalf("not found = %d", got)
	}
	if got := statusFor(errors.New("unknown")); got != http.StatusInternalServerError {
		t.Fatalf("unknown = %d", got)
	}
}
