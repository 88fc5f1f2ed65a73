package speech

import (
	"context"
	"errors"
	"strings"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/speech"
)

// ErrNotConfigured 缺少火山引擎 App ID 或 Token
var ErrNotConfigured = errors.New("speech: volcengine app id or access token missing")

// Service 组合 ASR 与 TTS 客户端
type Service struct {
	cfg config.SpeechConfig
	asr *ASRClient
	tts *TTSClient
}

func NewService(cfg config.SpeechConfig) *Service {
	return &Service{
		cfg: cfg,
		asr: NewASRClient(cfg),
		tts: NewTTSClient(cfg),
	}
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speech.ASRResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.asr.Transcribe(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		Audio:     audio,
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.tts.Synthesize(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Language:  language,
	})
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func resolveCredentials(cfg config.SpeechConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", ErrNotConfigured
	}
	return appID, token, nil
}
