package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/pitch-tank/backend/internal/model/speech"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
)

// ErrEmptyTranscript 识别结果为空
var ErrEmptyTranscript = errors.New("speech: transcript is empty")

// Transcriber 语音识别
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speech.ASRResponse, error)
}

// Synthesizer 语音合成
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice, language string) (*speech.TTSResponse, error)
}

// Conversation 处理一条创始人发言
type Conversation interface {
	Send(ctx context.Context, sessionID, message, personaName string) (pitch.Reply, error)
}

// VoicePitchChain 语音路演链：ASR -> 对话引擎 -> TTS
type VoicePitchChain struct {
	asr          Transcriber
	tts          Synthesizer
	conversation Conversation
}

func NewVoicePitchChain(asr Transcriber, tts Synthesizer, conversation Conversation) *VoicePitchChain {
	return &VoicePitchChain{asr: asr, tts: tts, conversation: conversation}
}

// VoicePitchInput 语音路演输入
type VoicePitchInput struct {
	SessionID   string `json:"sessionId"`
	AudioData   []byte `json:"-"`
	AudioFormat string `json:"audioFormat"`
	Language    string `json:"language"`
	Persona     string `json:"persona"`
	Voice       string `json:"voice"`
}

// VoicePitchOutput 语音路演输出
type VoicePitchOutput struct {
	SessionID     string      `json:"sessionId"`
	Transcript    string      `json:"transcript"`
	Reply         pitch.Reply `json:"reply"`
	Audio         []byte      `json:"-"`
	AudioFormat   string      `json:"audioFormat,omitempty"`
	ASRConfidence float64     `json:"asrConfidence"`
	ProcessTime   int64       `json:"processTime"`
}

// Process 识别创始人语音，交给对话引擎，再合成投资人回复。TTS 失败时仅返回文本
func (c *VoicePitchChain) Process(ctx context.Context, input *VoicePitchInput) (*VoicePitchOutput, error) {
	start := time.Now()

	asrResp, err := c.asr.TranscribeBuffer(ctx, input.SessionID, input.AudioData, input.AudioFormat, input.Language)
	if err != nil {
		return nil, fmt.Errorf("ASR failed: %w", err)
	}
	text := strings.TrimSpace(asrResp.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	reply, err := c.conversation.Send(ctx, input.SessionID, text, input.Persona)
	if err != nil {
		return nil, err
	}

	out := &VoicePitchOutput{
		SessionID:     input.SessionID,
		Transcript:    text,
		Reply:         reply,
		ASRConfidence: asrResp.Confidence,
	}

	spoken := reply.Message
	if reply.Evaluation != "" {
		spoken = reply.Message + "\n" + reply.Evaluation
	}
	ttsResp, err := c.tts.SynthesizeToBuffer(ctx, input.SessionID, spoken, input.Voice, input.Language)
	if err != nil {
		log.Printf("[speech] TTS failed for session %s: %v", input.SessionID, err)
	} else {
		out.Audio = ttsResp.AudioData
		out.AudioFormat = ttsResp.Format
	}

	out.ProcessTime = time.Since(start).Milliseconds()
	return out, nil
}
