package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/ai"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	if !cfg.Speech.Enabled {
		log.Fatal("语音服务未启用，请先配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	mode := flag.String("mode", "", "测试模式: asr, tts 或 pitch")
	audioPath := flag.String("audio", "", "ASR/pitch 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "输出 mp3 路径 (默认自动生成)")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音 ID，pitch 模式默认使用角色音色，其余使用配置中的 TTSVoice")
	personaName := flag.String("persona", persona.DefaultName, "pitch 模式的投资人角色")
	sessionFlag := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 90*time.Second, "请求超时时间")

	flag.Parse()

	sessionID := *sessionFlag
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewService(cfg.Speech)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, svc, sessionID, *audioPath, *language)
	case "tts":
		runTTS(ctx, svc, sessionID, *text, *voice, *language, *outputPath)
	case "pitch":
		runPitch(ctx, cfg, svc, sessionID, *audioPath, *personaName, *voice, *language, *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=asr, -mode=tts 或 -mode=pitch 指定测试模式")
	}
}

func readAudio(audioPath string) ([]byte, string) {
	if audioPath == "" {
		log.Fatal("需要通过 -audio 指定音频文件路径")
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	if format == "" {
		format = "wav"
	}
	return data, format
}

func writeAudio(outputPath string, audio []byte) string {
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}
	return outputPath
}

func runASR(ctx context.Context, svc *speech.Service, sessionID, audioPath, language string) {
	audio, format := readAudio(audioPath)
	log.Printf("开始进行 ASR 测试: session=%s format=%s bytes=%d", sessionID, format, len(audio))

	resp, err := svc.TranscribeBuffer(ctx, sessionID, audio, format, language)
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q confidence=%.2f duration=%dms", resp.Text, resp.Confidence, resp.Duration)
}

func runTTS(ctx context.Context, svc *speech.Service, sessionID, text, voice, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	log.Printf("开始进行 TTS 测试: session=%s voice=%s", sessionID, voice)

	resp, err := svc.SynthesizeToBuffer(ctx, sessionID, text, voice, language)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 时长=%dms", writeAudio(outputPath, resp.AudioData), resp.Duration)
}

// runPitch 走完整语音路演链路：ASR -> 对话引擎 -> TTS
func runPitch(ctx context.Context, cfg *config.Config, svc *speech.Service, sessionID, audioPath, personaName, voice, language, outputPath string) {
	audio, format := readAudio(audioPath)

	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("模型初始化失败: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	if voice == "" {
		if p, ok := personaStore.FindByName(personaName); ok {
			voice = p.VoiceID
		}
	}

	personas := ai.NewPersonaPromptManager(personaStore)
	engine := pitch.NewEngine(session.NewMemoryStore(), provider, personas, pitch.Options{Timeout: cfg.AI.Timeout})
	chain := speech.NewVoicePitchChain(svc, svc, engine)

	out, err := chain.Process(ctx, &speech.VoicePitchInput{
		SessionID:   sessionID,
		AudioData:   audio,
		AudioFormat: format,
		Language:    language,
		Persona:     personaName,
		Voice:       voice,
	})
	if err != nil {
		log.Fatalf("语音路演失败: %v", err)
	}

	log.Printf("识别文本: %q", out.Transcript)
	log.Printf("投资人回复: %s", out.Reply.Message)
	if len(out.Audio) > 0 {
		log.Printf("语音回复已写入 %s (耗时 %dms)", writeAudio(outputPath, out.Audio), out.ProcessTime)
	}
}
