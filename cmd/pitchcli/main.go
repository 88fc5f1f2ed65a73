package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/ai"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
	"github.com/zhouzirui/pitch-tank/backend/internal/tui"
)

func main() {
	sessionID := flag.String("session", "", "session id to resume (default: new random id)")
	personaName := flag.String("persona", persona.DefaultName, "investor persona")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("completion provider unavailable: %v", err)
	}

	store, err := session.NewStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer store.Close()

	personas := ai.NewPersonaPromptManager(persona.NewMemoryStore(persona.Seed()))
	engine := pitch.NewEngine(store, provider, personas, pitch.Options{Timeout: cfg.AI.Timeout})

	id := *sessionID
	if id == "" {
		id = "cli-" + uuid.NewString()
	}

	// 引擎日志写入文件，避免打乱终端界面
	logFile, err := tea.LogToFile(filepath.Join(os.TempDir(), "pitchcli.log"), "pitchcli")
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	if err := tui.Run(ctx, engine, id, personas.Canonical(*personaName)); err != nil {
		log.Printf("pitch session ended with error: %v", err)
	}
}
