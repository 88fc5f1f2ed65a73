package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/handler"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/observability"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/ai"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/session"
	"github.com/zhouzirui/pitch-tank/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	personaStore := persona.NewMemoryStore(persona.Seed())

	store, err := session.NewStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer store.Close()
	log.Printf("[store] using %s session store", cfg.Store.Backend)

	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		// 无模型时仍可查看会话与重置，消息接口返回 502
		log.Printf("warning: completion provider unavailable: %v", err)
		provider = nil
	} else {
		log.Printf("[ai] completion provider %s initialized", provider.Name())
	}

	engine := pitch.NewEngine(store, provider, ai.NewPersonaPromptManager(personaStore), pitch.Options{
		Timeout: cfg.AI.Timeout,
		Metrics: metrics,
	})

	deps := handler.Dependencies{
		Personas: personaStore,
		Engine:   engine,
		Metrics:  metrics,
		Gatherer: reg,
	}
	if cfg.Speech.Enabled {
		speechSvc := speech.NewService(cfg.Speech)
		deps.Voice = speech.NewVoicePitchChain(speechSvc, speechSvc, engine)
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	router, closeConns := handler.NewRouter(deps)
	defer closeConns()

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Pitch Tank backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
