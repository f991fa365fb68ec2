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

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/mad-arena/backend/internal/config"
	"github.com/zhouzirui/mad-arena/backend/internal/handler"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/ai"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
	"github.com/zhouzirui/mad-arena/backend/internal/storage"
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

	roster, err := debate.LoadRoster(cfg.Debate.AgentsFile)
	if err != nil {
		log.Fatalf("failed to load debate roster: %v", err)
	}

	repo, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer repo.Close()

	// Initialize AI service
	var aiService *ai.Service
	var speaker debateService.Speaker
	var chatModel model.BaseChatModel
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without debate rounds - check the model environment variables")
		} else {
			speaker = aiService
			chatModel = aiService.ChatModel()
			log.Printf("AI service initialized with provider %s, model %s", cfg.AI.Provider, cfg.AI.Model)
		}
	} else {
		log.Printf("%s credentials not configured, debate rounds are disabled", cfg.AI.Provider)
	}

	debates := debateService.NewService(repo, speaker, debateService.Config{
		MaxRounds:    cfg.Debate.MaxRounds,
		RoundTimeout: cfg.Debate.RoundTimeout,
	})

	diagnoser, err := diagnosis.NewService(ctx, chatModel, diagnosis.Config{
		LLMEnabled:  cfg.Diagnosis.LLMEnabled,
		Concurrency: cfg.Diagnosis.Concurrency,
	})
	if err != nil {
		log.Fatalf("failed to initialize diagnosis service: %v", err)
	}
	switch {
	case diagnoser.Enabled():
		log.Println("MAST classifier enabled")
	case cfg.Diagnosis.LLMEnabled:
		log.Println("MAST classifier requested but chat model unavailable, falling back to heuristics")
	default:
		log.Println("MAST classifier disabled by configuration, using heuristics")
	}

	router := handler.NewRouter(handler.Deps{
		Roster:         roster,
		Debates:        debates,
		Diagnoser:      diagnoser,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func openStorage(cfg config.StorageConfig) (storage.Repository, error) {
	if cfg.Driver == config.StorageSQLite {
		log.Printf("using sqlite storage at %s", cfg.SQLitePath)
		return storage.NewSQLite(cfg.SQLitePath)
	}
	log.Println("using in-memory storage; sessions are lost on restart")
	return storage.NewMemoryStore(), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("MAD Arena backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
