package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/audit"
	"github.com/wrapshot/agent/internal/config"
	"github.com/wrapshot/agent/internal/confirmation"
	"github.com/wrapshot/agent/internal/logging"
	"github.com/wrapshot/agent/internal/policy"
	"github.com/wrapshot/agent/internal/production"
	"github.com/wrapshot/agent/internal/repository"
	"github.com/wrapshot/agent/internal/service"
	"github.com/wrapshot/agent/internal/tools"
	server "github.com/wrapshot/agent/internal/transport/http"
	"github.com/wrapshot/agent/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting agent",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("confirmation_backend", cfg.ConfirmationBackend),
		zap.String("llm_provider", cfg.LLMProvider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := repository.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	// Initialize confirmation store
	var confirmations confirmation.Store = store.Confirmations()
	if cfg.ConfirmationBackend == "redis" {
		rs, err := confirmation.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to initialize redis confirmation store", zap.Error(err))
		}
		defer rs.Close()
		confirmations = rs
	}
	sweeper := confirmation.NewSweeper(confirmations, cfg.SweepInterval, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start confirmation sweeper", zap.Error(err))
	}

	// Initialize policy engine
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	// Initialize LLM client
	llmClient, err := llm.NewLLMClient(
		llm.ProviderConfig{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
			Timeout:  cfg.LLMTimeout,
		},
		llm.ProviderConfig{
			Provider: cfg.FallbackProvider,
			Model:    cfg.FallbackModel,
			APIKey:   cfg.FallbackAPIKey,
			BaseURL:  cfg.FallbackBaseURL,
			Timeout:  cfg.LLMTimeout,
		},
		logger)
	if err != nil {
		logger.Fatal("failed to initialize llm client", zap.Error(err))
	}

	// Initialize audit writer
	var auditWriter audit.EventWriter = audit.NewLogWriter(logger)
	if cfg.ClickHouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse unavailable, auditing to log", zap.Error(err))
		} else {
			auditWriter = chWriter
		}
	}
	defer auditWriter.Close()

	// Initialize service
	registry := tools.NewProductionRegistry(production.NewClient(store), logger)
	svc := service.New(store, confirmations, registry, llmClient, policyEngine, auditWriter, service.Config{
		Model:           cfg.LLMModel,
		MaxIterations:   cfg.MaxIterations,
		HistoryLimit:    cfg.HistoryLimit,
		ConfirmationTTL: cfg.ConfirmationTTL,
	}, logger)

	// Initialize streaming
	hub := ws.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)
	svc.SetPublisher(hub)
	stream := ws.NewServer(ws.Config{
		ReadTimeout:    cfg.WSReadTimeout,
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		MaxMessageSize: cfg.WSMaxMessageSize,
		TurnTimeout:    cfg.TurnTimeout,
	}, hub, svc, logger)

	httpServer := server.NewServer(svc, store, stream, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start http server", zap.Error(err))
		}
	}()
	logger.Info("agent api started", zap.Int("port", cfg.HTTPPort))

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutting down agent")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown http server gracefully", zap.Error(err))
	}
	stopHub()
	sweeper.Stop(shutdownCtx)

	logger.Info("agent stopped")
}
