package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/doclens/internal/api"
	"github.com/liliang-cn/doclens/internal/collaborator"
	"github.com/liliang-cn/doclens/internal/config"
	"github.com/liliang-cn/doclens/internal/metrics"
	"github.com/liliang-cn/doclens/internal/repository"
	"github.com/liliang-cn/doclens/internal/service"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database (conversations and upload history; documents live in the answer service)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	m := metrics.New()

	client, err := collaborator.NewClient(cfg.Collaborator, logger.Named("collaborator"), m)
	if err != nil {
		logger.Fatal("Failed to create answer service client", zap.Error(err))
	}

	// Initialize services
	services := api.Services{
		Chat:   service.NewChatService(cfg, sessionRepo, client, logger.Named("chat"), m),
		Upload: service.NewUploadService(cfg, uploadRepo, client, logger.Named("upload"), m),
		Listen: service.NewListenService(service.CollaboratorListener(client), logger.Named("listen"), m),
		Admin:  service.NewAdminService(sessionRepo, uploadRepo),
	}

	// Setup router
	router := api.SetupRouter(services, api.RouterConfig{
		APIKey:       cfg.Auth.APIKey,
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       logger.Named("http"),
		Metrics:      m.Handler(),
	})

	// Create HTTP server. No write timeout: answers and listen relays
	// stream for as long as they run.
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		printBanner()
		logger.Info("Starting DocLens server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
			zap.String("answer_service", cfg.Collaborator.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level

	return zcfg.Build()
}

func printBanner() {
	banner := `
    ____             __
   / __ \____  _____/ /   ___  ____  _____
  / / / / __ \/ ___/ /   / _ \/ __ \/ ___/
 / /_/ / /_/ / /__/ /___/  __/ / / (__  )
/_____/\____/\___/_____/\___/_/ /_/____/
`

	fmt.Println(banner)
}
