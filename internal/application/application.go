package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/database"
	"github.com/missland/tryon-service/internal/events"
	"github.com/missland/tryon-service/internal/handler"
	"github.com/missland/tryon-service/internal/router"
	"github.com/missland/tryon-service/internal/service"
	"github.com/missland/tryon-service/internal/storage"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg      *config.Config
	srv      *http.Server
	db       *gorm.DB
	consumer *events.Consumer
	logger   *zap.Logger
}

// NewAPI creates the API application: validates config, runs migrations,
// opens DB, builds services and router. All clients are constructed here and
// injected explicitly; nothing lives in package-level globals.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	images, err := storage.NewLocalImageStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	cache := service.NewTTLCache()
	posts := service.NewPostStore(db)
	sessionSvc := service.NewSessionService(db, cfg)
	resultSvc := service.NewResultService(db)
	interestSvc := service.NewInterestService(db, posts, cache, logger)
	recSvc := service.NewRecommendationService(posts, interestSvc, cache, cfg, logger)

	var consumer *events.Consumer
	if cfg.EnableInteractionEvents {
		consumer = events.NewConsumer(cfg.AMQPURL, cfg.InteractionQueue, interestSvc, logger)
		if err := consumer.Connect(); err != nil {
			log.Printf("warning: interaction consumer connect failed (events disabled): %v", err)
			consumer = nil
		}
	}

	sessionHandler := handler.NewSessionHandler(sessionSvc, resultSvc, images, cfg.WSBaseURL)
	feedHandler := handler.NewFeedHandler(recSvc, interestSvc, logger)
	tryOnWS := handler.NewTryOnWSHandler(sessionSvc, cfg, logger)
	health := handler.NewHealthHandler()

	r := router.New(sessionHandler, feedHandler, tryOnWS, health, cfg.MediaDir)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, consumer: consumer, logger: logger}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts
// down gracefully.
func (a *API) Run(ctx context.Context) error {
	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Sessions:      %s/api/try-on/sessions", base)
	log.Printf("  Feed:          %s/api/feed", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/try-on/:session_token", host, a.cfg.HTTPPort)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Warn("interaction consumer stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	_ = a.logger.Sync()
	return nil
}
