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

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/api"
	"github.com/whisper/moderation/internal/app"
	"github.com/whisper/moderation/internal/config"
	"github.com/whisper/moderation/internal/ratelimit"
)

func main() {
	log.Println("Starting Whisper moderation API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "api")
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	adminLimiter := api.NewAdminLimiter(cfg.RateLimit.AdminPerSecond, cfg.RateLimit.AdminBurst)
	go adminLimiter.Cleanup(ctx, 5*time.Minute)
	go a.Sweeper.Run(ctx)

	router := api.NewRouter(api.Deps{
		Lexicon:   a.Lexicon,
		Bans:      a.Bans,
		Engine:    a.Engine,
		Sweeper:   a.Sweeper,
		Audit:     a.Audit,
		Limiter:   ratelimit.NewLimiter(a.Redis),
		JWTSecret: cfg.JWT.Secret,
		Limits:    cfg.RateLimit,
		Ready:     a.Ready,
	}, adminLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Printf("Whisper moderation API running")
	log.Printf("  port:      %s", cfg.Server.Port)
	log.Printf("  mongodb:   %s db=%s", config.Redact(cfg.MongoDB.URI), cfg.MongoDB.Database)
	log.Printf("  redis:     %s", cfg.Redis.Addr)
	log.Printf("  nats:      %s", config.Redact(cfg.NATS.URL))
	log.Printf("  audit:     %t", a.Audit != nil)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
