// ABOUTME: Entry point for the support gateway: config, wiring, serve, graceful shutdown
// ABOUTME: One process hosts both transports: the websocket gateway and the REST facade

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/PirateKingAkshit/agritech-support-gateway/internal/auth"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/chat"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/config"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/gateway"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/httpapi"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/media"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/presence"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/push"
	"github.com/PirateKingAkshit/agritech-support-gateway/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "support-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments export variables directly
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("SUPPORT_GATEWAY_CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg, cleanup, err := buildPresence(ctx, cfg.Presence)
	if err != nil {
		return fmt.Errorf("building presence registry: %w", err)
	}
	defer cleanup()

	notifier, closeNotifier, err := buildNotifier(cfg.Push, logger)
	if err != nil {
		return fmt.Errorf("building push notifier: %w", err)
	}
	defer closeNotifier()

	strategy, err := chat.NewStrategy(cfg.Support.Policy, cfg.Support.Agents, st, reg)
	if err != nil {
		return fmt.Errorf("building assignment strategy: %w", err)
	}

	resolver := media.NewClient(cfg.Media.BaseURL, cfg.Media.Timeout, cfg.Media.MaxRetries, logger)
	svc := chat.NewService(st, strategy, resolver, logger)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	gw := gateway.New(svc, reg, notifier, verifier, logger)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", func(c *gin.Context) {
		gw.ServeWS(c.Writer, c.Request)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	httpapi.NewHandler(svc, logger).Register(router, verifier)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("support gateway listening",
			"addr", cfg.Server.HTTPAddr,
			"policy", cfg.Support.Policy,
			"agents", len(cfg.Support.Agents))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// buildPresence wires the presence registry: process-local memory always,
// layered over Redis when a shared registry is configured.
func buildPresence(ctx context.Context, cfg config.PresenceConfig) (presence.Registry, func(), error) {
	local := presence.NewMemory(cfg.TTL)
	if cfg.RedisURL == "" {
		return local, local.Close, nil
	}

	shared, err := presence.NewRedis(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		local.Close()
		return nil, nil, err
	}
	cleanup := func() {
		local.Close()
		if err := shared.Close(); err != nil {
			slog.Warn("closing redis presence registry", "error", err)
		}
	}
	return presence.NewLayered(local, shared), cleanup, nil
}

func buildNotifier(cfg config.PushConfig, logger *slog.Logger) (push.Notifier, func(), error) {
	if !cfg.Enabled {
		return push.NopNotifier{}, func() {}, nil
	}
	n, err := push.NewAsynqNotifier(cfg.RedisURL, cfg.Queue, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := n.Close(); err != nil {
			logger.Warn("closing push notifier", "error", err)
		}
	}
	return n, cleanup, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
