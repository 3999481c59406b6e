package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/tabsplit/internal/auth"
	"github.com/mmynk/tabsplit/internal/config"
	"github.com/mmynk/tabsplit/internal/extraction"
	"github.com/mmynk/tabsplit/internal/feed"
	"github.com/mmynk/tabsplit/internal/metrics"
	"github.com/mmynk/tabsplit/internal/middleware"
	"github.com/mmynk/tabsplit/internal/service"
	"github.com/mmynk/tabsplit/internal/storage"
	"github.com/mmynk/tabsplit/internal/storage/postgres"
	"github.com/mmynk/tabsplit/internal/storage/sqlite"
	"github.com/mmynk/tabsplit/pkg/logging"
)

func main() {
	cfg, err := config.LoadServer(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	broker, err := openBroker(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize change feed: %w", err)
	}
	defer broker.Close()

	secret := cfg.DeviceTokenSecret
	if secret == "" {
		secret = randomSecret()
		slog.Warn("DEVICE_TOKEN_SECRET not set, device tokens will not survive a restart")
	}
	jwtManager := auth.NewJWTManager(secret, cfg.DeviceTokenTTL())

	var extractor extraction.Extractor
	if cfg.ExtractionURL != "" {
		extractor = extraction.NewClient(extraction.Config{
			URL:     cfg.ExtractionURL,
			APIKey:  cfg.ExtractionAPIKey,
			Timeout: cfg.ExtractionTimeout(),
		})
		slog.Info("Receipt extraction enabled", "url", cfg.ExtractionURL)
	} else {
		slog.Warn("EXTRACTION_URL not set, receipt extraction disabled")
	}

	staticDir, err := filepath.Abs(cfg.StaticPath)
	if err != nil {
		return fmt.Errorf("failed to resolve static path: %w", err)
	}
	slog.Info("Serving static files", "path", staticDir)

	m := metrics.New()
	interceptors := connect.WithInterceptors(
		middleware.DeviceInterceptor(jwtManager),
		middleware.LoggingInterceptor(),
		middleware.MetricsInterceptor(m),
	)

	mux := newMux(routes{
		sessions:     service.NewSessionService(store, broker, m),
		receipts:     service.NewReceiptService(extractor, m),
		devices:      service.NewDeviceService(jwtManager),
		metrics:      m,
		staticDir:    staticDir,
		interceptors: interceptors,
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect streaming)
	h2cHandler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown on SIGINT / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	// Watch streams only end when their feed closes
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("Server exited")
	return nil
}

func openStore(cfg *config.Server) (storage.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		store, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", "postgres")
		return store, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", "sqlite", "database", cfg.DBPath)
		return store, nil
	}
}

func openBroker(cfg *config.Server) (feed.Broker, error) {
	if cfg.RedisURL == "" {
		slog.Info("Change feed initialized", "broker", "memory")
		return feed.NewMemory(), nil
	}
	broker, err := feed.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	slog.Info("Change feed initialized", "broker", "redis")
	return broker, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
