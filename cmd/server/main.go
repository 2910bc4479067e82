package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ai-playground/backend/internal/analyzer"
	"github.com/ai-playground/backend/internal/api"
	"github.com/ai-playground/backend/internal/config"
	"github.com/ai-playground/backend/internal/session"
	"github.com/ai-playground/backend/internal/storage"
	"github.com/ai-playground/backend/internal/submit"
	"github.com/ai-playground/backend/internal/web"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	overrides, err := config.ReadEnv()
	if err != nil {
		return err
	}

	configPath := overrides.ConfigPath
	if configPath == "" {
		// Get the executable's directory for config resolution
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), config.DefaultConfigName)
	}

	cfg, err := config.LoadConfig(configPath, overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := newLogger(cfg.Advanced)
	slog.SetDefault(log)

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	client := analyzer.NewClient(analyzer.Options{
		BaseURL:           cfg.Service.BaseURL,
		AnalyzePath:       cfg.Service.AnalyzePath,
		SummarizePath:     cfg.Service.SummarizePath,
		RequestsPerSecond: cfg.Service.RequestsPerSecond,
		Burst:             cfg.Service.Burst,
	})

	hub := api.NewHub()
	sessions := session.NewManager(session.Options{
		Timeout:         cfg.SessionTimeout(),
		CleanupInterval: cfg.CleanupInterval(),
		Files:           fileStore,
		Notifier:        hub,
		Logger:          log.With("component", "session"),
	})
	runner := submit.NewRunner(client, fileStore, sessions, cfg.ServiceTimeout(), log.With("component", "submit"))

	renderer, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		EnableCORS:           cfg.Server.EnableCORS,
		AllowOrigins:         cfg.Server.AllowOrigins,
		BodyLimit:            cfg.Server.BodyLimit,
		EnableRequestLogging: cfg.Advanced.EnableRequestLogging,
		ExposeErrorDetails:   strings.EqualFold(cfg.Advanced.LogLevel, "debug"),
		Logger:               log,
	})

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:    fileStore,
		Sessions: sessions,
		Runner:   runner,
		Renderer: renderer,
		Service:  client,
		Upstream: client,
		Hub:      hub,
		Page: api.PageOptions{
			ImageAccept:        cfg.Forms.ImageAccept,
			DocumentExtensions: cfg.DocumentExtensions(),
		},
		Version:                 Version,
		WebSocketMaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Logger:                  log.With("component", "websocket"),
	}), false)

	if err := web.RegisterStaticRoutes(e); err != nil {
		return fmt.Errorf("failed to register static routes: %w", err)
	}

	// Configure server with settings from the config file
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The service may come up after us; only warn.
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := client.CheckHealth(checkCtx); err != nil {
		log.Warn("analysis service not reachable", "url", cfg.Service.BaseURL, "error", err)
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.Shutdown(shutdownCtx)

		// Cancels in-flight submissions and deletes selected files.
		sessions.Close()
		runner.Wait()
		return err
	})

	return g.Wait()
}

func newLogger(cfg config.AdvancedConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func printBanner(configPath string, cfg *config.AppConfig) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           AI Playground Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Service:   %-46s║\n", cfg.Service.BaseURL)
	fmt.Printf("║  Uploads:   %-46s║\n", cfg.GetUploadDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
}
