package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/visitaudit/internal/config"
	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/JonMunkholm/visitaudit/internal/logging"
	"github.com/JonMunkholm/visitaudit/internal/tasks"
	"github.com/JonMunkholm/visitaudit/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"max_concurrent", cfg.Validation.MaxConcurrent,
		"images", cfg.Image.Enabled,
		"templates_dir", cfg.Templates.Dir,
	)

	// Built-in task templates, overridden by TEMPLATES_DIR
	registry, err := tasks.NewRegistry(cfg.Templates.Dir)
	if err != nil {
		slog.Error("failed to load task templates", "error", err)
		os.Exit(1)
	}

	slog.Info("tasks registered",
		"count", registry.Len(),
		"groups", len(registry.Groups()),
	)
	for _, tmpl := range registry.All() {
		slog.Debug("task", "group", tmpl.Group, "name", tmpl.Name, "fields", len(tmpl.Fields))
	}

	service := core.NewService(registry, cfg.Service())
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests, then stop and drain active passes
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("cancelling active runs", "active", status.Active)
			service.CancelAll()
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not finish in time", "error", err)
			} else {
				slog.Info("all runs finished")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
