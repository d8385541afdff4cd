// Package main is the entry point for the portfolio admin server.
//
// main reads configuration, builds the logger and starts the server. All
// actual logic lives in internal/.
package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/server"
)

func main() {
	cfg := config.Load()

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.GitHub.ClientID == "" || cfg.GitHub.ClientSecret == "" {
		logger.Warn("GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set; GitHub sign-in will fail")
	}
	if !cfg.Mode.IsProduction() {
		logger.Warn("running in development mode: the admin guard is disabled and uploads are copied locally",
			slog.String("previewDir", cfg.PreviewDir),
		)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger writes text logs to stdout and, when LOG_FILE is set, also to a
// size-rotated file.
func newLogger(cfg config.Config) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { rotating.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger, closeFn
}
