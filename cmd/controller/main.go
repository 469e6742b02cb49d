package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/api"
	"github.com/dgnsrekt/colab_agent/internal/app"
	"github.com/dgnsrekt/colab_agent/internal/config"
	"github.com/dgnsrekt/colab_agent/internal/netutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("controller exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadController()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		return err
	}
	slog.Info("controller config loaded",
		"config_file", cfg.ConfigFile,
		"cdp_url", cfg.ControllerCDPURL(),
		"bind_addr", cfg.BindAddr,
		"tab_url_pattern", cfg.TabURLPattern,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"stop_revert_ms", cfg.StopRevertMS,
		"status_ttl_ms", cfg.StatusTTLMS,
		"launch_browser", cfg.LaunchBrowser,
		"journal_dir", cfg.JournalDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Claim the port first so a second controller fails before touching the browser.
	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.BindAddr, err)
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.Close()

	srv := &http.Server{Handler: api.NewServer(a.Service), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("controller listening", "addr", addr, "docs", "http://"+addr+"/docs")
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupLogger writes text logs to stdout and, when filename is set, to a
// rotated file as well.
func setupLogger(level, filename string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return err
		}
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
