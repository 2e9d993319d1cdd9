package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tabshell/internal/api"
	"github.com/dgnsrekt/tabshell/internal/browser"
	"github.com/dgnsrekt/tabshell/internal/cdp"
	"github.com/dgnsrekt/tabshell/internal/config"
	"github.com/dgnsrekt/tabshell/internal/controller"
	"github.com/dgnsrekt/tabshell/internal/metrics"
	"github.com/dgnsrekt/tabshell/internal/netutil"
	"github.com/dgnsrekt/tabshell/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("tabshell config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"dev_mode", cfg.DevMode,
		"close_fallback", cfg.CloseFallback,
		"scale_factor", cfg.ScaleFactor,
		"margins", cfg.Margins,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	// Bound before the browser starts: the shell window's first request waits
	// in the accept backlog until the server is serving.
	ln, err := netutil.Listen(cfg.BindAddr, cfg.BindFallbacks, true)
	if err != nil {
		slog.Error("failed to bind control API", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	shellURL := "http://" + addr + "/shell/"

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ShellURL:   shellURL,
			ProfileDir: cfg.ProfileDir,
			WindowSize: cfg.WindowSize,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	probe, err := cdp.Probe(probeCtx, cfg.CDPURL(), true)
	probeCancel()
	if err != nil {
		slog.Error("browser probe failed", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	slog.Info("browser probed", "pages", probe.Pages, "reaped_contexts", probe.Reaped)

	conn := cdp.NewConn(cfg.CDPURL())
	if err := conn.Connect(context.Background()); err != nil {
		slog.Error("failed to connect CDP", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	startup, err := config.LoadStartupTabs(cfg.StartupTabsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no startup tabs file", "path", cfg.StartupTabsPath)
		} else {
			slog.Warn("startup tabs ignored", "path", cfg.StartupTabsPath, "error", err)
		}
	}

	var svc *controller.Service
	m := metrics.New(func() int {
		if svc == nil {
			return 0
		}
		return svc.EventClients()
	})
	svc = controller.New(conn, controller.Options{
		View: view.Config{
			UserAgent:     cfg.UserAgent,
			DevMode:       cfg.DevMode,
			InspectorBase: cfg.CDPURL(),
			StepTimeout:   cfg.ViewStepTimeout,
		},
		Fallback:      cfg.CloseFallback,
		Margins:       cfg.Margins,
		ScaleFactor:   cfg.ScaleFactor,
		FrameInterval: cfg.FrameInterval,
		OpTimeout:     cfg.OpTimeout,
		ShellURL:      shellURL,
		StartupTabs:   startup.URLs(),
		Metrics:       m,
	})

	h := api.NewServer(svc, api.Config{
		Token:     uuid.NewString(),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.RateBurst,
		Metrics:   m.Handler(),
		Observe:   m.ObserveRequest,
		DevMode:   cfg.DevMode,
	})
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("tabshell listening", "addr", addr, "shell", shellURL, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("tabshell server failed", "error", err)
			os.Exit(1)
		}
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), time.Minute)
	err = svc.Start(startCtx)
	startCancel()
	if err != nil {
		slog.Error("tab service start failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-conn.Done():
		slog.Warn("CDP connection lost, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("tabshell shutdown failed", "error", err)
	}
	if err := svc.Close(ctx); err != nil {
		slog.Warn("tab service close failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
