package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pagecap/pagecap/internal/api"
	"github.com/pagecap/pagecap/internal/browser"
	"github.com/pagecap/pagecap/internal/capture"
	"github.com/pagecap/pagecap/internal/config"
	"github.com/pagecap/pagecap/internal/netutil"
	"github.com/pagecap/pagecap/internal/service"
	"github.com/pagecap/pagecap/internal/store"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	daemonCfg, err := config.LoadDaemon()
	if err != nil {
		slog.Error("failed to load daemon config", "error", err)
		os.Exit(1)
	}
	defaults, err := config.Load()
	if err != nil {
		slog.Error("failed to load capture defaults", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(daemonCfg.LogLevel, daemonCfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("pagecapd config loaded",
		"bind_addr", daemonCfg.BindAddr,
		"port_auto_fallback", daemonCfg.PortAutoFallback,
		"port_candidates", daemonCfg.PortCandidates,
		"store_dir", daemonCfg.StoreDir,
		"log_level", daemonCfg.LogLevel,
		"log_file", daemonCfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(daemonCfg.BindAddr, daemonCfg.PortCandidates, daemonCfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", daemonCfg.BindAddr, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	cdpURL := fmt.Sprintf("http://%s:%d", defaults.CDPAddress, defaults.CDPPort)
	if defaults.CDPPort == 0 {
		port, err := netutil.FreePort(defaults.CDPAddress)
		if err != nil {
			slog.Error("failed to pick a devtools port", "error", err)
			os.Exit(1)
		}
		launcher := browser.NewLauncher(browser.LaunchConfig{
			BrowserPath: defaults.BrowserPath,
			CDPAddress:  defaults.CDPAddress,
			CDPPort:     port,
			ProfileDir:  defaults.ProfileDir,
			WindowSize:  fmt.Sprintf("%d,%d", defaults.MinWidth, defaults.MinHeight),
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
		cdpURL = launcher.CDPURL()
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer cancelAlloc()

	st, err := store.NewStore(daemonCfg.StoreDir)
	if err != nil {
		slog.Error("failed to create capture store", "dir", daemonCfg.StoreDir, "error", err)
		os.Exit(1)
	}

	svc := service.New(capture.NewRunner(allocCtx), st, defaults)
	h := api.NewServer(svc)

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("pagecapd listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("pagecapd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("pagecapd shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
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
