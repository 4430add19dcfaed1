package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docship/docship/server/internal/alerts"
	"github.com/docship/docship/server/internal/api"
	"github.com/docship/docship/server/internal/auth"
	"github.com/docship/docship/server/internal/config"
	"github.com/docship/docship/server/internal/history"
	"github.com/docship/docship/server/internal/receiver"
	"github.com/docship/docship/server/internal/store"
	"github.com/docship/docship/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	slog.Info("docship-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel(cfg.Server.LogLevel)})))

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"report_ttl", cfg.Server.Reports.TTL,
		"history", cfg.Server.History.Path,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Latest report per agent, with background TTL eviction.
	st := store.New(cfg.Server.Reports.TTL)
	go st.Run(ctx)

	alertEngine := alerts.New(cfg.Server.Alerts)

	hub := ws.New(st, alertEngine, 5*time.Second)
	go hub.Run(ctx)

	recvOpts := receiver.Options{
		Alerts:       alertEngine,
		Hub:          hub,
		MaxBodyBytes: cfg.Server.Reports.MaxBodyBytes,
	}
	apiOpts := api.Options{
		Alerts:    alertEngine,
		RunsLimit: cfg.Server.History.Limit,
	}
	if cfg.Server.History.Path != "" {
		hist, err := history.Open(cfg.Server.History.Path)
		if err != nil {
			slog.Error("failed to open run history", "path", cfg.Server.History.Path, "err", err)
			os.Exit(1)
		}
		defer hist.Close()
		go hist.Run(ctx, cfg.Server.History.Retention)
		recvOpts.History = hist
		apiOpts.History = hist
	}

	secret := cfg.Server.Auth.Key()
	if cfg.Server.Auth.Mode == "bearer" {
		secret = cfg.Server.Auth.Token()
	}
	if cfg.Server.Auth.Mode != "" && cfg.Server.Auth.Mode != "none" && secret == "" {
		slog.Warn("auth enabled but no secret resolved; reports are accepted unauthenticated", "mode", cfg.Server.Auth.Mode)
	}
	requireAuth := auth.Middleware(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), secret)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/v1/reports", requireAuth(receiver.New(st, recvOpts)))
	httpMux.Handle("/api/", api.New(st, apiOpts))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("docship-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}

func slogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
