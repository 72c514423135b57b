package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/thinkflow/internal/a2a"
	"github.com/zhengjr9/thinkflow/internal/config"
	"github.com/zhengjr9/thinkflow/internal/proxy"
	"github.com/zhengjr9/thinkflow/internal/relay"
	"github.com/zhengjr9/thinkflow/internal/upstream"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	slog.Info("starting thinkflow",
		"listen", cfg.ListenAddr,
		"reasoning_api_base", cfg.Reasoning.BaseURL,
		"reasoning_model", cfg.Reasoning.Model,
		"response_api_base", cfg.Response.BaseURL,
		"response_model", cfg.Response.Model,
		"a2a_enabled", cfg.A2AEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The proxy and the A2A agent share one relay and one upstream client.
	client := upstream.NewClient(cfg.UpstreamTimeout, cfg.UpstreamProxyURL)
	rl := relay.New(client, cfg.Reasoning, cfg.Response)

	srv := proxy.NewWithRelay(cfg, rl)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		relayAgent, err := a2a.New(a2a.AgentConfig{
			Name:        cfg.AgentName,
			Description: cfg.AgentDesc,
			Relay:       rl,
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			os.Exit(1)
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &loggingApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(relayAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("proxy shutdown error", "error", err)
		}
	case err := <-proxyErr:
		slog.Error("proxy server error", "error", err)
		os.Exit(1)
	case err := <-a2aErr:
		slog.Error("A2A server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// loggingApp wraps a BasicApp and installs a request-logging middleware on
// the Gorilla mux router the A2A app serves from.
type loggingApp struct {
	apps.BasicApp
}

// Run overrides the embedded Run so that apps.Run receives w as the app
// argument. Otherwise apps.Run would call SetupRouters on the inner app and
// the middleware would never be registered.
func (w *loggingApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *loggingApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(requestLogMiddleware)
	return nil
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("a2a request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
