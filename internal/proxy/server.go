package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/zhengjr9/thinkflow/internal/adapter/anthropic"
	"github.com/zhengjr9/thinkflow/internal/adapter/gemini"
	"github.com/zhengjr9/thinkflow/internal/adapter/openai"
	"github.com/zhengjr9/thinkflow/internal/config"
	"github.com/zhengjr9/thinkflow/internal/metrics"
	"github.com/zhengjr9/thinkflow/internal/relay"
	"github.com/zhengjr9/thinkflow/internal/upstream"
)

// Server is the relay HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config.
func New(cfg *config.Config) *Server {
	client := upstream.NewClient(cfg.UpstreamTimeout, cfg.UpstreamProxyURL)
	return NewWithRelay(cfg, relay.New(client, cfg.Reasoning, cfg.Response))
}

// NewWithRelay constructs a Server around an existing Relay.
func NewWithRelay(cfg *config.Config, rl *relay.Relay) *Server {
	oa := openai.New(cfg.ModelName)
	gm := &relayHandler{relay: rl, adapter: gemini.New(cfg.ModelName)}

	mux := http.NewServeMux()

	// OpenAI
	mux.Handle("POST /v1/chat/completions", &relayHandler{relay: rl, adapter: oa})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		_ = oa.WriteModels(w)
	})

	// Anthropic
	mux.Handle("POST /v1/messages", &relayHandler{relay: rl, adapter: anthropic.New(cfg.ModelName)})

	// Gemini: ServeMux wildcards cannot be mixed with literal suffixes in the same
	// segment (e.g. "{model}:generateContent" is invalid). Use a prefix catch-all
	// and match the method suffix inside the handler.
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		if !gemini.Match(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		gm.ServeHTTP(w, r)
	})

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// No WriteTimeout: a relayed stream runs as long as both stages do.
			IdleTimeout: 60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
