// Package server mounts the scheduling REST API, the MCP tools and the health probes
// on one HTTP listener.
package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/takt/internal/adapters/server/common"
	"github.com/hylla/takt/internal/adapters/server/httpapi"
	"github.com/hylla/takt/internal/adapters/server/mcpapi"
)

const (
	defaultBindAddress = "127.0.0.1:8080"
	defaultAPIEndpoint = "/api/v1"
	defaultMCPEndpoint = "/mcp"

	shutdownGrace   = 5 * time.Second
	readinessBudget = 2 * time.Second
)

// ErrEndpointOverlap is returned when the API and MCP mounts would shadow each other.
var ErrEndpointOverlap = errors.New("api and mcp endpoints overlap")

// Config names the listener and mount points of one takt server.
type Config struct {
	HTTPBind      string
	APIEndpoint   string
	MCPEndpoint   string
	ServerName    string
	ServerVersion string
}

// Logger receives one line per served request and lifecycle event.
type Logger interface {
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Dependencies are the application ports the transports call into.
type Dependencies struct {
	Schedules common.SchedulingService
	Catalog   common.CatalogService
	Readiness common.ReadinessChecker
	Logger    Logger
}

// NewHandler builds the root mux and returns the config it settled on.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Schedules == nil {
		return nil, Config{}, errors.New("scheduling service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	tools, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		EndpointPath:  cfg.MCPEndpoint,
	}, deps.Schedules)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}
	api := http.StripPrefix(cfg.APIEndpoint, httpapi.NewHandler(deps.Schedules, deps.Catalog))

	status := healthStatus{Service: cfg.ServerName, Version: cfg.ServerVersion}
	mux := http.NewServeMux()
	mux.Handle("/healthz", status.live())
	mux.Handle("/readyz", status.ready(deps.Readiness))
	mux.Handle(cfg.MCPEndpoint, tools)
	mux.Handle(cfg.APIEndpoint, api)
	mux.Handle(cfg.APIEndpoint+"/", api)
	return accessLog(logger, mux), cfg, nil
}

// Run listens on cfg.HTTPBind and serves until ctx ends, then drains in-flight requests.
// Bind failures are returned before any request is accepted.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	handler, cfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	listener, err := net.Listen("tcp", cfg.HTTPBind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPBind, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve after shutdown: %w", err)
	}
	return nil
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}
	cfg.APIEndpoint = mountPath(cfg.APIEndpoint, defaultAPIEndpoint)
	cfg.MCPEndpoint = mountPath(cfg.MCPEndpoint, defaultMCPEndpoint)
	if underMount(cfg.APIEndpoint, cfg.MCPEndpoint) || underMount(cfg.MCPEndpoint, cfg.APIEndpoint) {
		return Config{}, fmt.Errorf("%w: %s and %s", ErrEndpointOverlap, cfg.APIEndpoint, cfg.MCPEndpoint)
	}
	cfg.ServerName = cmp.Or(strings.TrimSpace(cfg.ServerName), "takt")
	cfg.ServerVersion = cmp.Or(strings.TrimSpace(cfg.ServerVersion), "dev")
	return cfg, nil
}

// mountPath cleans p to "/a/b" form; blank or root paths take fallback.
func mountPath(p, fallback string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return fallback
	}
	return "/" + p
}

// underMount reports whether path equals mount or lies below it.
func underMount(mount, path string) bool {
	return path == mount || strings.HasPrefix(path, mount+"/")
}

type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

func (h healthStatus) live() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.write(w, http.StatusOK, nil)
	})
}

// ready answers 503 while the schedule store does not answer a ping.
func (h healthStatus) ready(checker common.ReadinessChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			h.write(w, http.StatusOK, nil)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessBudget)
		defer cancel()
		if err := checker.Ping(ctx); err != nil {
			h.write(w, http.StatusServiceUnavailable, err)
			return
		}
		h.write(w, http.StatusOK, nil)
	})
}

func (h healthStatus) write(w http.ResponseWriter, code int, cause error) {
	h.Status = "ok"
	if cause != nil {
		h.Status = "unavailable"
		h.Error = cause.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(h)
}

// statusRecorder keeps the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps MCP event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// accessLog logs one line per request; server errors are logged as warnings.
func accessLog(logger Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		keyvals := []any{"method", r.Method, "path", r.URL.Path, "status", rec.code, "elapsed", time.Since(started)}
		if rec.code >= http.StatusInternalServerError {
			logger.Warn("request failed", keyvals...)
			return
		}
		logger.Info("request served", keyvals...)
	})
}
