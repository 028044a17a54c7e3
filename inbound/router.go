package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	connectorcommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorquery "github.com/goliatone/go-connectors/query"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	PathCallback    = "/oauth/callback"
	PathAuthorize   = "/oauth/authorize"
	PathCredentials = "/credentials"
	PathHealth      = "/healthz"
	PathMetrics     = "/metrics"

	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20
)

type ErrorMapper func(err error) *goerrors.Error

// Authenticator turns a bearer credential into a principal. 401 and 403
// answers come back as connector errors.
type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (core.Principal, error)
}

// Handlers are the command and query handlers the routes execute.
type Handlers struct {
	CompleteCallback gocmd.Commander[connectorcommand.CompleteCallbackMessage]
	BeginConnect     gocmd.Commander[connectorcommand.BeginConnectMessage]
	WriteCredential  gocmd.Commander[connectorcommand.WriteCredentialMessage]
	CredentialStatus gocmd.Querier[connectorquery.CredentialStatusMessage, connectorquery.CredentialStatus]
}

type Option func(*routerConfig)

type routerConfig struct {
	logger         core.Logger
	errorMapper    ErrorMapper
	metrics        core.MetricsRecorder
	metricsHandler http.Handler
	healthCheck    func(context.Context) error
	allowedOrigins []string
	requestTimeout time.Duration
}

func WithLogger(logger core.Logger) Option {
	return func(cfg *routerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(cfg *routerConfig) {
		if mapper != nil {
			cfg.errorMapper = mapper
		}
	}
}

// WithMetricsRecorder counts requests per route and status.
func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(cfg *routerConfig) {
		if recorder != nil {
			cfg.metrics = recorder
		}
	}
}

// WithMetricsHandler mounts handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metricsHandler = handler
	}
}

func WithHealthCheck(check func(context.Context) error) Option {
	return func(cfg *routerConfig) {
		cfg.healthCheck = check
	}
}

// WithAllowedOrigins sets the origins answered by CORS. "*" allows any.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *routerConfig) {
		cfg.allowedOrigins = append([]string(nil), origins...)
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.requestTimeout = timeout
		}
	}
}

type router struct {
	auth     Authenticator
	handlers Handlers
	config   routerConfig
}

// NewRouter builds the connector HTTP surface.
func NewRouter(auth Authenticator, handlers Handlers, opts ...Option) (http.Handler, error) {
	if auth == nil {
		return nil, fmt.Errorf("inbound: authenticator is required")
	}
	switch {
	case handlers.CompleteCallback == nil:
		return nil, fmt.Errorf("inbound: callback command is required")
	case handlers.BeginConnect == nil:
		return nil, fmt.Errorf("inbound: connect command is required")
	case handlers.WriteCredential == nil:
		return nil, fmt.Errorf("inbound: credential command is required")
	case handlers.CredentialStatus == nil:
		return nil, fmt.Errorf("inbound: credential status query is required")
	}

	cfg := routerConfig{
		logger:         glog.Nop(),
		errorMapper:    core.MapError,
		metrics:        core.NopMetricsRecorder{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	rt := &router{auth: auth, handlers: handlers, config: cfg}

	mux := chi.NewRouter()
	mux.Use(chimiddleware.RequestID)
	mux.Use(rt.recoverer)
	mux.Use(rt.accessLog)
	mux.Use(newCORS(cfg.allowedOrigins).handler)

	mux.Get(PathHealth, rt.handleHealth)
	if cfg.metricsHandler != nil {
		mux.Method(http.MethodGet, PathMetrics, cfg.metricsHandler)
	}

	mux.Group(func(api chi.Router) {
		api.Use(chimiddleware.Timeout(cfg.requestTimeout))
		api.Get(PathCallback, rt.handleCallback)
		api.Post(PathAuthorize, rt.handleAuthorize)
		api.Post(PathCredentials, rt.handleWriteCredential)
		api.Get(PathCredentials+"/{org_id}/{provider}", rt.handleCredentialStatus)
	})
	return mux, nil
}

func (rt *router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.config.healthCheck != nil {
		if err := rt.config.healthCheck(r.Context()); err != nil {
			rt.config.logger.WithContext(r.Context()).Warn("health check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *router) authenticate(w http.ResponseWriter, r *http.Request) (core.Principal, bool) {
	principal, err := rt.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		rt.writeError(w, r, err)
		return core.Principal{}, false
	}
	return principal, true
}

func (rt *router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := envelope(rt.config.errorMapper, err)
	logger := rt.config.logger.WithContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"status", status,
		"text_code", body.Error.TextCode,
		"request_id", chimiddleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", append(args, "error", err.Error())...)
	} else {
		logger.Debug("request rejected", args...)
	}
	writeJSON(w, status, body)
}

func (rt *router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				rt.writeError(w, r, fmt.Errorf("inbound: panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (rt *router) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		tags := map[string]string{
			"method": r.Method,
			"route":  route,
			"status": fmt.Sprintf("%d", status),
		}
		elapsed := time.Since(startedAt)
		rt.config.metrics.IncCounter(r.Context(), "connectors.http.requests.total", 1, tags)
		rt.config.metrics.ObserveHistogram(r.Context(), "connectors.http.request.duration_ms", float64(elapsed.Milliseconds()), tags)
		if route == PathHealth || route == PathMetrics {
			return
		}
		rt.config.logger.WithContext(r.Context()).Info("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}
