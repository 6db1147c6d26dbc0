// Package server serves the static application bundle that hosts a module.
//
// Every response carries Cache-Control: no-cache so a rebuilt module is picked
// up on the next load. Paths that do not name a bundle file fall back to the
// index page, which lets the loaded application own client-side routing.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/bootstrap"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/metrics"
)

// Config holds the bundle server settings.
type Config struct {
	Host string
	Dir  string
	// Prefix mounts the bundle under a path such as "/admin".
	Prefix string
	// Index is the fallback document inside Dir.
	Index          string
	AllowedOrigins []string
	Manifest       Manifest
	// KeepAlive is how long idle connections stay open.
	KeepAlive       time.Duration
	ShutdownTimeout time.Duration
	Port            int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and lifecycle logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records requests on m and exposes g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithState reports a bootstrap state on /healthz.
func WithState(fn func() bootstrap.State) Option {
	return func(s *Server) {
		s.state = fn
	}
}

// Server serves the bundle directory.
type Server struct {
	router   *mux.Router
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	state    func() bootstrap.State
	cfg      Config
}

// New creates a bundle server. Dir must be set.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Dir == "" {
		return nil, errors.InvalidInput(errors.PhaseServe, "bundle directory not set")
	}
	if cfg.Index == "" {
		cfg.Index = "index.html"
	}
	cfg.Prefix = "/" + strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "/" {
		cfg.Prefix = ""
	}

	s := newServer(cfg, opts)
	s.setupRoutes()
	return s, nil
}

// NewStatus creates a server that answers only /healthz and, with WithMetrics,
// /metrics. Dir and the bundle settings in cfg are ignored.
func NewStatus(cfg Config, opts ...Option) *Server {
	cfg.Dir = ""
	s := newServer(cfg, opts)
	s.router.Use(s.accessLogMiddleware)
	s.statusRoutes()
	return s
}

func newServer(cfg Config, opts []Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		router: mux.NewRouter(),
		logger: zap.NewNop(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.accessLogMiddleware)
	s.router.Use(noCacheMiddleware)
	s.router.Use(s.corsMiddleware)

	s.statusRoutes()
	s.router.HandleFunc(s.cfg.Prefix+"/manifest.json", s.manifest).
		Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	s.router.PathPrefix("/").Handler(&staticHandler{
		dir:    s.cfg.Dir,
		index:  s.cfg.Index,
		prefix: s.cfg.Prefix,
	})
}

func (s *Server) statusRoutes() {
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return errors.Wrap(errors.PhaseServe, errors.KindUnreachable, err, "listen "+s.Addr())
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       s.cfg.KeepAlive,
	}
	if s.cfg.KeepAlive < 0 {
		srv.SetKeepAlivesEnabled(false)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	if s.cfg.Dir == "" {
		s.logger.Info("serving status endpoints", zap.String("addr", ln.Addr().String()))
	} else {
		s.logger.Info("serving bundle",
			zap.String("addr", ln.Addr().String()),
			zap.String("dir", s.cfg.Dir),
			zap.String("prefix", s.cfg.Prefix))
	}

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(errors.PhaseServe, errors.KindUnreachable, err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server", zap.String("addr", ln.Addr().String()))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.PhaseServe, errors.KindUnreachable, err, "shutdown")
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(errors.PhaseServe, errors.KindUnreachable, err, "serve")
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.state != nil {
		state := s.state()
		body["state"] = state.String()
		if state == bootstrap.Failed {
			body["status"] = "failed"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	m := s.cfg.Manifest
	if m.Scope == "" && s.cfg.Prefix != "" {
		m.Scope = s.cfg.Prefix
	}
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
