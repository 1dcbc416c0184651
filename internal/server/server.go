// Package server assembles the mock HTTP server: the mock listener that
// answers configured routes, the /stop path, and the optional admin listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vivars7/rpcmock/internal/audit"
	"github.com/vivars7/rpcmock/internal/config"
	"github.com/vivars7/rpcmock/internal/ctxkeys"
	mockerrors "github.com/vivars7/rpcmock/internal/errors"
	"github.com/vivars7/rpcmock/internal/health"
	"github.com/vivars7/rpcmock/internal/lifecycle"
	"github.com/vivars7/rpcmock/internal/protocol"
	"github.com/vivars7/rpcmock/internal/ratelimit"
	"github.com/vivars7/rpcmock/internal/response"
	"github.com/vivars7/rpcmock/internal/router"
)

// maxLoggedBody caps request bodies echoed in debug logs.
const maxLoggedBody = 512

// Server is the rpcmock HTTP server.
type Server struct {
	cfg        *config.Config
	configPath string
	version    string

	mu            sync.Mutex
	httpServer    *http.Server
	adminServer   *http.Server
	listener      net.Listener // if non-nil, Start uses this instead of creating one
	adminListener net.Listener

	router        atomic.Pointer[router.Router]
	lifecycle     *lifecycle.Controller
	limiter       *ratelimit.Global // nil when listen.rate_limit is 0
	healthHandler *health.Handler
	auditLogger   *audit.Logger
	metrics       *audit.Metrics
	logger        *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger replaces the logger built from the logging section.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithListener makes Start serve on ln instead of opening listen.host:port.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// WithAdminListener makes Start serve the admin endpoints on ln.
func WithAdminListener(ln net.Listener) Option {
	return func(s *Server) { s.adminListener = ln }
}

// WithConfigPath records where the configuration came from, for the startup banner.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// New creates a Server from a validated configuration. cfg must not be
// modified afterwards.
func New(cfg *config.Config, version string, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		version:   version,
		lifecycle: lifecycle.New(),
		metrics:   audit.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = buildLogger(cfg)
	}
	s.auditLogger = audit.NewLogger(s.logger)

	rtr, err := router.New(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	s.router.Store(rtr)

	if cfg.Listen.RateLimit > 0 {
		s.limiter = ratelimit.NewGlobal(cfg.Listen.RateLimit)
		s.limiter.OnReject(func(r *http.Request) {
			if entry, ok := ctxkeys.AccessEntryFrom(r.Context()); ok {
				entry.Status = mockerrors.ErrRateLimited.Code
			}
			s.metrics.RecordRateLimited()
			s.logger.Warn("rate limited", "method", r.Method, "path", r.URL.Path)
		})
	}

	s.healthHandler = health.NewHandler(s.lifecycle, func() int { return s.router.Load().Len() }, version)
	s.metrics.SetBuildInfo(version, runtime.Version())
	s.metrics.SetRoutes(rtr.Len())

	for _, w := range config.Warnings(cfg) {
		s.logger.Warn(w)
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Lifecycle returns the controller that tracks Running/Stopping/Stopped.
func (s *Server) Lifecycle() *lifecycle.Controller {
	return s.lifecycle
}

// OnConfigReload swaps in a router built from newCfg. Only routes are
// reloadable; listener settings keep their startup values.
func (s *Server) OnConfigReload(newCfg *config.Config) error {
	rtr, err := router.New(newCfg.Routes)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}
	s.router.Store(rtr)
	s.metrics.SetRoutes(rtr.Len())
	return nil
}

// ReloadResult records the outcome of a configuration reload in metrics.
// It matches the signature of config.Reloader.SetResultHook.
func (s *Server) ReloadResult(cfg *config.Config, err error) {
	s.metrics.RecordConfigReload(err == nil)
	if err == nil {
		s.metrics.SetConfigReloadTime(time.Now())
	}
}

// Start begins listening and serving. It blocks until the stop path is
// requested, ctx is canceled, or a listener fails, and then shuts down
// gracefully within shutdown.timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.handler()}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	var adminSrv *http.Server
	var adminLn net.Listener
	if s.cfg.Admin.Enabled || s.adminListener != nil {
		adminLn, err = s.listenAdmin()
		if err != nil {
			ln.Close()
			return err
		}
		adminSrv = &http.Server{Handler: s.adminHandler()}
		s.mu.Lock()
		s.adminServer = adminSrv
		s.mu.Unlock()
	}

	s.logBanner(ln.Addr())
	if adminLn != nil {
		s.logger.Info("admin endpoints listening", "addr", adminLn.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if adminSrv != nil {
		g.Go(func() error {
			if err := adminSrv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-s.lifecycle.Stopping():
		case <-gctx.Done():
			s.lifecycle.RequestStop("shutdown signal")
		}
		s.logger.Info("shutting down", "reason", s.lifecycle.Reason())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown.Timeout.Duration)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	s.lifecycle.MarkStopped()
	if err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Shutdown stops both listeners and waits for in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycle.RequestStop("shutdown")

	s.mu.Lock()
	hs, as := s.httpServer, s.adminServer
	s.mu.Unlock()

	var errs []error
	if hs != nil {
		if err := hs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if as != nil {
		if err := as.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) listen() (net.Listener, error) {
	if s.listener != nil {
		return s.listener, nil
	}
	addr := net.JoinHostPort(s.cfg.Listen.Host, strconv.Itoa(s.cfg.Listen.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	if s.cfg.Listen.MaxConnections > 0 {
		ln = newLimitedListener(ln, s.cfg.Listen.MaxConnections)
	}
	return ln, nil
}

func (s *Server) listenAdmin() (net.Listener, error) {
	if s.adminListener != nil {
		return s.adminListener, nil
	}
	addr := net.JoinHostPort(s.cfg.Admin.Host, strconv.Itoa(s.cfg.Admin.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening admin on %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) logBanner(addr net.Addr) {
	attrs := []any{
		"url", "http://" + addr.String(),
		"routes", s.router.Load().Len(),
		"pid", os.Getpid(),
		"version", s.version,
	}
	if s.configPath != "" {
		attrs = append(attrs, "config", s.configPath)
	}
	s.logger.Info("mock server running", attrs...)
	s.logger.Info("press Ctrl+C to stop")
}

// handler builds the mock listener's handler. No ServeMux is involved so that
// paths reach the matcher exactly as sent.
func (s *Server) handler() http.Handler {
	var mock http.Handler = http.HandlerFunc(s.serveMock)
	if s.limiter != nil {
		mock = s.limiter.Process(mock)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == config.StopPath {
			s.handleStop(w, r)
			return
		}

		r, entry := s.begin(r)
		defer s.finish(r, entry)

		if !s.lifecycle.Running() {
			entry.Status = mockerrors.ErrShuttingDown.Code
			w.Header().Set("Connection", "close")
			mockerrors.WriteHTTPError(w, mockerrors.ErrShuttingDown)
			return
		}
		if !allowedMethod(r.Method) {
			entry.Status = mockerrors.ErrMethodNotAllowed.Code
			w.Header().Set("Allow", "GET, POST, PUT, DELETE, PATCH")
			mockerrors.WriteHTTPError(w, mockerrors.ErrMethodNotAllowed)
			return
		}
		mock.ServeHTTP(w, r)
	})
}

// adminHandler serves health probes and metrics on the admin listener.
func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.healthHandler)
	mux.Handle("/readyz", s.healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// handleStop answers the stop path with an empty 200 and then asks the
// server to shut down. Shutdown waits for this response to complete.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
	if s.lifecycle.RequestStop("stop path") {
		s.logger.Info("stop requested", "method", r.Method, "remote", r.RemoteAddr)
	}
}

// begin attaches a fresh access entry to the request. Every request except
// the stop path gets one, and with it an access line from finish.
func (s *Server) begin(r *http.Request) (*http.Request, *ctxkeys.AccessEntry) {
	s.metrics.IncrInflight()
	entry := ctxkeys.NewAccessEntry(uuid.NewString(), r.Method, r.URL.Path, time.Now())
	return r.WithContext(ctxkeys.WithAccessEntry(r.Context(), entry)), entry
}

// serveMock decodes the body, matches it and writes the configured response.
// It runs behind handler, which has already attached the access entry.
func (s *Server) serveMock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, _ := ctxkeys.AccessEntryFrom(ctx)

	body, err := protocol.Decode(r)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedJSON) {
			s.logger.Warn("malformed JSON body", "request_id", entry.RequestID, "path", r.URL.Path, "error", err)
			entry.BodyKind = string(protocol.KindJSON)
			entry.Status = mockerrors.ErrMalformedBody.Code
			mockerrors.WriteHTTPError(w, mockerrors.ErrMalformedBody)
			return
		}
		s.logger.Warn("reading request body failed", "request_id", entry.RequestID, "error", err)
		entry.Status = mockerrors.ErrUnreadableBody.Code
		mockerrors.WriteHTTPError(w, mockerrors.ErrUnreadableBody)
		return
	}
	entry.BodyKind = string(body.Kind())
	if v, ok := body.JSON(); ok {
		entry.RPCMethod, _ = protocol.RPCMethod(v)
	}

	match, err := s.router.Load().Match(r.Method, r.URL.Path, body)
	if err != nil {
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("no match",
				"request_id", entry.RequestID,
				"reason", err.Error(),
				"body", audit.TruncateBody(loggedBody(body), maxLoggedBody),
			)
		}
		entry.Path = r.URL.RequestURI()
		entry.Status = mockerrors.ErrNoRoute.Code
		s.metrics.RecordUnmatched()
		mockerrors.WriteNotFound(w, r.URL.RequestURI())
		return
	}

	entry.Route = match.Route
	entry.RouteIdx = match.RouteIndex
	entry.RuleIdx = match.RuleIndex
	s.metrics.RecordMatch(match.Route, match.RuleIndex)

	rendered := response.Render(*match.Response)
	entry.Status = rendered.Status
	if err := response.Write(ctx, w, rendered); err != nil {
		s.logger.Debug("response not written", "request_id", entry.RequestID, "error", err)
	}
}

func (s *Server) finish(r *http.Request, entry *ctxkeys.AccessEntry) {
	s.metrics.DecrInflight()
	s.metrics.RecordRequest(entry.Method, entry.Status, time.Since(entry.StartTime))
	s.auditLogger.LogRequest(r.Context())
}

// loggedBody returns the request body as it should appear in logs. JSON
// bodies are re-encoded from the decoded value.
func loggedBody(body protocol.Body) []byte {
	if raw, ok := body.Raw(); ok {
		return []byte(raw)
	}
	v, _ := body.JSON()
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprint(v))
	}
	return data
}

func allowedMethod(m string) bool {
	for _, sm := range config.SupportedMethods {
		if m == sm {
			return true
		}
	}
	return false
}

// buildLogger creates an slog.Logger based on configuration.
func buildLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var output *os.File
	switch cfg.Logging.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

// limitedListener wraps a net.Listener to limit maximum concurrent connections.
type limitedListener struct {
	net.Listener
	sem chan struct{}
}

// newLimitedListener creates a listener that limits concurrent connections.
func newLimitedListener(l net.Listener, maxConns int) net.Listener {
	return &limitedListener{
		Listener: l,
		sem:      make(chan struct{}, maxConns),
	}
}

// Accept waits for and returns the next connection, blocking if at limit.
func (l *limitedListener) Accept() (net.Conn, error) {
	l.sem <- struct{}{}
	c, err := l.Listener.Accept()
	if err != nil {
		<-l.sem
		return nil, err
	}
	return &limitedConn{Conn: c, sem: l.sem}, nil
}

// limitedConn wraps a net.Conn to release the semaphore slot on close.
type limitedConn struct {
	net.Conn
	sem    chan struct{}
	closed sync.Once
}

// Close releases the connection and frees the semaphore slot.
func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.closed.Do(func() { <-c.sem })
	return err
}
