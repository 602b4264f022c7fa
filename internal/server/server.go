// Package server owns the responder's listener and lifecycle: it binds the
// port, serves the route table and shuts down gracefully.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/kube-responder/internal/config"
	"github.com/iliyamo/kube-responder/internal/logger"
	"github.com/iliyamo/kube-responder/internal/metrics"
	"github.com/iliyamo/kube-responder/internal/middleware"
	q "github.com/iliyamo/kube-responder/internal/queue"
	"github.com/iliyamo/kube-responder/internal/router"
	"github.com/iliyamo/kube-responder/internal/service"
)

// State is the server lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRedis enables the rate limiter and response cache described by the
// given configs.  A nil client leaves both disabled.
func WithRedis(rdb *redis.Client, rl config.RateLimitConfig, cc config.CacheConfig) Option {
	return func(s *Server) {
		s.rdb = rdb
		s.rateCfg = rl
		s.cacheCfg = cc
	}
}

// WithPublisher sets where lifecycle events are sent.
func WithPublisher(p service.Publisher) Option {
	return func(s *Server) { s.pub = p }
}

// WithMetrics records request metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server serves a route table on one TCP port.
type Server struct {
	cfg      config.Config
	e        *echo.Echo
	log      *zap.Logger
	rdb      *redis.Client
	rateCfg  config.RateLimitConfig
	cacheCfg config.CacheConfig
	pub      service.Publisher
	metrics  *metrics.Metrics

	mu      sync.Mutex
	started bool
	ln      net.Listener
	done    chan struct{}
	err     error
	state   atomic.Int32
}

// New builds the Echo instance for table.  Nothing is bound until Start.
func New(cfg config.Config, table router.Table, opts ...Option) *Server {
	s := &Server{cfg: cfg, log: zap.NewNop(), pub: service.NopPublisher{}}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.Server.ReadHeaderTimeout = 10 * time.Second

	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(middleware.RequestLogger(s.log))
	e.Use(echomw.Recover())
	e.Use(middleware.NewTokenBucket(s.rateCfg, s.rdb, s.log))
	e.Use(middleware.NewRedisCache(s.cacheCfg, s.rdb, s.log))

	router.RegisterRoutes(e, table)
	s.e = e
	return s
}

// Echo exposes the underlying instance so tests can drive it in process.
func (s *Server) Echo() *echo.Echo { return s.e }

// State reports whether the server is serving.
func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the bound address while running, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr()
}

// Start binds the listener and serves in the background.  A failed bind
// returns a *BindError and leaves the server Stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	s.started = true
	s.ln = ln
	s.e.Listener = ln
	s.done = make(chan struct{})
	s.state.Store(int32(Running))

	go func() {
		err := s.e.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		// not closed by Serve when shutdown wins the race
		_ = ln.Close()
		s.err = err
		s.state.Store(int32(Stopped))
		close(s.done)
	}()

	s.log.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("debug", s.cfg.Debug),
	)
	go s.publish(Running, ln.Addr().String())
	return nil
}

// Run starts the server and blocks until ctx is cancelled or serving fails,
// then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.done:
		s.publish(Stopped, s.Addr())
		return s.err
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(sctx)
}

// Shutdown stops accepting connections and waits for in-flight requests.
// It is a no-op on a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	s.log.Info("shutting down")
	if err := s.e.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.publish(Stopped, s.Addr())
	return s.err
}

func (s *Server) publish(state State, addr string) {
	host, _ := os.Hostname()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev := q.NewLifecycleEvent(logger.ServiceName, state.String(), addr, s.cfg.Env, host)
	if err := s.pub.PublishLifecycle(ctx, ev); err != nil {
		s.log.Warn("lifecycle event not published", zap.String("state", state.String()), zap.Error(err))
	}
}

// StartServer serves the default route table on port until ctx is
// cancelled.  debug enables verbose diagnostics.  A port that cannot be
// bound yields a *BindError immediately.
func StartServer(ctx context.Context, port string, debug bool) error {
	cfg := config.Default()
	cfg.Port = port
	cfg.Debug = debug
	if err := config.ValidatePort(port); err != nil {
		return err
	}
	log := logger.New(cfg.Env, debug)
	defer func() { _ = log.Sync() }()
	return New(cfg, router.DefaultTable(), WithLogger(log)).Run(ctx)
}
