// Package metrics records request metrics and serves them on an admin
// listener separate from the public port.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Unmatched labels requests answered by the framework's not-found handler.
const Unmatched = "unmatched"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry        *prometheus.Registry
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	reg.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware observes every request.  The error returned by the handler
// chain is rendered here so the recorded status is the one sent.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			route := c.Path()
			if status == http.StatusNotFound || route == "" {
				route = Unmatched
			}
			method := c.Request().Method
			m.RequestCount.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AdminServer serves GET /metrics on its own listener.
type AdminServer struct {
	e  *echo.Echo
	ln net.Listener
}

// NewAdminServer binds addr and prepares the /metrics route.
func NewAdminServer(addr string, m *Metrics) (*AdminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	return &AdminServer{e: e, ln: ln}, nil
}

// Addr returns the bound address.
func (a *AdminServer) Addr() net.Addr { return a.ln.Addr() }

// Serve blocks until the server is shut down.
func (a *AdminServer) Serve() error {
	if err := a.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the admin server.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.e.Shutdown(ctx)
}
