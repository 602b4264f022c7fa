package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/kube-responder/internal/config"
	"github.com/iliyamo/kube-responder/internal/metrics"
	q "github.com/iliyamo/kube-responder/internal/queue"
	"github.com/iliyamo/kube-responder/internal/router"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []q.LifecycleEvent
}

func (p *recordingPublisher) PublishLifecycle(_ context.Context, ev q.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) states() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.State)
	}
	return out
}

func testConfig(port string) config.Config {
	cfg := config.Default()
	cfg.Env = "test"
	cfg.Port = port
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func baseURL(t *testing.T, s *Server) string {
	t.Helper()
	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	return "http://127.0.0.1:" + port
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerInProcess(t *testing.T) {
	s := New(testConfig("0"), router.DefaultTable())
	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{http.MethodGet, "/", http.StatusOK, "An awesome Kubernetes app with Flask!"},
		{http.MethodGet, "/api", http.StatusOK, "API Page"},
		{http.MethodGet, "/health", http.StatusOK, "Healthy"},
		{http.MethodGet, "/nonexistent", http.StatusNotFound, ""},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Echo().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
	assert.Equal(t, Stopped, s.State())
}

func TestServerLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(testConfig("0"), router.DefaultTable(), WithPublisher(pub), WithLogger(zap.NewNop()))
	assert.Equal(t, Stopped, s.State())

	require.NoError(t, s.Start())
	assert.Equal(t, Running, s.State())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)

	base := baseURL(t, s)
	status, body := get(t, base+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Healthy", body)

	status, body = get(t, base+"/api")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "API Page", body)

	status, _ = get(t, base+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, status)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, Stopped, s.State())

	require.Eventually(t, func() bool { return len(pub.states()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"running", "stopped"}, pub.states())
}

func TestServerConcurrentRequestsAreIdentical(t *testing.T) {
	s := New(testConfig("0"), router.DefaultTable())
	require.NoError(t, s.Start())
	defer func() { _ = s.Shutdown(context.Background()) }()

	url := baseURL(t, s) + "/"
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(url)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK || string(body) != "An awesome Kubernetes app with Flask!" {
				errs <- fmt.Errorf("got %d %q", resp.StatusCode, body)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStartFailsFastWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := fmt.Sprint(ln.Addr().(*net.TCPAddr).Port)

	s := New(testConfig(port), router.DefaultTable())
	start := time.Now()
	err = s.Start()
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "bind failure must not retry")

	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, ":"+port, bindErr.Addr)
	assert.ErrorIs(t, err, ErrBind)
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, ":"+port, s.Addr(), "no fallback to another port")
}

func TestStartServerReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := fmt.Sprint(ln.Addr().(*net.TCPAddr).Port)

	err = StartServer(context.Background(), port, false)
	assert.ErrorIs(t, err, ErrBind)
}

func TestStartServerRejectsInvalidPort(t *testing.T) {
	err := StartServer(context.Background(), "not-a-port", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBind)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	s := New(testConfig("0"), router.DefaultTable())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.State() == Running }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, Stopped, s.State())
}

func TestShutdownBeforeStartIsNoop(t *testing.T) {
	s := New(testConfig("0"), router.DefaultTable())
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServerRecordsMetrics(t *testing.T) {
	m := metrics.New("responder")
	s := New(testConfig("0"), router.DefaultTable(), WithMetrics(m))
	for _, p := range []string{"/health", "/nope"} {
		s.Echo().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "responder_http_requests_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
}
