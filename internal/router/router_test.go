package router

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho() *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, DefaultTable())
	return e
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDefaultTableIsStaticallyInspectable(t *testing.T) {
	table := DefaultTable()
	require.Equal(t, 3, table.Len())

	var paths []string
	for _, r := range table.Routes() {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotNil(t, r.Handler)
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"/", "/api", "/health"}, paths)

	r, ok := table.Lookup(http.MethodGet, "/health")
	require.True(t, ok)
	assert.Equal(t, "health", r.Name)

	r, ok = table.Lookup(http.MethodHead, "/api")
	require.True(t, ok)
	assert.Equal(t, "api", r.Name)

	_, ok = table.Lookup(http.MethodPost, "/health")
	assert.False(t, ok)
	_, ok = table.Lookup(http.MethodGet, "/nonexistent")
	assert.False(t, ok)
}

func TestTableIsImmutable(t *testing.T) {
	src := []Route{{Method: http.MethodGet, Path: "/a", Name: "a"}}
	table := NewTable(src...)
	src[0].Path = "/changed"

	routes := table.Routes()
	routes[0].Path = "/also-changed"

	_, ok := table.Lookup(http.MethodGet, "/a")
	assert.True(t, ok)
}

func TestDefinedRoutes(t *testing.T) {
	e := newEcho()
	tests := []struct {
		path string
		body string
	}{
		{"/", "An awesome Kubernetes app with Flask!"},
		{"/api", "API Page"},
		{"/health", "Healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(e, http.MethodGet, tt.path)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
			assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextPlain)
		})
	}
}

func TestUnknownPathsAreNotFound(t *testing.T) {
	e := newEcho()
	for _, p := range []string{"/nonexistent", "/api/", "/health/live", "/API", "/api/v1"} {
		rec := serve(e, http.MethodGet, p)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
	rec := serve(e, http.MethodDelete, "/nonexistent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOtherMethodsOnDefinedPaths(t *testing.T) {
	e := newEcho()
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		for _, p := range []string{"/", "/api", "/health"} {
			rec := serve(e, m, p)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", m, p)
			assert.Contains(t, rec.Header().Get(echo.HeaderAllow), http.MethodGet, "%s %s", m, p)
		}
	}
}

func TestRoutesAreIdempotent(t *testing.T) {
	e := newEcho()
	for i := 0; i < 20; i++ {
		rec := serve(e, http.MethodGet, "/api")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "API Page", rec.Body.String())
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := serve(e, http.MethodGet, "/health")
			if rec.Code != http.StatusOK || rec.Body.String() != "Healthy" {
				errs <- rec.Body.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for body := range errs {
		t.Errorf("unexpected concurrent response %q", body)
	}
}

func TestHeadOnDefinedRoutes(t *testing.T) {
	e := newEcho()
	for _, p := range []string{"/", "/api", "/health"} {
		rec := serve(e, http.MethodHead, p)
		assert.Equal(t, http.StatusOK, rec.Code, "HEAD %s", p)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextPlain, "HEAD %s", p)
	}
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodHead, "/nonexistent").Code)
}
