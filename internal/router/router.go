// Package router defines the route table and binds it to Echo.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/kube-responder/internal/handler"
)

// Route maps one (method, path) pair to a handler.
type Route struct {
	Method  string           // HTTP method, e.g. GET
	Path    string           // exact path, no parameters
	Name    string           // route name used in logs and metrics
	Handler echo.HandlerFunc // handler producing the response
}

// Table is an immutable set of routes.  It is built once at startup and
// handed to the listener; the zero value has no routes.
type Table struct {
	routes []Route
}

// NewTable copies routes into a Table.  Later changes to the slice do not
// affect the table.
func NewTable(routes ...Route) Table {
	return Table{routes: append([]Route(nil), routes...)}
}

// DefaultTable returns the service's three routes.  Every other path is left
// to Echo's not-found handler.
func DefaultTable() Table {
	return NewTable(
		Route{Method: http.MethodGet, Path: "/", Name: "root", Handler: handler.Root},
		Route{Method: http.MethodGet, Path: "/api", Name: "api", Handler: handler.API},
		Route{Method: http.MethodGet, Path: "/health", Name: "health", Handler: handler.Health},
	)
}

// Routes returns a copy of the table entries in registration order.
func (t Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Len reports the number of routes.
func (t Table) Len() int { return len(t.routes) }

// Lookup finds the route for an exact method and path match.  HEAD resolves
// to the GET route of the same path.
func (t Table) Lookup(method, path string) (Route, bool) {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	for _, r := range t.routes {
		if r.Method == method && r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// RegisterRoutes binds every entry of t on the provided Echo instance.  Each
// GET route also answers HEAD; net/http drops the body for HEAD responses.
func RegisterRoutes(e *echo.Echo, t Table) {
	for _, r := range t.routes {
		e.Add(r.Method, r.Path, r.Handler).Name = r.Name
		if r.Method == http.MethodGet {
			e.Add(http.MethodHead, r.Path, r.Handler).Name = r.Name
		}
	}
}
