package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Fixed page bodies.  Clients match on them byte for byte.
const (
	RootBody = "An awesome Kubernetes app with Flask!"
	APIBody  = "API Page"
)

// Root serves the landing page.
func Root(c echo.Context) error {
	return c.String(http.StatusOK, RootBody)
}

// API serves the API page.
func API(c echo.Context) error {
	return c.String(http.StatusOK, APIBody)
}
