package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/pkg/navigation"
)

// NavigationHTTP lets the UI report route changes and pick up redirects
// forced by a session teardown.
type NavigationHTTP struct {
	Nav navigation.Navigator
}

func (h *NavigationHTTP) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"path": h.Nav.CurrentPath()})
}

func (h *NavigationHTTP) Navigate(c echo.Context) error {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if !strings.HasPrefix(req.Path, "/") || strings.HasPrefix(req.Path, "//") {
		return echo.NewHTTPError(http.StatusBadRequest, "path must be site-relative")
	}

	h.Nav.Navigate(req.Path)
	return c.JSON(http.StatusOK, echo.Map{"path": h.Nav.CurrentPath()})
}
