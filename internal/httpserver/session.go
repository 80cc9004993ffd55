package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/session"
)

const (
	WarningCartMergeFailed = "cart_merge_failed"
	WarningSessionData     = "session_data_unavailable"
)

type SessionHTTP struct {
	Session *session.Manager
	Nav     navigation.Navigator
}

type sessionView struct {
	session.Snapshot
	Location string `json:"location"`
}

type loginResponse struct {
	Redirect    string      `json:"redirect"`
	MergedLines int         `json:"merged_lines"`
	Warnings    []string    `json:"warnings,omitempty"`
	Session     sessionView `json:"session"`
}

func (h *SessionHTTP) view() sessionView {
	return sessionView{Snapshot: h.Session.Snapshot(), Location: h.Nav.CurrentPath()}
}

func (h *SessionHTTP) Ready(c echo.Context) error {
	if h.Session.Loading() {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (h *SessionHTTP) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.view())
}

func (h *SessionHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "session_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		From     string `json:"from"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		l.Warn("login_error", "status", 400, "reason", "missing_credentials")
		return echo.NewHTTPError(http.StatusBadRequest, "email and password required")
	}

	res, err := h.Session.SignIn(ctx, session.Credentials{Email: req.Email, Password: req.Password, From: req.From})
	if err != nil {
		return backendError(l, "login_error", err)
	}

	out := loginResponse{Redirect: res.Redirect, MergedLines: res.MergedLines}
	if res.CartMergeErr != nil {
		out.Warnings = append(out.Warnings, WarningCartMergeFailed)
	}
	if res.SessionErr != nil {
		out.Warnings = append(out.Warnings, WarningSessionData)
	}
	out.Session = h.view()

	l.Info("login_success", "status", 200, "redirect", res.Redirect, "warnings", len(out.Warnings))
	return c.JSON(http.StatusOK, out)
}

func (h *SessionHTTP) Logout(c echo.Context) error {
	h.Session.Logout(c.Request().Context())
	return c.JSON(http.StatusOK, h.view())
}

func (h *SessionHTTP) ReloadWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "wishlist_reload")

	if err := h.Session.LoadWishlist(ctx); err != nil {
		return backendError(l, "wishlist_reload_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"wishlist_ids": h.Session.Snapshot().WishlistIDs})
}

func (h *SessionHTTP) ToggleWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "wishlist_toggle")

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		l.Warn("wishlist_toggle_error", "status", 400, "reason", "bad_product_id")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	listed, err := h.Session.ToggleWishlist(ctx, id)
	if err != nil {
		return backendError(l, "wishlist_toggle_error", err)
	}

	l.Info("wishlist_toggled", "status", 200, "product_id", id, "in_wishlist", listed)
	return c.JSON(http.StatusOK, echo.Map{"product_id": id, "in_wishlist": listed})
}

// backendError maps session and backend failures to a response. Client
// errors from the backend keep their status and detail; anything else is a
// bad gateway.
func backendError(l *slog.Logger, event string, err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		l.Warn(event, "status", 401, "reason", "not_authenticated")
		return echo.NewHTTPError(http.StatusUnauthorized, "sign in required")
	}

	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		l.Warn(event, "status", apiErr.Status, "error", err)
		detail := apiErr.Detail
		if detail == "" {
			detail = http.StatusText(apiErr.Status)
		}
		return echo.NewHTTPError(apiErr.Status, detail)
	}
	if errors.Is(err, apiclient.ErrRefreshFailed) || errors.Is(err, apiclient.ErrNoRefreshToken) {
		l.Warn(event, "status", 401, "reason", "session_expired", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	}

	l.Error(event, "status", 502, "error", err)
	return echo.NewHTTPError(http.StatusBadGateway, "backend unavailable")
}
