package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/pkg/guestcart"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/session"
)

type CartHTTP struct {
	Cart    *guestcart.Store
	Session *session.Manager
}

type cartView struct {
	Items []guestcart.Item `json:"items"`
	Count int              `json:"count"`
	Total float64          `json:"total"`
}

func (h *CartHTTP) view(c echo.Context) (cartView, error) {
	items, err := h.Cart.Items(c.Request().Context())
	if err != nil {
		return cartView{}, err
	}
	v := cartView{Items: items}
	for _, it := range items {
		v.Count += it.Quantity
		v.Total += it.Price * float64(it.Quantity)
	}
	return v, nil
}

func (h *CartHTTP) respond(c echo.Context, status int, event string) error {
	v, err := h.view(c)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error(event, "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(status, v)
}

// GuestOnly closes the guest cart while someone is signed in; their cart
// lives on the server then.
func (h *CartHTTP) GuestOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.Session.IsAuthenticated() {
			logging.FromContext(c.Request().Context()).Warn("guest_cart_closed", "status", 409)
			return echo.NewHTTPError(http.StatusConflict, "guest cart is not used while signed in")
		}
		return next(c)
	}
}

func (h *CartHTTP) Get(c echo.Context) error {
	return h.respond(c, http.StatusOK, "get_cart_error")
}

func (h *CartHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart_add")

	var p guestcart.Product
	if err := c.Bind(&p); err != nil {
		l.Warn("add_to_cart_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if p.ID <= 0 {
		l.Warn("add_to_cart_error", "status", 400, "reason", "missing_product_id")
		return echo.NewHTTPError(http.StatusBadRequest, "id required")
	}

	if err := h.Cart.AddItem(ctx, p); err != nil {
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("item_added", "product_id", p.ID)
	return h.respond(c, http.StatusCreated, "add_to_cart_error")
}

func (h *CartHTTP) SetQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart_set_quantity")

	id, err := productID(c)
	if err != nil {
		l.Warn("set_quantity_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("set_quantity_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Cart.SetQuantity(ctx, id, req.Quantity); err != nil {
		if errors.Is(err, guestcart.ErrInvalidQuantity) {
			l.Warn("set_quantity_error", "status", 400, "quantity", req.Quantity)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("set_quantity_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return h.respond(c, http.StatusOK, "set_quantity_error")
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart_remove")

	id, err := productID(c)
	if err != nil {
		l.Warn("remove_from_cart_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := h.Cart.RemoveItem(ctx, id); err != nil {
		l.Error("remove_from_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return h.respond(c, http.StatusOK, "remove_from_cart_error")
}

func (h *CartHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart_clear")

	if err := h.Cart.Clear(ctx); err != nil {
		l.Error("clear_cart_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("cart_cleared")
	return c.NoContent(http.StatusNoContent)
}

// Events streams the guest cart badge as server-sent events: one event on
// connect and one after every change.
func (h *CartHTTP) Events(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart_events")

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// the stream outlives the server's write timeout
	_ = http.NewResponseController(w.Writer).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)

	changes := h.Cart.Subscribe(ctx)
	if err := h.writeEvent(c); err != nil {
		l.Debug("cart_events_closed", "error", err)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := h.writeEvent(c); err != nil {
				l.Debug("cart_events_closed", "error", err)
				return nil
			}
		}
	}
}

func (h *CartHTTP) writeEvent(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	data, err := json.Marshal(echo.Map{"count": v.Count, "lines": len(v.Items)})
	if err != nil {
		return err
	}
	w := c.Response()
	if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func productID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("product id must be positive: %d", id)
	}
	return id, nil
}
