package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Session     *SessionHTTP
	Cart        *CartHTTP
	Preferences *PreferencesHTTP
	Navigation  *NavigationHTTP
	// Proxy serves ProxyPrefix/*; nil leaves it unrouted
	Proxy echo.HandlerFunc
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.Session.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s := e.Group("/session")
	s.GET("", d.Session.Get)
	s.POST("/login", d.Session.Login)
	s.POST("/logout", d.Session.Logout)

	w := e.Group("/wishlist")
	w.POST("/reload", d.Session.ReloadWishlist)
	w.POST("/:id/toggle", d.Session.ToggleWishlist)

	cart := e.Group("/cart")
	cart.GET("", d.Cart.Get)
	cart.GET("/events", d.Cart.Events)
	cart.POST("/items", d.Cart.AddItem, d.Cart.GuestOnly)
	cart.PUT("/items/:id", d.Cart.SetQuantity, d.Cart.GuestOnly)
	cart.DELETE("/items/:id", d.Cart.RemoveItem, d.Cart.GuestOnly)
	cart.DELETE("", d.Cart.Clear, d.Cart.GuestOnly)

	e.GET("/navigation", d.Navigation.Get)
	e.POST("/navigation", d.Navigation.Navigate)

	e.GET("/preferences/language", d.Preferences.GetLanguage)
	e.PUT("/preferences/language", d.Preferences.SetLanguage)

	if d.Proxy != nil {
		e.Any(ProxyPrefix+"/*", d.Proxy)
	}
}
