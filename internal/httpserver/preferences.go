package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const DefaultLanguage = "en"

// text direction per supported language
var languages = map[string]string{
	"en": "ltr",
	"ar": "rtl",
}

type PreferencesHTTP struct {
	KV storage.KV
}

type languageView struct {
	Language string `json:"language"`
	Dir      string `json:"dir"`
}

func (h *PreferencesHTTP) GetLanguage(c echo.Context) error {
	ctx := c.Request().Context()

	lang, err := h.KV.Get(ctx, storage.KeyLanguage)
	if errors.Is(err, storage.ErrNotFound) {
		lang = DefaultLanguage
	} else if err != nil {
		logging.FromContext(ctx).Error("get_language_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if _, ok := languages[lang]; !ok {
		lang = DefaultLanguage
	}
	return c.JSON(http.StatusOK, languageView{Language: lang, Dir: languages[lang]})
}

func (h *PreferencesHTTP) SetLanguage(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "set_language")

	var req struct {
		Language string `json:"language"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("set_language_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	dir, ok := languages[req.Language]
	if !ok {
		l.Warn("set_language_error", "status", 400, "language", req.Language)
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported language")
	}

	if err := h.KV.Set(ctx, storage.KeyLanguage, req.Language); err != nil {
		l.Error("set_language_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, languageView{Language: req.Language, Dir: dir})
}
