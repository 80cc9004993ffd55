package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const (
	ProxyPrefix  = "/api"
	maxProxyBody = 10 << 20
)

// NewBackendProxy forwards ProxyPrefix/* to the backend at target through
// rt, so every page of the UI gets bearer injection and silent refresh.
// Login and refresh are not reachable through it: tokens never leave this
// process.
func NewBackendProxy(target string, rt http.RoundTripper) (echo.HandlerFunc, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.Transport = rt

	origDirector := p.Director
	p.Director = func(req *http.Request) {
		originalHost := req.Host
		originalProto := "http"
		if req.TLS != nil {
			originalProto = "https"
		} else if xf := req.Header.Get("X-Forwarded-Proto"); xf != "" {
			originalProto = xf
		}

		req.URL.Path = strings.TrimPrefix(req.URL.Path, ProxyPrefix)
		if rp := req.URL.RawPath; rp != "" {
			req.URL.RawPath = strings.TrimPrefix(rp, ProxyPrefix)
		}
		origDirector(req)
		req.Host = u.Host

		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", originalProto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" && originalHost != "" {
			req.Header.Set("X-Forwarded-Host", originalHost)
		}
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.FromContext(r.Context()).Error("proxy_error", "status", 502, "path", r.URL.Path, "error", err)
		w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"detail":"backend unavailable"}`)
	}
	p.FlushInterval = 100 * time.Millisecond

	return func(c echo.Context) error {
		req := c.Request()
		if tokenEndpoint(req.URL.Path) {
			return echo.NewHTTPError(http.StatusForbidden, "use /session/login")
		}

		// buffered so the auth layer can replay it after a refresh
		if req.Body != nil && req.Body != http.NoBody {
			data, err := io.ReadAll(io.LimitReader(req.Body, maxProxyBody+1))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
			}
			if len(data) > maxProxyBody {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large")
			}
			req.Body = io.NopCloser(bytes.NewReader(data))
			req.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			}
			req.ContentLength = int64(len(data))
		}

		p.ServeHTTP(c.Response(), req)
		return nil
	}, nil
}

// tokenEndpoint reports whether the proxied path would reach login or
// refresh once the backend collapses duplicate slashes and dot segments.
func tokenEndpoint(p string) bool {
	p = path.Clean("/"+strings.TrimPrefix(p, ProxyPrefix)) + "/"
	return strings.HasPrefix(p, apiclient.PathLogin) || strings.HasPrefix(p, apiclient.PathRefresh)
}
