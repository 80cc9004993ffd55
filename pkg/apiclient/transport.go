package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

const (
	PathLogin     = "/users/login/"
	PathRefresh   = "/token/refresh/"
	PathProfile   = "/users/profile/"
	PathCartCount = "/cart/count/"
	PathCartSync  = "/cart/sync/"
	PathWishlist  = "/wishlist/"
)

func isLoginPath(p string) bool   { return strings.Contains(p, PathLogin) }
func isRefreshPath(p string) bool { return strings.Contains(p, PathRefresh) }

// RefreshFunc exchanges a refresh token for a new access token (and, when
// the backend rotates them, a new refresh token). It must not go through
// AuthTransport.
type RefreshFunc func(ctx context.Context, refresh string) (*TokenResponse, error)

// AuthTransport injects the stored bearer token into every request and
// repairs expired access tokens: on a 401 it refreshes once, shared by every
// request that failed while the refresh was in flight, and replays the
// original request a single time with the new token.
type AuthTransport struct {
	Base     http.RoundTripper
	Tokens   *tokens.Store
	Refresh  RefreshFunc
	Teardown *Teardown

	group singleflight.Group
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.roundTrip(req, false)
}

func (t *AuthTransport) roundTrip(req *http.Request, retried bool) (*http.Response, error) {
	ctx := req.Context()

	var access string
	if pair, ok := t.Tokens.Load(ctx); ok {
		access = pair.Access
	}

	out, err := authorize(req, access, retried)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	l := logging.FromContext(ctx).With("component", "apiclient.auth", "method", req.Method, "path", req.URL.Path)

	if isRefreshPath(req.URL.Path) {
		l.Warn("refresh_endpoint_unauthorized", "status", 401)
		t.Teardown.Run(ctx)
		return resp, nil
	}

	if retried || isLoginPath(req.URL.Path) || !replayable(req) {
		return resp, nil
	}
	drain(resp)

	newAccess, source, err := t.renewAccess(ctx, access)
	if err != nil {
		l.Warn("auth_repair_failed", "status", 401, "error", err)
		return nil, err
	}

	observability.AuthReplayTotal.WithLabelValues(source).Inc()
	l.Debug("request_replayed", "source", source)

	replay := req.Clone(ctx)
	replay.Header.Set("Authorization", "Bearer "+newAccess)
	return t.roundTrip(replay, true)
}

// renewAccess returns the access token the failed request should be replayed
// with. used is the access token the request was originally sent with.
func (t *AuthTransport) renewAccess(ctx context.Context, used string) (string, string, error) {
	pair, ok := t.Tokens.Load(ctx)
	if !ok {
		t.Teardown.Run(ctx)
		return "", "", ErrNoRefreshToken
	}

	// someone refreshed after this request went out
	if pair.Access != used {
		return pair.Access, "stale_token", nil
	}

	ch := t.group.DoChan("refresh", func() (any, error) {
		return t.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", "", res.Err
		}
		return res.Val.(string), "refresh", nil
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// refresh runs at most once at a time per transport.
func (t *AuthTransport) refresh(ctx context.Context) (string, error) {
	l := logging.FromContext(ctx).With("component", "apiclient.auth")

	pair, ok := t.Tokens.Load(ctx)
	if !ok {
		t.Teardown.Run(ctx)
		return "", ErrNoRefreshToken
	}

	res, err := t.Refresh(ctx, pair.Refresh)
	if err != nil {
		observability.AuthRefreshTotal.WithLabelValues("failure").Inc()
		t.Teardown.Run(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := tokens.Pair{Access: res.Access, Refresh: pair.Refresh}
	if res.Refresh != "" {
		next.Refresh = res.Refresh
	}
	if err := t.Tokens.Save(ctx, next); err != nil {
		observability.AuthRefreshTotal.WithLabelValues("failure").Inc()
		t.Teardown.Run(ctx)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	observability.AuthRefreshTotal.WithLabelValues("success").Inc()
	attrs := []any{"user_id", tokens.Subject(next.Access), "rotated", res.Refresh != ""}
	if exp, ok := tokens.ExpiresAt(next.Access); ok {
		attrs = append(attrs, "expires_at", exp)
	}
	l.Info("tokens_refreshed", attrs...)
	return next.Access, nil
}

// authorize returns a copy of req carrying the bearer token. A replayed
// request already carries the token it must be sent with.
func authorize(req *http.Request, access string, retried bool) (*http.Request, error) {
	out := req.Clone(req.Context())
	if retried {
		if req.Body != nil && req.Body != http.NoBody {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			out.Body = body
		}
		return out, nil
	}
	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	} else {
		out.Header.Del("Authorization")
	}
	return out, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
