package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

const HeaderRequestID = "X-Request-ID"

type Client struct {
	baseURL    string
	httpClient *http.Client
	rawClient  *http.Client
	transport  *AuthTransport
	teardown   *Teardown
}

type Option func(*options)

type options struct {
	timeout time.Duration
	base    http.RoundTripper
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBaseTransport sets the transport underneath the auth layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// NewClient builds a backend client. baseURL is the API root, e.g.
// "http://localhost:8000/api".
func NewClient(baseURL string, store *tokens.Store, td *Teardown, opts ...Option) *Client {
	o := options{
		timeout: 10 * time.Second,
		base: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		teardown: td,
		rawClient: &http.Client{
			Timeout:   o.timeout,
			Transport: o.base,
		},
	}
	c.transport = &AuthTransport{
		Base:     o.base,
		Tokens:   store,
		Refresh:  c.Refresh,
		Teardown: td,
	}
	c.httpClient = &http.Client{
		Timeout:   o.timeout,
		Transport: c.transport,
	}
	return c
}

// Transport is the auth-aware round tripper, for callers that build their
// own requests (e.g. a reverse proxy).
func (c *Client) Transport() http.RoundTripper {
	return c.transport
}

func (c *Client) OnTeardown(fn func(context.Context)) {
	c.teardown.OnTeardown(fn)
}

// Do sends a JSON request through the auth layer and decodes a JSON answer
// into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.do(ctx, c.httpClient, method, path, in, out)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		observability.APIRequestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	observability.APIRequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response, method, path string) error {
	apiErr := &Error{Method: method, Path: path, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	var d DetailResponse
	if json.Unmarshal(raw, &d) == nil && d.Detail != "" {
		apiErr.Detail = d.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) Login(ctx context.Context, email, password string) (tokens.Pair, error) {
	var res TokenResponse
	if err := c.Do(ctx, http.MethodPost, PathLogin, LoginRequest{Email: email, Password: password}, &res); err != nil {
		return tokens.Pair{}, err
	}
	pair := tokens.Pair{Access: res.Access, Refresh: res.Refresh}
	if !pair.Valid() {
		return tokens.Pair{}, fmt.Errorf("login: %w", tokens.ErrIncompletePair)
	}
	return pair, nil
}

// Refresh bypasses the auth layer: a failing refresh must never trigger
// another refresh.
func (c *Client) Refresh(ctx context.Context, refresh string) (*TokenResponse, error) {
	var res TokenResponse
	if err := c.do(ctx, c.rawClient, http.MethodPost, PathRefresh, RefreshRequest{Refresh: refresh}, &res); err != nil {
		return nil, err
	}
	if res.Access == "" {
		return nil, fmt.Errorf("refresh: empty access token")
	}
	return &res, nil
}

func (c *Client) Profile(ctx context.Context) (*UserProfile, error) {
	var p UserProfile
	if err := c.Do(ctx, http.MethodGet, PathProfile, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CartCount(ctx context.Context) (int, error) {
	var res CartCountResponse
	if err := c.Do(ctx, http.MethodGet, PathCartCount, nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (c *Client) Wishlist(ctx context.Context) ([]WishlistItem, error) {
	var items []WishlistItem
	if err := c.Do(ctx, http.MethodGet, PathWishlist, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID int64) error {
	return c.Do(ctx, http.MethodPost, PathWishlist, WishlistAddRequest{ProductID: productID}, nil)
}

func (c *Client) RemoveFromWishlist(ctx context.Context, productID int64) error {
	return c.Do(ctx, http.MethodDelete, PathWishlist+strconv.FormatInt(productID, 10)+"/", nil, nil)
}

func (c *Client) SyncCart(ctx context.Context, items []SyncItem) error {
	return c.Do(ctx, http.MethodPost, PathCartSync, SyncCartRequest{Items: items}, nil)
}
