package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/guestcart"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/session"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

type stubBackend struct {
	mu       sync.Mutex
	syncErr  error
	wishlist map[int64]bool
	synced   int
}

func (b *stubBackend) Login(_ context.Context, _, password string) (tokens.Pair, error) {
	if password != "Secret123" {
		return tokens.Pair{}, &apiclient.Error{
			Method: http.MethodPost,
			Path:   apiclient.PathLogin,
			Status: http.StatusUnauthorized,
			Detail: "Invalid email or password.",
		}
	}
	return tokens.Pair{Access: "a1", Refresh: "r1"}, nil
}

func (b *stubBackend) Profile(context.Context) (*apiclient.UserProfile, error) {
	return &apiclient.UserProfile{FirstName: "Ada", Email: "ada@example.com"}, nil
}

func (b *stubBackend) CartCount(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.synced, nil
}

func (b *stubBackend) Wishlist(context.Context) ([]apiclient.WishlistItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []apiclient.WishlistItem
	for id := range b.wishlist {
		out = append(out, apiclient.WishlistItem{Product: apiclient.WishlistProduct{ID: id}})
	}
	return out, nil
}

func (b *stubBackend) AddToWishlist(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wishlist[id] = true
	return nil
}

func (b *stubBackend) RemoveFromWishlist(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.wishlist, id)
	return nil
}

func (b *stubBackend) SyncCart(_ context.Context, items []apiclient.SyncItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.syncErr != nil {
		return b.syncErr
	}
	for _, it := range items {
		b.synced += it.Quantity
	}
	return nil
}

func (b *stubBackend) OnTeardown(func(context.Context)) {}

type testServer struct {
	e       *echo.Echo
	session *session.Manager
	cart    *guestcart.Store
	nav     *navigation.History
	kv      storage.KV
}

func newTestServer(t *testing.T, api *stubBackend, bootstrap bool) *testServer {
	t.Helper()

	if api.wishlist == nil {
		api.wishlist = map[int64]bool{}
	}
	kv := storage.NewMemoryStore()
	nav := navigation.NewHistory("/")
	cart := guestcart.NewStore(kv)
	m := session.New(session.Deps{
		API:       api,
		Tokens:    tokens.NewStore(kv),
		GuestCart: cart,
		Redirects: navigation.NewRedirectStore(kv),
		Nav:       nav,
	})
	if bootstrap {
		m.Bootstrap(context.Background())
	}

	e := echo.New()
	e.Use(RequestLogger(logging.Discard()))
	Register(e, &Deps{
		Session:     &SessionHTTP{Session: m, Nav: nav},
		Cart:        &CartHTTP{Cart: cart, Session: m},
		Preferences: &PreferencesHTTP{KV: kv},
		Navigation:  &NavigationHTTP{Nav: nav},
	})
	return &testServer{e: e, session: m, cart: cart, nav: nav, kv: kv}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, false)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/health/ready", "").Code)

	s.session.Bootstrap(context.Background())
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", "").Code)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)
	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_auth_teardown_total")
}

func TestGuestCartFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)
	product := `{"id":7,"title":"Lamp","final_price":10,"images":[{"image":"/media/lamp.jpg"}]}`

	rec := s.do(t, http.MethodPost, "/cart/items", product)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/cart/items", product)
	require.Equal(t, http.StatusCreated, rec.Code)

	v := decode[cartView](t, rec)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 2, v.Count)
	assert.Equal(t, 20.0, v.Total)
	assert.Equal(t, "/media/lamp.jpg", v.Items[0].Image)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/cart/items/7", `{"quantity":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/cart/items/abc", `{"quantity":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/cart/items", `{"title":"no id"}`).Code)

	rec = s.do(t, http.MethodPut, "/cart/items/7", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[cartView](t, rec).Count)

	rec = s.do(t, http.MethodDelete, "/cart/items/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cartView](t, rec).Items)

	s.do(t, http.MethodPost, "/cart/items", product)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/cart", "").Code)
	rec = s.do(t, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[cartView](t, rec).Count)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)
	s.nav.Navigate("/login")
	s.do(t, http.MethodPost, "/cart/items", `{"id":7,"title":"Lamp","final_price":10}`)

	rec := s.do(t, http.MethodPost, "/session/login", `{"email":"ada@example.com","password":"Secret123","from":"/checkout"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[loginResponse](t, rec)
	assert.Equal(t, "/checkout", res.Redirect)
	assert.Equal(t, 1, res.MergedLines)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Session.IsAuthenticated)
	assert.Equal(t, 1, res.Session.CartCount)
	assert.Equal(t, "/checkout", res.Session.Location)

	// the guest cart is closed while signed in
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/cart/items", `{"id":7}`).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/cart", "").Code)

	rec = s.do(t, http.MethodPost, "/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[sessionView](t, rec).IsAuthenticated)
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/cart/items", `{"id":7}`).Code)
}

func TestLogin_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"ada@example.com"}`, status: http.StatusBadRequest},
		{name: "wrong password", body: `{"email":"ada@example.com","password":"nope"}`, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, &stubBackend{}, true)
			rec := s.do(t, http.MethodPost, "/session/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, s.session.IsAuthenticated())
		})
	}
}

func TestLogin_MergeFailureIsAWarning(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{syncErr: errors.New("boom")}, true)
	s.do(t, http.MethodPost, "/cart/items", `{"id":7,"title":"Lamp","final_price":10}`)

	rec := s.do(t, http.MethodPost, "/session/login", `{"email":"ada@example.com","password":"Secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[loginResponse](t, rec)
	assert.Equal(t, []string{WarningCartMergeFailed}, res.Warnings)
	assert.Equal(t, "/", res.Redirect)

	count, err := s.cart.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWishlistToggle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/wishlist/4/toggle", "").Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/session/login", `{"email":"ada@example.com","password":"Secret123"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/wishlist/x/toggle", "").Code)

	rec := s.do(t, http.MethodPost, "/wishlist/4/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["in_wishlist"])

	rec = s.do(t, http.MethodPost, "/wishlist/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{float64(4)}, decode[map[string]any](t, rec)["wishlist_ids"])

	rec = s.do(t, http.MethodPost, "/wishlist/4/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["in_wishlist"])
}

func TestLanguagePreference(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)

	rec := s.do(t, http.MethodGet, "/preferences/language", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, languageView{Language: "en", Dir: "ltr"}, decode[languageView](t, rec))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/preferences/language", `{"language":"fr"}`).Code)

	rec = s.do(t, http.MethodPut, "/preferences/language", `{"language":"ar"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rtl", decode[languageView](t, rec).Dir)

	v, err := s.kv.Get(context.Background(), storage.KeyLanguage)
	require.NoError(t, err)
	assert.Equal(t, "ar", v)
}

func TestNavigation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/navigation", `{"path":"/orders"}`).Code)
	assert.Equal(t, "/orders", s.nav.CurrentPath())

	rec := s.do(t, http.MethodGet, "/navigation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/orders", decode[map[string]string](t, rec)["path"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/navigation", `{"path":"https://evil.example"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/navigation", `{"path":"//evil.example"}`).Code)
}

func TestCartEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &stubBackend{}, true)
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/cart/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	r := bufio.NewReader(resp.Body)
	next := func() string {
		t.Helper()
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	assert.JSONEq(t, `{"count":0,"lines":0}`, next())

	require.NoError(t, s.cart.AddItem(context.Background(), guestcart.Product{ID: 1, FinalPrice: 1}))
	assert.JSONEq(t, `{"count":1,"lines":1}`, next())
}
