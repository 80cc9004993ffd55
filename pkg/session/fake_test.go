package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/guestcart"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	mu sync.Mutex

	pair     tokens.Pair
	loginErr error

	profile    *apiclient.UserProfile
	profileErr error
	// when set, Profile signals started and blocks until gate is closed
	profileStarted chan struct{}
	profileGate    chan struct{}
	profileCalls   int

	count    int
	countErr error

	wishlist    []int64
	wishlistErr error
	wishlistOps []string
	// runs before each add/remove reaches the fake server
	onWishlistOp func()

	syncErr error
	synced  [][]apiclient.SyncItem

	hooks []func(context.Context)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pair:     tokens.Pair{Access: "a1", Refresh: "r1"},
		profile:  &apiclient.UserProfile{FirstName: "Ada", Email: "ada@example.com"},
		count:    3,
		wishlist: []int64{4, 2},
	}
}

func (f *fakeBackend) Login(_ context.Context, _, password string) (tokens.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return tokens.Pair{}, f.loginErr
	}
	return f.pair, nil
}

func (f *fakeBackend) Profile(ctx context.Context) (*apiclient.UserProfile, error) {
	f.mu.Lock()
	f.profileCalls++
	started, gate := f.profileStarted, f.profileGate
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeBackend) CartCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.countErr
}

func (f *fakeBackend) Wishlist(context.Context) ([]apiclient.WishlistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wishlistErr != nil {
		return nil, f.wishlistErr
	}
	out := make([]apiclient.WishlistItem, 0, len(f.wishlist))
	for i, id := range f.wishlist {
		out = append(out, apiclient.WishlistItem{ID: int64(i + 1), Product: apiclient.WishlistProduct{ID: id}})
	}
	return out, nil
}

func (f *fakeBackend) AddToWishlist(_ context.Context, id int64) error {
	f.mu.Lock()
	hook := f.onWishlistOp
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.wishlistOps = append(f.wishlistOps, "add")
	f.wishlist = append(f.wishlist, id)
	return nil
}

func (f *fakeBackend) RemoveFromWishlist(_ context.Context, id int64) error {
	f.mu.Lock()
	hook := f.onWishlistOp
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.wishlistOps = append(f.wishlistOps, "remove")
	kept := f.wishlist[:0]
	for _, w := range f.wishlist {
		if w != id {
			kept = append(kept, w)
		}
	}
	f.wishlist = kept
	return nil
}

func (f *fakeBackend) SyncCart(_ context.Context, items []apiclient.SyncItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, items)
	if f.syncErr != nil {
		return f.syncErr
	}
	for _, it := range items {
		f.count += it.Quantity
	}
	return nil
}

func (f *fakeBackend) OnTeardown(fn func(context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// teardown plays the API client's teardown: tokens are already gone when
// hooks run.
func (f *fakeBackend) teardown(ctx context.Context, store *tokens.Store) {
	_ = store.Clear(ctx)
	f.mu.Lock()
	hooks := append([]func(context.Context){}, f.hooks...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}

type testEnv struct {
	m         *Manager
	api       *fakeBackend
	kv        *storage.MemoryStore
	tokens    *tokens.Store
	cart      *guestcart.Store
	redirects *navigation.RedirectStore
	nav       *navigation.History
	events    *events.Recorder
}

func newTestEnv(t *testing.T, api *fakeBackend, start string) *testEnv {
	t.Helper()

	kv := storage.NewMemoryStore()
	env := &testEnv{
		api:       api,
		kv:        kv,
		tokens:    tokens.NewStore(kv),
		cart:      guestcart.NewStore(kv),
		redirects: navigation.NewRedirectStore(kv),
		nav:       navigation.NewHistory(start),
		events:    &events.Recorder{},
	}
	env.m = New(Deps{
		API:       api,
		Tokens:    env.tokens,
		GuestCart: env.cart,
		Redirects: env.redirects,
		Nav:       env.nav,
		Events:    env.events,
	})
	require.Len(t, api.hooks, 1)
	return env
}
