// Package session is the single source of truth for who is signed in, how
// many items sit in their server cart and which products they wishlisted.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/guestcart"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionData      = errors.New("session data unavailable")
)

// Backend is the part of the marketplace API the session talks to.
// *apiclient.Client implements it.
type Backend interface {
	Login(ctx context.Context, email, password string) (tokens.Pair, error)
	Profile(ctx context.Context) (*apiclient.UserProfile, error)
	CartCount(ctx context.Context) (int, error)
	Wishlist(ctx context.Context) ([]apiclient.WishlistItem, error)
	AddToWishlist(ctx context.Context, productID int64) error
	RemoveFromWishlist(ctx context.Context, productID int64) error
	SyncCart(ctx context.Context, items []apiclient.SyncItem) error
	OnTeardown(fn func(context.Context))
}

var _ Backend = (*apiclient.Client)(nil)

type State int

const (
	StateInitializing State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

type Deps struct {
	API       Backend
	Tokens    *tokens.Store
	GuestCart *guestcart.Store
	Redirects *navigation.RedirectStore
	Nav       navigation.Navigator
	Events    events.Publisher
}

type Manager struct {
	d Deps

	mu        sync.RWMutex
	state     State
	user      *apiclient.UserProfile
	subject   string
	cartCount int
	wishlist  map[int64]struct{}
	// bumped on every login/logout; fetches started under an older
	// generation are discarded
	gen uint64

	bootOnce sync.Once
	ready    chan struct{}
}

// New builds the session and hooks it to the API client's teardown so an
// unrepairable 401 drops the session to Anonymous.
func New(d Deps) *Manager {
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	m := &Manager{
		d:        d,
		state:    StateInitializing,
		wishlist: make(map[int64]struct{}),
		ready:    make(chan struct{}),
	}
	d.API.OnTeardown(m.Expire)
	return m
}

type sessionData struct {
	user      *apiclient.UserProfile
	cartCount int
	wishlist  map[int64]struct{}
}

// Bootstrap restores the session from stored tokens. Only the first call
// does anything; later calls return immediately.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.bootOnce.Do(func() {
		defer close(m.ready)
		l := logging.FromContext(ctx).With("component", "session")

		pair, ok := m.d.Tokens.Load(ctx)
		if !ok {
			m.mu.Lock()
			if m.state == StateInitializing {
				m.setAnonymousLocked()
			}
			m.mu.Unlock()
			l.Info("session_bootstrapped", "state", StateAnonymous.String(), "reason", "no_tokens")
			return
		}

		m.mu.Lock()
		m.gen++
		gen := m.gen
		m.mu.Unlock()

		data, err := m.fetchAll(ctx)
		if err != nil {
			m.mu.Lock()
			if m.gen != gen {
				m.mu.Unlock()
				l.Info("session_restore_discarded", "reason", "superseded", "error", err)
				return
			}
			was, subject := m.endLocked(ctx)
			m.mu.Unlock()

			l.Warn("session_restore_failed", "reason", "corrupt_session", "error", err)
			m.loggedOut(ctx, was, subject)
			return
		}
		if !m.commit(gen, tokens.Subject(pair.Access), data) {
			l.Info("session_restore_discarded", "reason", "superseded")
			return
		}
		l.Info("session_bootstrapped", "state", StateAuthenticated.String(), "user_id", tokens.Subject(pair.Access))
	})
}

// Ready is closed once Bootstrap has resolved.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) Loading() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

// Login persists pair and loads the user's data. A failed fetch is returned
// wrapped in ErrSessionData while the session stays signed in.
func (m *Manager) Login(ctx context.Context, pair tokens.Pair) error {
	l := logging.FromContext(ctx).With("component", "session")

	if err := m.d.Tokens.Save(ctx, pair); err != nil {
		l.Error("login_save_tokens_failed", "error", err)
		return fmt.Errorf("save tokens: %w", err)
	}
	subject := tokens.Subject(pair.Access)

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.state = StateAuthenticated
	m.subject = subject
	m.user = nil
	m.cartCount = 0
	m.wishlist = make(map[int64]struct{})
	m.mu.Unlock()
	observability.SessionTransitionsTotal.WithLabelValues(StateAuthenticated.String()).Inc()

	data, err := m.fetchAll(ctx)
	if err != nil {
		l.Error("login_fetch_failed", "user_id", subject, "error", err)
		return fmt.Errorf("%w: %w", ErrSessionData, err)
	}
	if !m.commit(gen, subject, data) {
		l.Info("login_data_discarded", "reason", "superseded")
		return nil
	}

	m.publish(ctx, events.New(events.TypeSessionAuthenticated, subject, map[string]any{
		"cart_count": data.cartCount,
	}))
	l.Info("login_success", "user_id", subject)
	return nil
}

// Logout is local only: it never calls the backend.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	was, subject := m.endLocked(ctx)
	m.mu.Unlock()

	m.loggedOut(ctx, was, subject)
}

// endLocked drops the session and its stored tokens. It returns the state
// and user the session had before.
func (m *Manager) endLocked(ctx context.Context) (State, string) {
	was := m.state
	subject := m.subject
	m.setAnonymousLocked()
	if err := m.d.Tokens.Clear(ctx); err != nil {
		logging.FromContext(ctx).Error("logout_clear_tokens_failed", "component", "session", "error", err)
	}
	return was, subject
}

func (m *Manager) loggedOut(ctx context.Context, was State, subject string) {
	if was == StateAuthenticated {
		m.publish(ctx, events.New(events.TypeSessionLoggedOut, subject, nil))
	}
	logging.FromContext(ctx).Info("logout", "component", "session", "user_id", subject)
}

// Expire drops the session after the API client tore it down. The tokens
// are already gone.
func (m *Manager) Expire(ctx context.Context) {
	m.mu.Lock()
	was := m.state
	subject := m.subject
	m.setAnonymousLocked()
	m.mu.Unlock()

	if was == StateAuthenticated {
		m.publish(ctx, events.New(events.TypeSessionExpired, subject, nil))
		logging.FromContext(ctx).Warn("session_expired", "component", "session", "user_id", subject)
	}
}

// LoadWishlist refetches the wishlist. On failure the set is emptied.
func (m *Manager) LoadWishlist(ctx context.Context) error {
	m.mu.RLock()
	authed := m.state == StateAuthenticated
	gen := m.gen
	m.mu.RUnlock()
	if !authed {
		return ErrNotAuthenticated
	}

	items, err := m.d.API.Wishlist(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	if err != nil {
		m.wishlist = make(map[int64]struct{})
		logging.FromContext(ctx).Warn("wishlist_load_failed", "component", "session", "error", err)
		return fmt.Errorf("load wishlist: %w", err)
	}
	m.wishlist = wishlistSet(items)
	return nil
}

// ToggleWishlist adds or removes productID and reports whether the product
// is wishlisted afterwards.
func (m *Manager) ToggleWishlist(ctx context.Context, productID int64) (bool, error) {
	m.mu.RLock()
	authed := m.state == StateAuthenticated
	gen := m.gen
	_, listed := m.wishlist[productID]
	m.mu.RUnlock()
	if !authed {
		return false, ErrNotAuthenticated
	}

	if listed {
		if err := m.d.API.RemoveFromWishlist(ctx, productID); err != nil {
			return true, fmt.Errorf("remove from wishlist: %w", err)
		}
	} else {
		if err := m.d.API.AddToWishlist(ctx, productID); err != nil {
			return false, fmt.Errorf("add to wishlist: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return !listed, nil
	}
	if listed {
		delete(m.wishlist, productID)
	} else {
		m.wishlist[productID] = struct{}{}
	}
	return !listed, nil
}

func (m *Manager) InWishlist(productID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.wishlist[productID]
	return ok
}

// SetCartCount overrides the server cart count, e.g. after the UI changed
// the cart. Negative values are stored as 0.
func (m *Manager) SetCartCount(n int) {
	if n < 0 {
		n = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cartCount = n
}

func (m *Manager) RefreshCartCount(ctx context.Context) error {
	m.mu.RLock()
	authed := m.state == StateAuthenticated
	gen := m.gen
	m.mu.RUnlock()
	if !authed {
		return ErrNotAuthenticated
	}

	n, err := m.d.API.CartCount(ctx)
	if err != nil {
		return fmt.Errorf("refresh cart count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.cartCount = n
	}
	return nil
}

type Snapshot struct {
	State           string                 `json:"state"`
	Loading         bool                   `json:"loading"`
	IsAuthenticated bool                   `json:"is_authenticated"`
	User            *apiclient.UserProfile `json:"user"`
	CartCount       int                    `json:"cart_count"`
	WishlistIDs     []int64                `json:"wishlist_ids"`
}

func (m *Manager) Snapshot() Snapshot {
	loading := m.Loading()

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.wishlist))
	for id := range m.wishlist {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var user *apiclient.UserProfile
	if m.user != nil {
		u := *m.user
		user = &u
	}

	return Snapshot{
		State:           m.state.String(),
		Loading:         loading,
		IsAuthenticated: m.state == StateAuthenticated,
		User:            user,
		CartCount:       m.cartCount,
		WishlistIDs:     ids,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// fetchAll loads profile, cart count and wishlist concurrently. Either all
// three come back or none is used.
func (m *Manager) fetchAll(ctx context.Context) (sessionData, error) {
	var (
		user     *apiclient.UserProfile
		count    int
		wishlist []apiclient.WishlistItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := m.d.API.Profile(gctx)
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		n, err := m.d.API.CartCount(gctx)
		if err != nil {
			return fmt.Errorf("fetch cart count: %w", err)
		}
		count = n
		return nil
	})
	g.Go(func() error {
		items, err := m.d.API.Wishlist(gctx)
		if err != nil {
			return fmt.Errorf("fetch wishlist: %w", err)
		}
		wishlist = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return sessionData{}, err
	}

	return sessionData{user: user, cartCount: count, wishlist: wishlistSet(wishlist)}, nil
}

func (m *Manager) commit(gen uint64, subject string, data sessionData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		return false
	}
	if m.state != StateAuthenticated {
		observability.SessionTransitionsTotal.WithLabelValues(StateAuthenticated.String()).Inc()
	}
	m.state = StateAuthenticated
	m.subject = subject
	m.user = data.user
	m.cartCount = data.cartCount
	m.wishlist = data.wishlist
	return true
}

func (m *Manager) setAnonymousLocked() {
	if m.state != StateAnonymous {
		observability.SessionTransitionsTotal.WithLabelValues(StateAnonymous.String()).Inc()
	}
	m.gen++
	m.state = StateAnonymous
	m.user = nil
	m.subject = ""
	m.cartCount = 0
	m.wishlist = make(map[int64]struct{})
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	if err := m.d.Events.PublishEvent(ctx, e.UserID, e); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "component", "session", "type", e.Type, "error", err)
	}
}

func wishlistSet(items []apiclient.WishlistItem) map[int64]struct{} {
	set := make(map[int64]struct{}, len(items))
	for _, it := range items {
		set[it.Product.ID] = struct{}{}
	}
	return set
}
