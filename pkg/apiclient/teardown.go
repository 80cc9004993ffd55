package apiclient

import (
	"context"
	"sync"

	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

// Teardown ends a session whose credentials can no longer be repaired:
// it drops the stored tokens, remembers where the user was and sends them
// to the login page. Concurrent and repeated calls are safe; once the user
// is on the login page the remembered path is left alone.
type Teardown struct {
	tokens    *tokens.Store
	redirects *navigation.RedirectStore
	nav       navigation.Navigator

	mu    sync.Mutex
	hooks []func(context.Context)
}

func NewTeardown(store *tokens.Store, redirects *navigation.RedirectStore, nav navigation.Navigator) *Teardown {
	return &Teardown{tokens: store, redirects: redirects, nav: nav}
}

// OnTeardown registers fn to run after every teardown.
func (td *Teardown) OnTeardown(fn func(context.Context)) {
	td.mu.Lock()
	defer td.mu.Unlock()
	td.hooks = append(td.hooks, fn)
}

func (td *Teardown) Run(ctx context.Context) {
	l := logging.FromContext(ctx).With("component", "apiclient.teardown")

	td.mu.Lock()
	if err := td.tokens.Clear(ctx); err != nil {
		l.Error("teardown_clear_tokens_failed", "error", err)
	}

	current := td.nav.CurrentPath()
	if current != navigation.LoginPath {
		if err := td.redirects.Remember(ctx, current); err != nil {
			l.Error("teardown_remember_path_failed", "path", current, "error", err)
		}
		td.nav.Navigate(navigation.LoginPath)
		observability.AuthTeardownTotal.Inc()
		l.Warn("session_torn_down", "from", current)
	}
	hooks := make([]func(context.Context), len(td.hooks))
	copy(hooks, td.hooks)
	td.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}
