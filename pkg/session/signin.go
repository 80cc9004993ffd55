package session

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
)

type Credentials struct {
	Email    string
	Password string
	// From is the page that sent the user to the login form, if any.
	From string
}

type SignInResult struct {
	// Redirect is where the user was sent after signing in.
	Redirect    string
	MergedLines int
	// CartMergeErr is non-nil when the guest cart could not be handed to
	// the server; sign-in still succeeded and the guest cart is kept.
	CartMergeErr error
	// SessionErr is non-nil when the user's data could not be loaded
	// after the tokens were stored.
	SessionErr error
}

// SignIn runs the login page flow: authenticate, store the tokens, load the
// session, merge the guest cart and navigate back to where the user came
// from. Only a failed authentication, or tokens that could not be stored,
// is returned as an error.
func (m *Manager) SignIn(ctx context.Context, c Credentials) (SignInResult, error) {
	l := logging.FromContext(ctx).With("component", "session.signin")

	target, err := m.signInTarget(ctx, c.From)
	if err != nil {
		l.Warn("redirect_read_failed", "error", err)
	}

	pair, err := m.d.API.Login(ctx, c.Email, c.Password)
	if err != nil {
		l.Warn("sign_in_failed", "error", err)
		return SignInResult{}, fmt.Errorf("sign in: %w", err)
	}

	var res SignInResult
	res.SessionErr = m.Login(ctx, pair)
	if !m.IsAuthenticated() {
		// tokens were not stored or a logout won the race; a merge would go
		// out unauthenticated
		err := res.SessionErr
		if err == nil {
			err = ErrNotAuthenticated
		}
		l.Error("sign_in_not_established", "error", err)
		return SignInResult{}, fmt.Errorf("sign in: %w", err)
	}

	if err := m.d.Redirects.Forget(ctx); err != nil {
		l.Warn("redirect_forget_failed", "error", err)
	}

	res.MergedLines, res.CartMergeErr = m.MergeGuestCart(ctx)
	if res.CartMergeErr == nil && res.MergedLines > 0 {
		if err := m.RefreshCartCount(ctx); err != nil {
			l.Warn("cart_count_refresh_failed", "error", err)
		}
	}

	m.d.Nav.Navigate(target)
	res.Redirect = target
	return res, nil
}

func (m *Manager) signInTarget(ctx context.Context, from string) (string, error) {
	if from != "" && from != navigation.LoginPath {
		return from, nil
	}
	remembered, err := m.d.Redirects.Peek(ctx)
	if err != nil {
		return navigation.HomePath, err
	}
	if remembered == "" || remembered == navigation.LoginPath {
		return navigation.HomePath, nil
	}
	return remembered, nil
}
