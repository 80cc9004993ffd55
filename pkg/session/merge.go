package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/observability"
	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

var ErrCartMerge = errors.New("guest cart merge failed")

// MergeGuestCart hands the guest cart to the server cart in one sync call
// and returns the number of lines sent. The guest cart is cleared only when
// the server accepted the sync; how the server combines quantities is its
// business.
func (m *Manager) MergeGuestCart(ctx context.Context) (int, error) {
	l := logging.FromContext(ctx).With("component", "session.merge")

	items, err := m.d.GuestCart.Items(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCartMerge, err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	payload := make([]apiclient.SyncItem, 0, len(items))
	for _, it := range items {
		payload = append(payload, apiclient.SyncItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	m.mu.RLock()
	subject := m.subject
	m.mu.RUnlock()

	if err := m.d.API.SyncCart(ctx, payload); err != nil {
		observability.CartMergeTotal.WithLabelValues("failure").Inc()
		l.Warn("cart_merge_failed", "status", apiclient.StatusCode(err), "lines", len(payload), "error", err)
		m.publish(ctx, events.New(events.TypeCartMergeFailed, subject, map[string]any{"lines": len(payload)}))
		return 0, fmt.Errorf("%w: %w", ErrCartMerge, err)
	}

	if err := m.d.GuestCart.Clear(ctx); err != nil {
		l.Error("guest_cart_clear_failed", "error", err)
	}

	observability.CartMergeTotal.WithLabelValues("success").Inc()
	m.publish(ctx, events.New(events.TypeCartMerged, subject, map[string]any{"lines": len(payload)}))
	l.Info("cart_merged", "lines", len(payload))
	return len(payload), nil
}
