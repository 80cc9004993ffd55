// Package events publishes session and cart lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSessionAuthenticated = "session_authenticated"
	TypeSessionLoggedOut     = "session_logged_out"
	TypeSessionExpired       = "session_expired"
	TypeCartMerged           = "cart_merged"
	TypeCartMergeFailed      = "cart_merge_failed"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(typ, userID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher must not block on the network; delivery problems are the
// publisher's to log.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event Event) error
}

type Noop struct{}

func (Noop) PublishEvent(context.Context, string, Event) error { return nil }
