package navigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/storefront/internal/storage"
)

// RedirectStore persists the path to return to once the user has signed in again.
type RedirectStore struct {
	kv storage.KV
}

func NewRedirectStore(kv storage.KV) *RedirectStore {
	return &RedirectStore{kv: kv}
}

func (r *RedirectStore) Remember(ctx context.Context, path string) error {
	if err := r.kv.Set(ctx, storage.KeyRedirectAfterLogin, path); err != nil {
		return fmt.Errorf("remember redirect: %w", err)
	}
	return nil
}

// Peek returns the remembered path, or "" when none is stored.
func (r *RedirectStore) Peek(ctx context.Context) (string, error) {
	v, err := r.kv.Get(ctx, storage.KeyRedirectAfterLogin)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read redirect: %w", err)
	}
	return v, nil
}

func (r *RedirectStore) Forget(ctx context.Context) error {
	if err := r.kv.Delete(ctx, storage.KeyRedirectAfterLogin); err != nil {
		return fmt.Errorf("forget redirect: %w", err)
	}
	return nil
}
