// Package storage keeps the client-local key/value records the storefront
// persists between runs: the token pair, the guest cart, the post-login
// redirect path and the language preference. Every record is a plain
// serialized value overwritten wholesale on each write.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: key not found")

// Fixed keys of the persisted client state.
const (
	KeyAuthTokens         = "authTokens"
	KeyGuestCart          = "cart_items"
	KeyRedirectAfterLogin = "redirectAfterLogin"
	KeyLanguage           = "lang"
)

// KV is the persistence interface every client-side store sits on.
// Implementations must be safe for concurrent use; Set replaces the whole value.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type Entry struct {
	Key       string    `gorm:"column:storage_key;primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string {
	return "client_storage"
}
