package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Skotchmaster/storefront/internal/storage"
)

var ErrIncompletePair = errors.New("token pair must carry both access and refresh")

// Pair is the access/refresh couple issued by the backend.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (p Pair) Valid() bool {
	return p.Access != "" && p.Refresh != ""
}

// Store is the durable custody of the current Pair. The pair is kept as a
// single serialized record, so readers only ever see a whole pair or nothing.
type Store struct {
	kv storage.KV
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) Save(ctx context.Context, p Pair) error {
	if !p.Valid() {
		return ErrIncompletePair
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode token pair: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyAuthTokens, string(data)); err != nil {
		return fmt.Errorf("save token pair: %w", err)
	}
	return nil
}

// Load reports ok=false when nothing usable is stored. Read failures and
// malformed records are treated the same as an empty store.
func (s *Store) Load(ctx context.Context) (Pair, bool) {
	raw, err := s.kv.Get(ctx, storage.KeyAuthTokens)
	if err != nil {
		return Pair{}, false
	}
	var p Pair
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Pair{}, false
	}
	if !p.Valid() {
		return Pair{}, false
	}
	return p, true
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, storage.KeyAuthTokens); err != nil {
		return fmt.Errorf("clear token pair: %w", err)
	}
	return nil
}
