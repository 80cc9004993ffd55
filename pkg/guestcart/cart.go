// Package guestcart keeps the cart of a visitor who hasn't signed in.
// Lines live in client-local storage only and are handed to the server
// cart once, at sign-in.
package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

type ProductImage struct {
	Image string `json:"image"`
}

// Product is the catalog view of a product as far as the cart cares.
type Product struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	FinalPrice float64        `json:"final_price"`
	Images     []ProductImage `json:"images"`
}

// Item is one cart line, unique per ProductID.
type Item struct {
	ProductID int64   `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

type Store struct {
	kv storage.KV

	// serializes read-modify-write cycles
	mu sync.Mutex

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv, subs: make(map[chan struct{}]struct{})}
}

// Items returns the lines in insertion order; an empty or unreadable store
// yields an empty slice.
func (s *Store) Items(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total, nil
}

// AddItem bumps the quantity of an existing line or appends a new one
// priced at the product's final price with its first image.
func (s *Store) AddItem(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}

	if i := indexOf(items, p.ID); i >= 0 {
		items[i].Quantity++
	} else {
		image := ""
		if len(p.Images) > 0 {
			image = p.Images[0].Image
		}
		items = append(items, Item{
			ProductID: p.ID,
			Title:     p.Title,
			Price:     p.FinalPrice,
			Quantity:  1,
			Image:     image,
		})
	}

	if err := s.save(ctx, items); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) RemoveItem(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := items[:0]
	for _, it := range items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}

	if err := s.save(ctx, kept); err != nil {
		return err
	}
	s.notify()
	return nil
}

// SetQuantity sets the quantity of an existing line. Quantities below 1 are
// rejected; removing a line is RemoveItem's job.
func (s *Store) SetQuantity(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(items, productID)
	if i < 0 {
		return nil
	}
	items[i].Quantity = qty

	if err := s.save(ctx, items); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, storage.KeyGuestCart); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	s.notify()
	return nil
}

func (s *Store) load(ctx context.Context) ([]Item, error) {
	raw, err := s.kv.Get(ctx, storage.KeyGuestCart)
	if errors.Is(err, storage.ErrNotFound) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logging.FromContext(ctx).Warn("guest_cart_unreadable", "reason", "malformed record", "error", err)
		return []Item{}, nil
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (s *Store) save(ctx context.Context, items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyGuestCart, string(data)); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

func indexOf(items []Item, productID int64) int {
	for i, it := range items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}
