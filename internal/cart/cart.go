// Package cart holds the per-user shopping cart behind a small store
// interface. The cart is best-effort: it never participates in stock
// accounting, which is enforced solely by the order ledger.
package cart

import (
	"context"
	"errors"
	"sync"
)

// ErrInsufficientQuantity is returned when a negative delta would push an
// item below zero.
var ErrInsufficientQuantity = errors.New("insufficient quantity")

// Item is one cart line.
type Item struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int64 `json:"quantity"`
}

// Store is a per-user keyed cart. Implementations: MemoryStore (process
// local, non-durable) and RedisStore.
type Store interface {
	Get(ctx context.Context, userID int64) ([]Item, error)
	// Add applies a quantity delta and returns the new quantity. A quantity
	// reaching zero removes the line.
	Add(ctx context.Context, userID, medicineID, delta int64) (int64, error)
	Remove(ctx context.Context, userID, medicineID int64) error
	Clear(ctx context.Context, userID int64) error
}

// MemoryStore keeps carts in a process-local map. The mutex only protects
// the map itself; no cross-request consistency is promised.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[int64]map[int64]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[int64]map[int64]int64)}
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []Item{}
	for medicineID, quantity := range s.carts[userID] {
		items = append(items, Item{MedicineID: medicineID, Quantity: quantity})
	}
	return items, nil
}

func (s *MemoryStore) Add(ctx context.Context, userID, medicineID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userCart := s.carts[userID]
	if userCart == nil {
		userCart = make(map[int64]int64)
		s.carts[userID] = userCart
	}

	next := userCart[medicineID] + delta
	if next < 0 {
		return 0, ErrInsufficientQuantity
	}
	if next == 0 {
		delete(userCart, medicineID)
		return 0, nil
	}
	userCart[medicineID] = next
	return next, nil
}

func (s *MemoryStore) Remove(ctx context.Context, userID, medicineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts[userID], medicineID)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}
