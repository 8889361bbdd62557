package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory Store used in tests and as the
// development fallback when no database is configured. A single mutex
// serializes every compare-and-append, which trivially satisfies the
// atomicity contract.
type MemoryStore struct {
	mu          sync.RWMutex
	tourists    map[string]TouristAccount
	restaurants map[string]RestaurantAccount
	batches     map[string][]IssuanceBatch
	transfers   map[string][]TransferRecord
	addresses   map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tourists:    make(map[string]TouristAccount),
		restaurants: make(map[string]RestaurantAccount),
		batches:     make(map[string][]IssuanceBatch),
		transfers:   make(map[string][]TransferRecord),
		addresses:   make(map[string]struct{}),
	}
}

// CreateTourist persists a new tourist account, rejecting duplicate
// identifiers and reused addresses.
func (s *MemoryStore) CreateTourist(_ context.Context, acct TouristAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tourists[acct.ID]; exists {
		return ErrAlreadyRegistered
	}
	if _, exists := s.addresses[acct.Address]; exists {
		return fmt.Errorf("%w: address %q already allocated", ErrAlreadyRegistered, acct.Address)
	}
	s.tourists[acct.ID] = acct
	s.addresses[acct.Address] = struct{}{}
	return nil
}

// CreateRestaurant persists a new restaurant account.
func (s *MemoryStore) CreateRestaurant(_ context.Context, acct RestaurantAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.restaurants[acct.ID]; exists {
		return ErrAlreadyRegistered
	}
	if _, exists := s.addresses[acct.Address]; exists {
		return fmt.Errorf("%w: address %q already allocated", ErrAlreadyRegistered, acct.Address)
	}
	s.restaurants[acct.ID] = acct
	s.addresses[acct.Address] = struct{}{}
	return nil
}

// GetTourist fetches a tourist account by identifier.
func (s *MemoryStore) GetTourist(_ context.Context, id string) (TouristAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.tourists[id]
	if !ok {
		return TouristAccount{}, ErrTouristNotFound
	}
	return acct, nil
}

// GetRestaurant fetches a restaurant account by identifier.
func (s *MemoryStore) GetRestaurant(_ context.Context, id string) (RestaurantAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.restaurants[id]
	if !ok {
		return RestaurantAccount{}, ErrRestaurantNotFound
	}
	return acct, nil
}

// History returns a copied snapshot of the tourist's account and history.
func (s *MemoryStore) History(_ context.Context, touristID string) (TouristHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.tourists[touristID]
	if !ok {
		return TouristHistory{}, ErrTouristNotFound
	}
	return TouristHistory{
		Account:   acct,
		Batches:   append([]IssuanceBatch(nil), s.batches[touristID]...),
		Transfers: append([]TransferRecord(nil), s.transfers[touristID]...),
	}, nil
}

// AppendBatch runs check under the write lock and appends the batch when it
// passes. A check failure leaves the store untouched.
func (s *MemoryStore) AppendBatch(_ context.Context, touristID string, check func(TouristHistory) error, batch IssuanceBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.tourists[touristID]
	if !ok {
		return ErrTouristNotFound
	}
	view := TouristHistory{
		Account:   acct,
		Batches:   s.batches[touristID],
		Transfers: s.transfers[touristID],
	}
	if err := check(view); err != nil {
		return err
	}
	s.batches[touristID] = append(s.batches[touristID], batch)
	return nil
}

// AppendTransfer runs check under the write lock and, when it passes, appends
// the record and credits the restaurant in the same critical section.
func (s *MemoryStore) AppendTransfer(_ context.Context, touristID, restaurantID string, check func(TransferState) error, rec TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.tourists[touristID]
	if !ok {
		return ErrTouristNotFound
	}
	rest, ok := s.restaurants[restaurantID]
	if !ok {
		return ErrRestaurantNotFound
	}
	state := TransferState{
		TouristHistory: TouristHistory{
			Account:   acct,
			Batches:   s.batches[touristID],
			Transfers: s.transfers[touristID],
		},
		Restaurant: rest,
	}
	if err := check(state); err != nil {
		return err
	}
	s.transfers[touristID] = append(s.transfers[touristID], rec)
	rest.ReceivedTotal += rec.Amount
	s.restaurants[restaurantID] = rest
	return nil
}
