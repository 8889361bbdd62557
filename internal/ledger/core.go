package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smile-coin/smilecoin/internal/clock"
	"github.com/smile-coin/smilecoin/internal/identity"
)

// Core is the ledger rule engine. It holds no state of its own: every
// decision is made against a snapshot read from the store inside that
// operation's atomic unit, with the clock supplying the instant.
//
// Core performs no retries; transient failures (ErrAllocationFailed,
// ErrStoreUnavailable) surface immediately so the caller owns retry policy.
type Core struct {
	store Store
	alloc identity.Allocator
	clock clock.Clock
}

// NewCore wires the rule engine to its collaborators.
func NewCore(store Store, alloc identity.Allocator, clk clock.Clock) *Core {
	return &Core{store: store, alloc: alloc, clock: clk}
}

// IssuanceResult is the outcome of a successful daily issuance.
type IssuanceResult struct {
	Batch IssuanceBatch
}

// TransferResult is the outcome of a successful transfer: the persisted record
// plus the headroom left under today's cap for this restaurant.
type TransferResult struct {
	Record              TransferRecord
	RemainingDailyLimit Amount
}

// BatchStatus annotates a historical batch with its expiry state at the
// statement's AsOf instant.
type BatchStatus struct {
	IssuanceBatch
	Expired bool
}

// BalanceStatement reports the derived spendable balance along with the full
// batch history for audit, expired batches included.
type BalanceStatement struct {
	TouristID string
	Balance   Amount
	AsOf      time.Time
	Batches   []BatchStatus
}

// RegisterTourist validates the travel window, allocates an address and
// persists a new tourist account with empty issuance history. Date-range
// checks run before any store or allocator access.
func (c *Core) RegisterTourist(ctx context.Context, id, originCountry string, arrival, departure Day) (TouristAccount, error) {
	now := c.clock.Now().UTC()
	today := DayOf(now)

	if !arrival.Before(departure) {
		return TouristAccount{}, ErrInvalidDateRange
	}
	if arrival.After(today.AddDays(MaxArrivalLead)) {
		return TouristAccount{}, ErrArrivalTooFarInFuture
	}

	address, err := c.alloc.Allocate(ctx, "tourist:"+id)
	if err != nil {
		return TouristAccount{}, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	acct := TouristAccount{
		ID:            id,
		Address:       address,
		OriginCountry: originCountry,
		ArrivalDay:    arrival,
		DepartureDay:  departure,
		CreatedAt:     now,
	}
	if err := c.store.CreateTourist(ctx, acct); err != nil {
		return TouristAccount{}, err
	}
	return acct, nil
}

// RegisterRestaurant allocates an address and persists a new restaurant
// account with a zero received total.
func (c *Core) RegisterRestaurant(ctx context.Context, id string) (RestaurantAccount, error) {
	address, err := c.alloc.Allocate(ctx, "restaurant:"+id)
	if err != nil {
		return RestaurantAccount{}, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	acct := RestaurantAccount{
		ID:        id,
		Address:   address,
		CreatedAt: c.clock.Now().UTC(),
	}
	if err := c.store.CreateRestaurant(ctx, acct); err != nil {
		return RestaurantAccount{}, err
	}
	return acct, nil
}

// IssueDailyCoins mints today's batch for the tourist. The travel-window and
// already-issued checks run against the tourist's current history inside the
// store's atomic unit, so two concurrent calls for the same day yield exactly
// one batch and one ErrAlreadyIssuedToday.
func (c *Core) IssueDailyCoins(ctx context.Context, touristID string) (IssuanceResult, error) {
	now := c.clock.Now().UTC()
	today := DayOf(now)

	batch := IssuanceBatch{
		ID:        uuid.NewString(),
		TouristID: touristID,
		Day:       today,
		Amount:    DailyIssuanceAmount,
		IssuedAt:  now,
		ExpiresAt: now.Add(BatchLifetime),
	}

	err := c.store.AppendBatch(ctx, touristID, func(h TouristHistory) error {
		if today.Before(h.Account.ArrivalDay) || today.After(h.Account.DepartureDay) {
			return ErrOutsideTravelWindow
		}
		if h.HasBatchFor(today) {
			return ErrAlreadyIssuedToday
		}
		return nil
	}, batch)
	if err != nil {
		if errors.Is(err, ErrTouristNotFound) {
			return IssuanceResult{}, ErrNotRegistered
		}
		return IssuanceResult{}, err
	}
	return IssuanceResult{Batch: batch}, nil
}

// Transfer moves amount from the tourist to the restaurant. Amount bounds are
// checked before any store access; balance and the per-restaurant daily cap
// are evaluated inside the store's two-account atomic unit, which also credits
// the restaurant's received total. No partial amount is ever applied.
func (c *Core) Transfer(ctx context.Context, touristID, restaurantID string, amount Amount) (TransferResult, error) {
	if amount <= 0 || amount > DailyRestaurantCap {
		return TransferResult{}, ErrInvalidAmount
	}

	now := c.clock.Now().UTC()
	today := DayOf(now)

	rec := TransferRecord{
		ID:           uuid.NewString(),
		TouristID:    touristID,
		RestaurantID: restaurantID,
		Amount:       amount,
		Day:          today,
		At:           now,
	}

	var remaining Amount
	err := c.store.AppendTransfer(ctx, touristID, restaurantID, func(st TransferState) error {
		if st.SpendableAt(now) < amount {
			return ErrInsufficientBalance
		}
		sent := st.TransferredTo(restaurantID, today)
		if sent+amount > DailyRestaurantCap {
			return ErrDailyRestaurantLimit
		}
		remaining = DailyRestaurantCap - (sent + amount)
		return nil
	}, rec)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Record: rec, RemainingDailyLimit: remaining}, nil
}

// Balance evaluates the derived balance formula at the current instant. It is
// a pure read outside the issuance/transfer atomic units; a slightly stale
// result is acceptable, a half-written one is not (the store guarantees the
// latter).
func (c *Core) Balance(ctx context.Context, touristID string) (BalanceStatement, error) {
	h, err := c.store.History(ctx, touristID)
	if err != nil {
		return BalanceStatement{}, err
	}

	now := c.clock.Now().UTC()
	statement := BalanceStatement{
		TouristID: touristID,
		Balance:   h.SpendableAt(now),
		AsOf:      now,
		Batches:   make([]BatchStatus, 0, len(h.Batches)),
	}
	for _, b := range h.Batches {
		statement.Batches = append(statement.Batches, BatchStatus{
			IssuanceBatch: b,
			Expired:       !now.Before(b.ExpiresAt),
		})
	}
	return statement, nil
}
