package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrAlreadyRegistered indicates the principal identifier is already taken.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrTouristNotFound indicates the referenced tourist account does not exist.
	ErrTouristNotFound = errors.New("tourist not found")

	// ErrRestaurantNotFound indicates the referenced restaurant account does not exist.
	ErrRestaurantNotFound = errors.New("restaurant not found")

	// ErrNotRegistered indicates an issuance was requested for an unknown tourist.
	ErrNotRegistered = errors.New("tourist not registered")

	// ErrInvalidDateRange indicates the departure day is not after the arrival day.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrArrivalTooFarInFuture indicates the arrival day is more than the
	// allowed lead time after the current day.
	ErrArrivalTooFarInFuture = errors.New("arrival too far in the future")

	// ErrInvalidAmount indicates a transfer amount outside (0, DailyRestaurantCap]
	// or one finer than the coin's smallest unit.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOutsideTravelWindow indicates the current day falls outside the
	// tourist's arrival/departure window.
	ErrOutsideTravelWindow = errors.New("outside travel window")

	// ErrAlreadyIssuedToday indicates a batch already exists for the current day.
	ErrAlreadyIssuedToday = errors.New("already issued today")

	// ErrInsufficientBalance indicates the spendable balance does not cover the
	// requested transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDailyRestaurantLimit indicates the transfer would push the day's total
	// to this restaurant over the cap.
	ErrDailyRestaurantLimit = errors.New("daily restaurant limit exceeded")

	// ErrAllocationFailed indicates the identity allocator could not produce an
	// address. Transient; safe to retry.
	ErrAllocationFailed = errors.New("address allocation failed")

	// ErrStoreUnavailable indicates an infrastructure failure in the account
	// store. Transient; safe to retry.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrInvalidID indicates an empty or malformed principal identifier.
	ErrInvalidID = errors.New("invalid principal id")
)

// Amount is a coin quantity in fixed-point units of 1/100 coin. Fractional
// transfers (e.g. 0.1 coin) are first-class, so amounts are never carried as
// floats internally.
type Amount int64

// CoinUnit is the number of Amount units in one whole coin.
const CoinUnit Amount = 100

const (
	// DailyIssuanceAmount is the size of one daily issuance batch.
	DailyIssuanceAmount = 10 * CoinUnit

	// DailyRestaurantCap bounds the total a tourist may transfer to one
	// restaurant within one calendar day.
	DailyRestaurantCap = 3 * CoinUnit

	// BatchLifetime is how long an issuance batch remains spendable.
	BatchLifetime = 14 * 24 * time.Hour

	// MaxArrivalLead bounds how far in the future an arrival day may lie at
	// registration time, in days.
	MaxArrivalLead = 30
)

// Coins converts a whole-coin count to an Amount.
func Coins(n int64) Amount { return Amount(n) * CoinUnit }

// AmountFromFloat converts a caller-supplied coin value to an Amount. Values
// finer than 1/100 coin, NaN and infinities are rejected with ErrInvalidAmount.
func AmountFromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	scaled := f * float64(CoinUnit)
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, ErrInvalidAmount
	}
	return Amount(rounded), nil
}

// Coins reports the amount as a whole-coin float for presentation.
func (a Amount) Coins() float64 { return float64(a) / float64(CoinUnit) }

func (a Amount) String() string {
	whole := a / CoinUnit
	frac := a % CoinUnit
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

// Day is a UTC calendar day. All daily-limit decisions (the issuance latch and
// the per-restaurant transfer cap) use the UTC boundary so behavior at
// midnight is deterministic regardless of the tourist's locale.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses a day in "2006-01-02" form.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	return DayOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Day) String() string { return d.Time().Format("2006-01-02") }

// Before reports whether d is an earlier calendar day than other.
func (d Day) Before(other Day) bool { return d.Time().Before(other.Time()) }

// After reports whether d is a later calendar day than other.
func (d Day) After(other Day) bool { return d.Time().After(other.Time()) }

// AddDays returns the day n days after d.
func (d Day) AddDays(n int) Day { return DayOf(d.Time().AddDate(0, 0, n)) }

// IsZero reports whether d is the zero value.
func (d Day) IsZero() bool { return d == Day{} }

// TouristAccount is a traveler principal eligible for daily issuances during
// its travel window. Accounts are append-only: they are never deleted, and the
// address is set exactly once at creation.
type TouristAccount struct {
	ID            string
	Address       string
	OriginCountry string
	ArrivalDay    Day
	DepartureDay  Day
	CreatedAt     time.Time
}

// RestaurantAccount is a merchant principal eligible to receive transfers.
type RestaurantAccount struct {
	ID            string
	Address       string
	ReceivedTotal Amount
	CreatedAt     time.Time
}

// IssuanceBatch is one day's minted coins for a tourist. Immutable once
// created; it stops counting toward the spendable balance at ExpiresAt but is
// retained for audit.
type IssuanceBatch struct {
	ID        string
	TouristID string
	Day       Day
	Amount    Amount
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SpendableAt reports whether the batch contributes to balance at instant t.
func (b IssuanceBatch) SpendableAt(t time.Time) bool {
	return !t.Before(b.IssuedAt) && t.Before(b.ExpiresAt)
}

// TransferRecord is an immutable record of coins moved from a tourist to a
// restaurant. Day is the UTC calendar day of the transfer.
type TransferRecord struct {
	ID           string
	TouristID    string
	RestaurantID string
	Amount       Amount
	Day          Day
	At           time.Time
}

// TouristHistory is a consistent snapshot of one tourist account with its full
// issuance and transfer history.
type TouristHistory struct {
	Account   TouristAccount
	Batches   []IssuanceBatch
	Transfers []TransferRecord
}

// SpendableAt computes the spendable balance at instant t: the sum of amounts
// from batches live at t minus the sum of all transfers ever made. Expired
// batches stop counting even when part of them was never spent, so the result
// can be lower than the unspent remainder of live batches.
func (h TouristHistory) SpendableAt(t time.Time) Amount {
	var balance Amount
	for _, b := range h.Batches {
		if b.SpendableAt(t) {
			balance += b.Amount
		}
	}
	for _, rec := range h.Transfers {
		balance -= rec.Amount
	}
	return balance
}

// TransferredTo sums the tourist's transfers to one restaurant on one day.
func (h TouristHistory) TransferredTo(restaurantID string, day Day) Amount {
	var total Amount
	for _, rec := range h.Transfers {
		if rec.RestaurantID == restaurantID && rec.Day == day {
			total += rec.Amount
		}
	}
	return total
}

// HasBatchFor reports whether an issuance batch exists for the given day.
func (h TouristHistory) HasBatchFor(day Day) bool {
	for _, b := range h.Batches {
		if b.Day == day {
			return true
		}
	}
	return false
}

// TransferState is the two-account view handed to a transfer's atomic check.
type TransferState struct {
	TouristHistory
	Restaurant RestaurantAccount
}

// Store is the durable account store contract: keyed storage for the two
// account kinds plus atomic compare-and-append over the immutable batch and
// transfer history. Implementations must make each append and its check a
// single atomic unit scoped to the affected account(s); for the two-account
// transfer the tourist is always locked before the restaurant.
//
// Views passed to check callbacks are only valid for the duration of the
// callback and must not be retained.
type Store interface {
	CreateTourist(ctx context.Context, acct TouristAccount) error
	CreateRestaurant(ctx context.Context, acct RestaurantAccount) error
	GetTourist(ctx context.Context, id string) (TouristAccount, error)
	GetRestaurant(ctx context.Context, id string) (RestaurantAccount, error)

	// History returns a consistent snapshot of the tourist's account and full
	// batch/transfer history. Reads never observe a half-written append.
	History(ctx context.Context, touristID string) (TouristHistory, error)

	// AppendBatch runs check against the tourist's current state and, when it
	// returns nil, persists the batch in the same atomic unit. A non-nil
	// check error aborts without touching the store and is returned unchanged.
	AppendBatch(ctx context.Context, touristID string, check func(TouristHistory) error, batch IssuanceBatch) error

	// AppendTransfer runs check against the current state of both accounts
	// and, when it returns nil, persists the record and increments the
	// restaurant's received total in the same atomic unit. Tourist existence
	// is verified before restaurant existence.
	AppendTransfer(ctx context.Context, touristID, restaurantID string, check func(TransferState) error, rec TransferRecord) error
}
