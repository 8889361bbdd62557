package facade

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/smile-coin/smilecoin/internal/ledger"
	"github.com/smile-coin/smilecoin/internal/notification"
	"github.com/smile-coin/smilecoin/internal/rankings"
)

// Facade is the single surface exposed to the API layer. It validates
// primitive inputs, delegates to the ledger core, and preserves the core's
// error kinds so transports can map them precisely.
//
// Callers need no idempotency keys: a retried issuance on the same day is
// rejected with ErrAlreadyIssuedToday, and retried transfers compound only up
// to the daily restaurant cap. Same-day retries of a logically duplicate
// request therefore cannot mint or move more value than the rules allow,
// which differs from strict idempotent-API designs and is intentional.
type Facade struct {
	core     *ledger.Core
	store    ledger.Store
	rankings *rankings.Cache
	notifier notification.Notifier
	logger   *slog.Logger
}

// New wires the facade. rankingsCache and notifier may be nil; both are
// best-effort side channels outside the ledger's atomic units.
func New(core *ledger.Core, store ledger.Store, rankingsCache *rankings.Cache, notifier notification.Notifier, logger *slog.Logger) *Facade {
	return &Facade{core: core, store: store, rankings: rankingsCache, notifier: notifier, logger: logger}
}

var countryCode = regexp.MustCompile(`^[A-Za-z]{2,3}$`)

// RegisterTouristInput carries the primitive registration payload. Days are
// "2006-01-02" strings interpreted as UTC calendar days.
type RegisterTouristInput struct {
	ID            string
	OriginCountry string
	ArrivalDay    string
	DepartureDay  string
}

// Account is the registration result shared by both principal kinds.
type Account struct {
	ID      string
	Address string
}

// RegisterTourist validates and registers a tourist principal.
func (f *Facade) RegisterTourist(ctx context.Context, input RegisterTouristInput) (Account, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return Account{}, ledger.ErrInvalidID
	}
	origin := strings.TrimSpace(input.OriginCountry)
	if origin == "" {
		return Account{}, fmt.Errorf("%w: origin country is required", ledger.ErrInvalidID)
	}
	if countryCode.MatchString(origin) {
		origin = strings.ToUpper(origin)
	}

	arrival, err := ledger.ParseDay(input.ArrivalDay)
	if err != nil {
		return Account{}, err
	}
	departure, err := ledger.ParseDay(input.DepartureDay)
	if err != nil {
		return Account{}, err
	}

	acct, err := f.core.RegisterTourist(ctx, id, origin, arrival, departure)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: acct.ID, Address: acct.Address}, nil
}

// RegisterRestaurant validates and registers a restaurant principal.
func (f *Facade) RegisterRestaurant(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, ledger.ErrInvalidID
	}
	acct, err := f.core.RegisterRestaurant(ctx, id)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: acct.ID, Address: acct.Address}, nil
}

// Issuance is the caller-facing view of a freshly minted batch.
type Issuance struct {
	Amount    float64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssueDailyCoins mints today's batch for the tourist.
func (f *Facade) IssueDailyCoins(ctx context.Context, touristID string) (Issuance, error) {
	touristID = strings.TrimSpace(touristID)
	if touristID == "" {
		return Issuance{}, ledger.ErrInvalidID
	}
	res, err := f.core.IssueDailyCoins(ctx, touristID)
	if err != nil {
		return Issuance{}, err
	}
	return Issuance{
		Amount:    res.Batch.Amount.Coins(),
		IssuedAt:  res.Batch.IssuedAt,
		ExpiresAt: res.Batch.ExpiresAt,
	}, nil
}

// TransferInput carries the primitive transfer payload. Amount is in coins
// and may be fractional down to 0.01.
type TransferInput struct {
	TouristID    string
	RestaurantID string
	Amount       float64
}

// Transfer is the caller-facing transfer outcome.
type Transfer struct {
	Amount              float64
	RemainingDailyLimit float64
	At                  time.Time
}

// Transfer moves coins from a tourist to a restaurant. On success the
// restaurant's cached received total is invalidated and a notification is
// emitted; both are best-effort and never fail the transfer.
func (f *Facade) Transfer(ctx context.Context, input TransferInput) (Transfer, error) {
	touristID := strings.TrimSpace(input.TouristID)
	restaurantID := strings.TrimSpace(input.RestaurantID)
	if touristID == "" || restaurantID == "" {
		return Transfer{}, ledger.ErrInvalidID
	}
	amount, err := ledger.AmountFromFloat(input.Amount)
	if err != nil {
		return Transfer{}, err
	}

	res, err := f.core.Transfer(ctx, touristID, restaurantID, amount)
	if err != nil {
		return Transfer{}, err
	}

	if err := f.rankings.Invalidate(ctx, restaurantID); err != nil && f.logger != nil {
		f.logger.Warn("rankings invalidation failed",
			slog.String("restaurant_id", restaurantID), slog.Any("error", err))
	}
	if f.notifier != nil {
		_ = f.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindCoinReceived,
			Destination: restaurantID,
			Body:        fmt.Sprintf("received %s coins from tourist %s", res.Record.Amount, touristID),
		})
	}

	return Transfer{
		Amount:              res.Record.Amount.Coins(),
		RemainingDailyLimit: res.RemainingDailyLimit.Coins(),
		At:                  res.Record.At,
	}, nil
}

// Batch is the caller-facing view of one historical issuance batch.
type Batch struct {
	Day       string
	Amount    float64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
}

// Balance is the caller-facing balance statement.
type Balance struct {
	TouristID string
	Balance   float64
	AsOf      time.Time
	Batches   []Batch
}

// GetBalance returns the tourist's derived spendable balance and full batch
// history, expired batches included.
func (f *Facade) GetBalance(ctx context.Context, touristID string) (Balance, error) {
	touristID = strings.TrimSpace(touristID)
	if touristID == "" {
		return Balance{}, ledger.ErrInvalidID
	}
	statement, err := f.core.Balance(ctx, touristID)
	if err != nil {
		return Balance{}, err
	}

	out := Balance{
		TouristID: statement.TouristID,
		Balance:   statement.Balance.Coins(),
		AsOf:      statement.AsOf,
		Batches:   make([]Batch, 0, len(statement.Batches)),
	}
	for _, b := range statement.Batches {
		out.Batches = append(out.Batches, Batch{
			Day:       b.Day.String(),
			Amount:    b.Amount.Coins(),
			IssuedAt:  b.IssuedAt,
			ExpiresAt: b.ExpiresAt,
			Expired:   b.Expired,
		})
	}
	return out, nil
}

// RestaurantReceived returns the restaurant's lifetime received total,
// served through the rankings cache when one is configured.
func (f *Facade) RestaurantReceived(ctx context.Context, restaurantID string) (float64, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return 0, ledger.ErrInvalidID
	}
	total, err := f.rankings.ReceivedTotal(ctx, f.store, restaurantID)
	if err != nil {
		return 0, err
	}
	return total.Coins(), nil
}
