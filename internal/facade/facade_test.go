package facade

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smile-coin/smilecoin/internal/clock"
	"github.com/smile-coin/smilecoin/internal/identity"
	"github.com/smile-coin/smilecoin/internal/ledger"
	"github.com/smile-coin/smilecoin/internal/logging"
	"github.com/smile-coin/smilecoin/internal/notification"
	"github.com/smile-coin/smilecoin/internal/rankings"
)

var testNow = time.Date(2026, time.June, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	last notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	return nil
}

func newTestFacade(t *testing.T) (*Facade, *ledger.MemoryStore, *clock.Fake, *recordingNotifier) {
	t.Helper()
	store := ledger.NewMemoryStore()
	clk := clock.NewFake(testNow)
	core := ledger.NewCore(store, identity.UUIDAllocator{}, clk)
	notifier := &recordingNotifier{}
	return New(core, store, nil, notifier, logging.Discard()), store, clk, notifier
}

func day(offset int) string {
	return ledger.DayOf(testNow).AddDays(offset).String()
}

func TestRegisterTouristInputValidation(t *testing.T) {
	f, store, _, _ := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "  ", OriginCountry: "JP", ArrivalDay: day(0), DepartureDay: day(7)}); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "", ArrivalDay: day(0), DepartureDay: day(7)}); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid origin, got %v", err)
	}
	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "JP", ArrivalDay: "06/10/2026", DepartureDay: day(7)}); !errors.Is(err, ledger.ErrInvalidDateRange) {
		t.Fatalf("expected invalid date, got %v", err)
	}

	acct, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "jp", ArrivalDay: day(0), DepartureDay: day(7)})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.Address == "" {
		t.Fatalf("expected allocated address")
	}

	stored, err := store.GetTourist(ctx, "t1")
	if err != nil {
		t.Fatalf("get tourist: %v", err)
	}
	if stored.OriginCountry != "JP" {
		t.Fatalf("expected country code normalized to JP, got %q", stored.OriginCountry)
	}
}

func TestIssueAndBalanceFlow(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "FR", ArrivalDay: day(0), DepartureDay: day(7)}); err != nil {
		t.Fatalf("register: %v", err)
	}

	issuance, err := f.IssueDailyCoins(ctx, "t1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issuance.Amount != 10 {
		t.Fatalf("expected 10 coins, got %v", issuance.Amount)
	}
	if !issuance.ExpiresAt.Equal(issuance.IssuedAt.Add(14 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry window: %v -> %v", issuance.IssuedAt, issuance.ExpiresAt)
	}

	balance, err := f.GetBalance(ctx, "t1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != 10 {
		t.Fatalf("expected balance 10, got %v", balance.Balance)
	}
	if len(balance.Batches) != 1 || balance.Batches[0].Expired {
		t.Fatalf("expected one live batch, got %+v", balance.Batches)
	}
}

func TestTransferFractionalAmounts(t *testing.T) {
	f, _, _, notifier := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "DE", ArrivalDay: day(0), DepartureDay: day(7)}); err != nil {
		t.Fatalf("register tourist: %v", err)
	}
	if _, err := f.RegisterRestaurant(ctx, "r1"); err != nil {
		t.Fatalf("register restaurant: %v", err)
	}
	if _, err := f.IssueDailyCoins(ctx, "t1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := f.Transfer(ctx, TransferInput{TouristID: "t1", RestaurantID: "r1", Amount: 0.1})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Amount != 0.1 {
		t.Fatalf("expected amount 0.1, got %v", res.Amount)
	}
	if res.RemainingDailyLimit != 2.9 {
		t.Fatalf("expected remaining 2.9, got %v", res.RemainingDailyLimit)
	}
	if notifier.last.Kind != notification.KindCoinReceived || notifier.last.Destination != "r1" {
		t.Fatalf("expected coin_received notification to r1, got %+v", notifier.last)
	}

	if _, err := f.Transfer(ctx, TransferInput{TouristID: "t1", RestaurantID: "r1", Amount: 0.001}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for sub-unit value, got %v", err)
	}
}

func TestTransferInvalidatesRankingsCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := ledger.NewMemoryStore()
	clk := clock.NewFake(testNow)
	core := ledger.NewCore(store, identity.UUIDAllocator{}, clk)
	cache := rankings.New(rdb, time.Minute, logging.Discard())
	f := New(core, store, cache, nil, logging.Discard())
	ctx := context.Background()

	if _, err := f.RegisterTourist(ctx, RegisterTouristInput{ID: "t1", OriginCountry: "IT", ArrivalDay: day(0), DepartureDay: day(7)}); err != nil {
		t.Fatalf("register tourist: %v", err)
	}
	if _, err := f.RegisterRestaurant(ctx, "r1"); err != nil {
		t.Fatalf("register restaurant: %v", err)
	}
	if _, err := f.IssueDailyCoins(ctx, "t1"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Prime the cache with the zero total.
	total, err := f.RestaurantReceived(ctx, "r1")
	if err != nil {
		t.Fatalf("received before: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected zero before transfers, got %v", total)
	}

	if _, err := f.Transfer(ctx, TransferInput{TouristID: "t1", RestaurantID: "r1", Amount: 2}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	total, err = f.RestaurantReceived(ctx, "r1")
	if err != nil {
		t.Fatalf("received after: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected invalidated cache to serve fresh total 2, got %v", total)
	}
}

func TestBlankPrincipalIDs(t *testing.T) {
	f, _, _, _ := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.IssueDailyCoins(ctx, " "); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid id for issuance, got %v", err)
	}
	if _, err := f.GetBalance(ctx, ""); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid id for balance, got %v", err)
	}
	if _, err := f.Transfer(ctx, TransferInput{TouristID: "", RestaurantID: "r1", Amount: 1}); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid id for transfer, got %v", err)
	}
	if _, err := f.RegisterRestaurant(ctx, ""); !errors.Is(err, ledger.ErrInvalidID) {
		t.Fatalf("expected invalid id for restaurant, got %v", err)
	}
}
