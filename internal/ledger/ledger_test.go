package ledger

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestAmountFromFloat(t *testing.T) {
	amount, err := AmountFromFloat(0.1)
	if err != nil {
		t.Fatalf("0.1 coin: %v", err)
	}
	if amount != 10 {
		t.Fatalf("expected 10 units for 0.1 coin, got %d", amount)
	}

	amount, err = AmountFromFloat(3)
	if err != nil {
		t.Fatalf("3 coins: %v", err)
	}
	if amount != DailyRestaurantCap {
		t.Fatalf("expected cap value, got %d", amount)
	}

	for _, bad := range []float64{0.001, 1.234, math.NaN(), math.Inf(1)} {
		if _, err := AmountFromFloat(bad); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%v: expected invalid amount, got %v", bad, err)
		}
	}
}

func TestAmountString(t *testing.T) {
	if got := Coins(10).String(); got != "10.00" {
		t.Fatalf("expected 10.00, got %s", got)
	}
	if got := Amount(10).String(); got != "0.10" {
		t.Fatalf("expected 0.10, got %s", got)
	}
}

func TestDayBoundariesAreUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	local := time.Date(2026, time.June, 10, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	if got := DayOf(local); got != (Day{Year: 2026, Month: time.June, Day: 11}) {
		t.Fatalf("expected UTC day 2026-06-11, got %s", got)
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2026-06-10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if day.String() != "2026-06-10" {
		t.Fatalf("round trip failed: %s", day)
	}
	if _, err := ParseDay("10/06/2026"); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected invalid date range, got %v", err)
	}
}

func TestDayArithmetic(t *testing.T) {
	day := Day{Year: 2026, Month: time.January, Day: 31}
	if got := day.AddDays(1); got != (Day{Year: 2026, Month: time.February, Day: 1}) {
		t.Fatalf("expected month rollover, got %s", got)
	}
	if !day.Before(day.AddDays(1)) || !day.AddDays(1).After(day) {
		t.Fatalf("ordering broken around %s", day)
	}
}

func TestBatchSpendableWindow(t *testing.T) {
	issued := time.Date(2026, time.June, 10, 9, 0, 0, 0, time.UTC)
	b := IssuanceBatch{IssuedAt: issued, ExpiresAt: issued.Add(BatchLifetime)}

	if !b.SpendableAt(issued) {
		t.Fatalf("batch must be spendable at issue instant")
	}
	if !b.SpendableAt(issued.Add(BatchLifetime - time.Nanosecond)) {
		t.Fatalf("batch must be spendable just before expiry")
	}
	if b.SpendableAt(issued.Add(BatchLifetime)) {
		t.Fatalf("batch must not be spendable at expiry instant")
	}
	if b.SpendableAt(issued.Add(-time.Second)) {
		t.Fatalf("batch must not be spendable before issuance")
	}
}
