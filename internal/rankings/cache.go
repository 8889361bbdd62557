package rankings

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smile-coin/smilecoin/internal/ledger"
)

const keyPrefix = "rankings:received:v1:"

// Cache is a read-through Redis cache over restaurant received totals. It
// never joins the ledger's atomic unit: writes go to the store first, and the
// facade invalidates the affected entry after every successful transfer.
// Lookups fail open to the store when Redis is down.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a cache with the given entry TTL.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// ReceivedTotal returns the restaurant's received total, serving from Redis
// when possible and falling back to (and repopulating from) the store.
// A nil Cache reads straight through.
func (c *Cache) ReceivedTotal(ctx context.Context, store ledger.Store, restaurantID string) (ledger.Amount, error) {
	if c == nil || c.rdb == nil {
		acct, err := store.GetRestaurant(ctx, restaurantID)
		if err != nil {
			return 0, err
		}
		return acct.ReceivedTotal, nil
	}

	key := keyPrefix + restaurantID
	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		total, parseErr := strconv.ParseInt(cached, 10, 64)
		if parseErr == nil {
			return ledger.Amount(total), nil
		}
		c.warn("discarding malformed cache entry", restaurantID, parseErr)
	} else if !errors.Is(err, redis.Nil) {
		c.warn("cache lookup failed", restaurantID, err)
	}

	acct, err := store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return 0, err
	}

	if setErr := c.rdb.Set(ctx, key, strconv.FormatInt(int64(acct.ReceivedTotal), 10), c.ttl).Err(); setErr != nil {
		c.warn("cache populate failed", restaurantID, setErr)
	}
	return acct.ReceivedTotal, nil
}

// Invalidate drops the restaurant's cache entry. Best effort: a failure means
// a stale total may be served until the TTL expires.
func (c *Cache) Invalidate(ctx context.Context, restaurantID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, keyPrefix+restaurantID).Err()
}

func (c *Cache) warn(msg, restaurantID string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.String("restaurant_id", restaurantID), slog.Any("error", err))
	}
}
