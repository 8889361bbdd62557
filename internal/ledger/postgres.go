package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists accounts and their append-only history in
// PostgreSQL. Each compare-and-append runs inside a transaction that locks
// the affected account rows with SELECT ... FOR UPDATE; for transfers the
// tourist row is always locked before the restaurant row so two-account
// operations acquire locks in one global order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS tourist_accounts (
    id             TEXT PRIMARY KEY,
    address        TEXT NOT NULL UNIQUE,
    origin_country TEXT NOT NULL,
    arrival_day    DATE NOT NULL,
    departure_day  DATE NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS restaurant_accounts (
    id             TEXT PRIMARY KEY,
    address        TEXT NOT NULL UNIQUE,
    received_total BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS issuance_batches (
    id         UUID PRIMARY KEY,
    tourist_id TEXT NOT NULL REFERENCES tourist_accounts (id),
    day        DATE NOT NULL,
    amount     BIGINT NOT NULL,
    issued_at  TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    UNIQUE (tourist_id, day)
);
CREATE TABLE IF NOT EXISTS transfer_records (
    id            UUID PRIMARY KEY,
    tourist_id    TEXT NOT NULL REFERENCES tourist_accounts (id),
    restaurant_id TEXT NOT NULL REFERENCES restaurant_accounts (id),
    amount        BIGINT NOT NULL,
    day           DATE NOT NULL,
    at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transfer_records_daily_idx
    ON transfer_records (tourist_id, restaurant_id, day);
`

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storeErr("ensure schema", err)
	}
	return nil
}

// CreateTourist inserts a tourist account row.
func (s *PostgresStore) CreateTourist(ctx context.Context, acct TouristAccount) error {
	_, err := s.db.Exec(ctx, `INSERT INTO tourist_accounts (id, address, origin_country, arrival_day, departure_day, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		acct.ID, acct.Address, acct.OriginCountry, acct.ArrivalDay.Time(), acct.DepartureDay.Time(), acct.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return storeErr("create tourist", err)
	}
	return nil
}

// CreateRestaurant inserts a restaurant account row with a zero total.
func (s *PostgresStore) CreateRestaurant(ctx context.Context, acct RestaurantAccount) error {
	_, err := s.db.Exec(ctx, `INSERT INTO restaurant_accounts (id, address, received_total, created_at)
        VALUES ($1, $2, $3, $4)`,
		acct.ID, acct.Address, int64(acct.ReceivedTotal), acct.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return storeErr("create restaurant", err)
	}
	return nil
}

// GetTourist fetches a tourist account by identifier.
func (s *PostgresStore) GetTourist(ctx context.Context, id string) (TouristAccount, error) {
	return scanTourist(s.db.QueryRow(ctx, `SELECT id, address, origin_country, arrival_day, departure_day, created_at
        FROM tourist_accounts WHERE id = $1`, id))
}

// GetRestaurant fetches a restaurant account by identifier.
func (s *PostgresStore) GetRestaurant(ctx context.Context, id string) (RestaurantAccount, error) {
	return scanRestaurant(s.db.QueryRow(ctx, `SELECT id, address, received_total, created_at
        FROM restaurant_accounts WHERE id = $1`, id))
}

// History loads the tourist's account and full history in one transaction so
// the snapshot is consistent without taking row locks.
func (s *PostgresStore) History(ctx context.Context, touristID string) (TouristHistory, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return TouristHistory{}, storeErr("begin history", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	h, err := historyInTx(ctx, tx, touristID, false)
	if err != nil {
		return TouristHistory{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return TouristHistory{}, storeErr("commit history", err)
	}
	return h, nil
}

// AppendBatch locks the tourist row, evaluates check against the current
// history and inserts the batch when it passes. The UNIQUE (tourist_id, day)
// constraint backstops the same-day latch; a violation surfaces as
// ErrAlreadyIssuedToday.
func (s *PostgresStore) AppendBatch(ctx context.Context, touristID string, check func(TouristHistory) error, batch IssuanceBatch) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("begin append batch", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	h, err := historyInTx(ctx, tx, touristID, true)
	if err != nil {
		return err
	}
	if err := check(h); err != nil {
		return err
	}

	batchID, err := uuid.Parse(batch.ID)
	if err != nil {
		return fmt.Errorf("parse batch id: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO issuance_batches (id, tourist_id, day, amount, issued_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		batchID, batch.TouristID, batch.Day.Time(), int64(batch.Amount), batch.IssuedAt.UTC(), batch.ExpiresAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyIssuedToday
		}
		return storeErr("insert batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit append batch", err)
	}
	return nil
}

// AppendTransfer locks the tourist row then the restaurant row, evaluates
// check and, when it passes, inserts the record and credits the restaurant's
// received total inside the same transaction.
func (s *PostgresStore) AppendTransfer(ctx context.Context, touristID, restaurantID string, check func(TransferState) error, rec TransferRecord) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("begin append transfer", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	h, err := historyInTx(ctx, tx, touristID, true)
	if err != nil {
		return err
	}

	rest, err := scanRestaurant(tx.QueryRow(ctx, `SELECT id, address, received_total, created_at
        FROM restaurant_accounts WHERE id = $1 FOR UPDATE`, restaurantID))
	if err != nil {
		return err
	}

	if err := check(TransferState{TouristHistory: h, Restaurant: rest}); err != nil {
		return err
	}

	recID, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("parse record id: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transfer_records (id, tourist_id, restaurant_id, amount, day, at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		recID, rec.TouristID, rec.RestaurantID, int64(rec.Amount), rec.Day.Time(), rec.At.UTC()); err != nil {
		return storeErr("insert transfer", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE restaurant_accounts SET received_total = received_total + $1 WHERE id = $2`,
		int64(rec.Amount), rec.RestaurantID); err != nil {
		return storeErr("credit restaurant", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit append transfer", err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func historyInTx(ctx context.Context, q querier, touristID string, forUpdate bool) (TouristHistory, error) {
	acctQuery := `SELECT id, address, origin_country, arrival_day, departure_day, created_at
        FROM tourist_accounts WHERE id = $1`
	if forUpdate {
		acctQuery += ` FOR UPDATE`
	}
	acct, err := scanTourist(q.QueryRow(ctx, acctQuery, touristID))
	if err != nil {
		return TouristHistory{}, err
	}

	h := TouristHistory{Account: acct}

	rows, err := q.Query(ctx, `SELECT id, tourist_id, day, amount, issued_at, expires_at
        FROM issuance_batches WHERE tourist_id = $1 ORDER BY day`, touristID)
	if err != nil {
		return TouristHistory{}, storeErr("load batches", err)
	}
	for rows.Next() {
		var (
			b       IssuanceBatch
			id      uuid.UUID
			day     time.Time
			amount  int64
			issued  time.Time
			expires time.Time
		)
		if err := rows.Scan(&id, &b.TouristID, &day, &amount, &issued, &expires); err != nil {
			rows.Close()
			return TouristHistory{}, storeErr("scan batch", err)
		}
		b.ID = id.String()
		b.Day = DayOf(day)
		b.Amount = Amount(amount)
		b.IssuedAt = issued.UTC()
		b.ExpiresAt = expires.UTC()
		h.Batches = append(h.Batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return TouristHistory{}, storeErr("load batches", err)
	}

	rows, err = q.Query(ctx, `SELECT id, tourist_id, restaurant_id, amount, day, at
        FROM transfer_records WHERE tourist_id = $1 ORDER BY at`, touristID)
	if err != nil {
		return TouristHistory{}, storeErr("load transfers", err)
	}
	for rows.Next() {
		var (
			rec    TransferRecord
			id     uuid.UUID
			amount int64
			day    time.Time
			at     time.Time
		)
		if err := rows.Scan(&id, &rec.TouristID, &rec.RestaurantID, &amount, &day, &at); err != nil {
			rows.Close()
			return TouristHistory{}, storeErr("scan transfer", err)
		}
		rec.ID = id.String()
		rec.Amount = Amount(amount)
		rec.Day = DayOf(day)
		rec.At = at.UTC()
		h.Transfers = append(h.Transfers, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return TouristHistory{}, storeErr("load transfers", err)
	}

	return h, nil
}

func scanTourist(r row) (TouristAccount, error) {
	var (
		acct      TouristAccount
		arrival   time.Time
		departure time.Time
		createdAt time.Time
	)
	if err := r.Scan(&acct.ID, &acct.Address, &acct.OriginCountry, &arrival, &departure, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TouristAccount{}, ErrTouristNotFound
		}
		return TouristAccount{}, storeErr("scan tourist", err)
	}
	acct.ArrivalDay = DayOf(arrival)
	acct.DepartureDay = DayOf(departure)
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

func scanRestaurant(r row) (RestaurantAccount, error) {
	var (
		acct      RestaurantAccount
		total     int64
		createdAt time.Time
	)
	if err := r.Scan(&acct.ID, &acct.Address, &total, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RestaurantAccount{}, ErrRestaurantNotFound
		}
		return RestaurantAccount{}, storeErr("scan restaurant", err)
	}
	acct.ReceivedTotal = Amount(total)
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
