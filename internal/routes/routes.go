package routes

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/gofiber/fiber/v2/middleware/logger"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"

    "github.com/smile-coin/smilecoin/internal/clock"
    "github.com/smile-coin/smilecoin/internal/config"
    "github.com/smile-coin/smilecoin/internal/facade"
    "github.com/smile-coin/smilecoin/internal/identity"
    "github.com/smile-coin/smilecoin/internal/ledger"
    "github.com/smile-coin/smilecoin/internal/middleware"
    "github.com/smile-coin/smilecoin/internal/notification"
    "github.com/smile-coin/smilecoin/internal/rankings"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
    Cfg    config.Config
    DB     *pgxpool.Pool
    Cache  *redis.Client
    Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    // Enforce DB presence outside of dev; development falls back to the
    // in-memory store.
    if !isDev(d.Cfg.AppEnv) && d.DB == nil {
        return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
    }

    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    app.Use(logger.New(logger.Config{
        Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
        TimeFormat: "15:04:05",
        TimeZone:   "Local",
    }))
    app.Use(middleware.Audit(d.Logger))

    // Health
    RegisterHealthRoutes(app, d)

    // Account store
    var store ledger.Store
    if d.DB != nil {
        pg := ledger.NewPostgresStore(d.DB)
        if err := pg.EnsureSchema(context.Background()); err != nil {
            return err
        }
        store = pg
    } else {
        store = ledger.NewMemoryStore()
    }

    // Identity allocator: derived addresses when a namespace secret is
    // configured, random UUID handles otherwise.
    var alloc identity.Allocator
    if d.Cfg.AddressSecret != "" {
        derived, err := identity.NewDerivedAllocator(d.Cfg.AddressSecret)
        if err != nil {
            return err
        }
        alloc = derived
    } else {
        alloc = identity.UUIDAllocator{}
    }

    core := ledger.NewCore(store, alloc, clock.System{})

    var rankingsCache *rankings.Cache
    if d.Cache != nil {
        rankingsCache = rankings.New(d.Cache, d.Cfg.RankingsTTL, d.Logger)
    }
    notifier := notification.NewLoggerNotifier(d.Logger)

    ledgerFacade := facade.New(core, store, rankingsCache, notifier, d.Logger)

    // API routes
    api := app.Group("/api/v1")
    api.Get("/ping", func(c *fiber.Ctx) error {
        reqID, _ := c.Locals("X-Request-ID").(string)
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "status": "ok",
            "request_id": reqID,
            "timestamp": time.Now().UTC().Format(time.RFC3339Nano),
        })
    })

    rateLimiter := middleware.RegisterRateLimit(d.Cache, d.Cfg.RegisterRateLimit)
    RegisterTouristRoutes(api, ledgerFacade, rateLimiter)
    RegisterRestaurantRoutes(api, ledgerFacade, rateLimiter)

    return nil
}

// statusOf maps ledger error kinds to transport codes. This is the only place
// where HTTP status semantics exist; the facade stays transport-free.
func statusOf(err error) int {
    switch {
    case errors.Is(err, ledger.ErrTouristNotFound),
        errors.Is(err, ledger.ErrRestaurantNotFound),
        errors.Is(err, ledger.ErrNotRegistered):
        return http.StatusNotFound
    case errors.Is(err, ledger.ErrAlreadyRegistered):
        return http.StatusConflict
    case errors.Is(err, ledger.ErrInvalidDateRange),
        errors.Is(err, ledger.ErrArrivalTooFarInFuture),
        errors.Is(err, ledger.ErrInvalidAmount),
        errors.Is(err, ledger.ErrInvalidID):
        return http.StatusBadRequest
    case errors.Is(err, ledger.ErrOutsideTravelWindow),
        errors.Is(err, ledger.ErrAlreadyIssuedToday),
        errors.Is(err, ledger.ErrInsufficientBalance),
        errors.Is(err, ledger.ErrDailyRestaurantLimit):
        return http.StatusUnprocessableEntity
    case errors.Is(err, ledger.ErrAllocationFailed),
        errors.Is(err, ledger.ErrStoreUnavailable):
        return http.StatusServiceUnavailable
    default:
        return http.StatusInternalServerError
    }
}

func isDev(env string) bool {
    switch strings.ToLower(env) {
    case "dev", "development", "local":
        return true
    default:
        return false
    }
}
