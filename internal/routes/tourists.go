package routes

import (
    "net/http"

    "github.com/gofiber/fiber/v2"

    "github.com/smile-coin/smilecoin/internal/facade"
)

// RegisterTouristRoutes wires tourist registration, daily issuance and the
// balance query.
func RegisterTouristRoutes(r fiber.Router, f *facade.Facade, rateLimiter fiber.Handler) {
    r.Post("/tourists", rateLimiter, func(c *fiber.Ctx) error {
        var req struct {
            ID            string `json:"id"`
            OriginCountry string `json:"origin_country"`
            ArrivalDay    string `json:"arrival_day"`
            DepartureDay  string `json:"departure_day"`
        }
        if err := c.BodyParser(&req); err != nil {
            return fiber.NewError(http.StatusBadRequest, err.Error())
        }
        acct, err := f.RegisterTourist(c.UserContext(), facade.RegisterTouristInput{
            ID:            req.ID,
            OriginCountry: req.OriginCountry,
            ArrivalDay:    req.ArrivalDay,
            DepartureDay:  req.DepartureDay,
        })
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        return c.Status(http.StatusCreated).JSON(fiber.Map{
            "id":      acct.ID,
            "address": acct.Address,
        })
    })

    r.Post("/tourists/:touristId/issuances", func(c *fiber.Ctx) error {
        issuance, err := f.IssueDailyCoins(c.UserContext(), c.Params("touristId"))
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        return c.Status(http.StatusCreated).JSON(fiber.Map{
            "amount":     issuance.Amount,
            "issued_at":  issuance.IssuedAt,
            "expires_at": issuance.ExpiresAt,
        })
    })

    r.Get("/tourists/:touristId/balance", func(c *fiber.Ctx) error {
        balance, err := f.GetBalance(c.UserContext(), c.Params("touristId"))
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        batches := make([]fiber.Map, 0, len(balance.Batches))
        for _, b := range balance.Batches {
            batches = append(batches, fiber.Map{
                "day":        b.Day,
                "amount":     b.Amount,
                "issued_at":  b.IssuedAt,
                "expires_at": b.ExpiresAt,
                "expired":    b.Expired,
            })
        }
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "tourist_id": balance.TouristID,
            "balance":    balance.Balance,
            "as_of":      balance.AsOf,
            "batches":    batches,
        })
    })

    r.Post("/transfers", func(c *fiber.Ctx) error {
        var req struct {
            TouristID    string  `json:"tourist_id"`
            RestaurantID string  `json:"restaurant_id"`
            Amount       float64 `json:"amount"`
        }
        if err := c.BodyParser(&req); err != nil {
            return fiber.NewError(http.StatusBadRequest, err.Error())
        }
        res, err := f.Transfer(c.UserContext(), facade.TransferInput{
            TouristID:    req.TouristID,
            RestaurantID: req.RestaurantID,
            Amount:       req.Amount,
        })
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        return c.Status(http.StatusCreated).JSON(fiber.Map{
            "amount":                res.Amount,
            "remaining_daily_limit": res.RemainingDailyLimit,
            "at":                    res.At,
        })
    })
}
