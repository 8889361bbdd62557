package routes

import (
    "net/http"

    "github.com/gofiber/fiber/v2"

    "github.com/smile-coin/smilecoin/internal/facade"
)

// RegisterRestaurantRoutes wires restaurant registration and the received
// total lookup.
func RegisterRestaurantRoutes(r fiber.Router, f *facade.Facade, rateLimiter fiber.Handler) {
    r.Post("/restaurants", rateLimiter, func(c *fiber.Ctx) error {
        var req struct {
            ID string `json:"id"`
        }
        if err := c.BodyParser(&req); err != nil {
            return fiber.NewError(http.StatusBadRequest, err.Error())
        }
        acct, err := f.RegisterRestaurant(c.UserContext(), req.ID)
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        return c.Status(http.StatusCreated).JSON(fiber.Map{
            "id":      acct.ID,
            "address": acct.Address,
        })
    })

    r.Get("/restaurants/:restaurantId/received", func(c *fiber.Ctx) error {
        total, err := f.RestaurantReceived(c.UserContext(), c.Params("restaurantId"))
        if err != nil {
            return fiber.NewError(statusOf(err), err.Error())
        }
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "restaurant_id":  c.Params("restaurantId"),
            "received_total": total,
        })
    })
}
