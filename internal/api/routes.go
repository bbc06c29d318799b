package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterRoutes mounts /metrics, /health and the v1 API on app.
func RegisterRoutes(app *fiber.App, h *Handler, checks ...HealthCheck) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", healthHandler(checks))

	v1 := app.Group("/api/v1")
	v1.Post("/quote-requests", h.CreateQuoteRequest)
	v1.Get("/quote-requests/:id", h.GetQuoteRequest)
	v1.Post("/quote-requests/:id/cancel", h.CancelQuoteRequest)
	v1.Get("/quote-requests/:id/quotes", h.ListQuotes)
	v1.Post("/quote-requests/:id/quotes", h.SubmitQuote)
	v1.Post("/quote-requests/:id/accept", h.AcceptQuote)
	v1.Get("/quote-requests/:id/messages", h.GetMessages)
	v1.Post("/quote-requests/:id/messages", h.SendMessage)

	admin := v1.Group("/admin")
	admin.Get("/whitelist", h.ListMarketMakers)
	admin.Post("/whitelist", h.AddMarketMaker)
	admin.Delete("/whitelist/:address", h.RemoveMarketMaker)
	admin.Get("/whitelist/audit", h.AuditLog)
}

func healthHandler(checks []HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, hc := range checks {
			results[hc.Name] = "ok"
			if err := hc.Check(healthCtx); err != nil {
				results[hc.Name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
