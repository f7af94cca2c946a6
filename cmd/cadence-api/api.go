// Package main provides the Cadence API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	runner      web.PassRunner
	persistence persistence.Persistence
	ledger      persistence.Ledger
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	runner web.PassRunner,
	persistence persistence.Persistence,
	ledger persistence.Ledger,
) *API {
	return &API{
		logger:      logger,
		runner:      runner,
		persistence: persistence,
		ledger:      ledger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.runner, a.persistence, a.ledger, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	app.Post("/passes", handlers.RunPass)
	app.Get("/rules", handlers.GetRules)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Starting API server", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}
