package web

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// PassRunner runs one evaluation pass.
type PassRunner interface {
	RunPass(ctx context.Context, opts engine.PassOptions) (*models.PassSummary, error)
}

type APIHandlers struct {
	runner      PassRunner
	persistence persistence.Persistence
	ledger      persistence.Ledger
	validator   *validator.Validate

	// running rejects overlapping passes from this process; the ledger already
	// keeps them correct, this only avoids wasted work.
	running sync.Mutex
}

func NewAPIHandlers(
	runner PassRunner,
	persistence persistence.Persistence,
	ledger persistence.Ledger,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		runner:      runner,
		persistence: persistence,
		ledger:      ledger,
		validator:   validator,
	}
}

// RunPass handles POST /passes?today=YYYY-MM-DD&backfill_days=N.
func (h *APIHandlers) RunPass(c fiber.Ctx) error {
	req, err := parsePassRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	opts := engine.PassOptions{BackfillDays: req.BackfillDays}

	if req.Today != "" {
		today, err := models.ParseDay(req.Today)
		if err != nil {
			return badRequest(c, err.Error())
		}

		opts.Today = &today
	}

	if !h.running.TryLock() {
		return conflict(c, "An evaluation pass is already running")
	}
	defer h.running.Unlock()

	summary, err := h.runner.RunPass(c.Context(), opts)
	if err != nil && summary == nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func parsePassRequest(c fiber.Ctx) (*PassRequest, error) {
	req := &PassRequest{Today: c.Query("today")}

	if backfillStr := c.Query("backfill_days"); backfillStr != "" {
		backfill, err := strconv.Atoi(backfillStr)
		if err != nil {
			return nil, err
		}

		req.BackfillDays = backfill
	}

	return req, nil
}

// GetRules handles GET /rules: every stored rule with its validation verdict.
func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	definitions, err := h.persistence.RuleRepository().Rules(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	response := RulesResponse{Rules: make([]RuleView, 0, len(definitions))}

	for _, definition := range definitions {
		view := RuleView{RuleDefinition: definition, Valid: true}

		if _, err := engine.ValidateDefinition(definition); err != nil {
			view.Valid = false
			view.Error = err.Error()
			response.InvalidCount++
		}

		response.Rules = append(response.Rules, view)
	}

	response.TotalCount = len(response.Rules)

	return c.JSON(response)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checkers := map[string]string{
		"persistence": "ok",
		"ledger":      "ok",
	}

	healthy := true

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		checkers["persistence"] = err.Error()
		healthy = false
	}

	if err := h.ledger.HealthCheck(c.Context()); err != nil {
		checkers["ledger"] = err.Error()
		healthy = false
	}

	response := HealthResponse{
		Status:    "unhealthy",
		Message:   "Cadence API is unhealthy",
		Checkers:  checkers,
		Timestamp: time.Now().UTC(),
	}
	httpStatus := http.StatusServiceUnavailable

	if healthy {
		response.Status = "healthy"
		response.Message = "Cadence API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(response)
}
