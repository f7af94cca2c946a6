// Package web provides HTTP request and response types for the rule engine API.
package web

import (
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// PassRequest holds the query parameters of POST /passes.
type PassRequest struct {
	Today        string `validate:"omitempty,datetime=2006-01-02"`
	BackfillDays int    `validate:"min=0,max=366"`
}

// RuleView is a stored rule together with the catalog's verdict on it.
type RuleView struct {
	*models.RuleDefinition

	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// RulesResponse is the body of GET /rules.
type RulesResponse struct {
	Rules        []RuleView `json:"rules"`
	TotalCount   int        `json:"total_count"`
	InvalidCount int        `json:"invalid_count"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Checkers  map[string]string `json:"checkers"`
	Timestamp time.Time         `json:"timestamp"`
}
