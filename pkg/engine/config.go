package engine

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultBackfillDays is the interval backfill window used when none is configured.
const DefaultBackfillDays = 5

// Config tunes one engine instance.
type Config struct {
	// Location decides which calendar day "now" falls on.
	Location *time.Location `validate:"required"`

	RuleConcurrency    int           `validate:"min=1"`
	SubjectConcurrency int           `validate:"min=1"`
	StoreTimeout       time.Duration `validate:"gt=0"`

	// BackfillDays is the default interval backfill window K; K <= 1 checks today only.
	BackfillDays int `validate:"min=0"`
}

func DefaultConfig() Config {
	return Config{
		Location:           time.UTC,
		RuleConcurrency:    4,
		SubjectConcurrency: 8,
		StoreTimeout:       10 * time.Second,
		BackfillDays:       DefaultBackfillDays,
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	return nil
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time { return c.Time }
