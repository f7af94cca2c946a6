package engine

import (
	"context"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

// InvalidRule is an active rule the catalog refused to evaluate.
type InvalidRule struct {
	Definition *models.RuleDefinition
	Err        error
}

// Catalog is the read-only view of active rules for one pass, partitioned by trigger kind.
type Catalog struct {
	date     []*models.AutomationRule
	interval []*models.AutomationRule
	invalid  []InvalidRule
}

// LoadCatalog reads every active rule. A repository failure is returned as an error;
// a malformed rule only lands in Invalid.
func LoadCatalog(ctx context.Context, repo persistence.RuleRepository) (*Catalog, error) {
	definitions, err := repo.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	catalog := &Catalog{}

	for _, definition := range definitions {
		rule, err := ValidateDefinition(definition)
		if err != nil {
			catalog.invalid = append(catalog.invalid, InvalidRule{Definition: definition, Err: err})

			continue
		}

		if rule.Trigger.Kind.IsDateTrigger() {
			catalog.date = append(catalog.date, rule)
		} else {
			catalog.interval = append(catalog.interval, rule)
		}
	}

	return catalog, nil
}

// ValidateDefinition decodes a stored rule and checks it can be evaluated. The
// returned error is always of kind ErrConfiguration.
func ValidateDefinition(definition *models.RuleDefinition) (*models.AutomationRule, error) {
	configErr := func(err error) error {
		return &Error{Kind: ErrConfiguration, RuleID: definition.ID, Err: err}
	}

	rule, err := definition.Rule()
	if err != nil {
		return nil, configErr(err)
	}

	err = validate.Struct(rule)
	if err != nil {
		return nil, configErr(err)
	}

	err = rule.CheckInvariants()
	if err != nil {
		return nil, configErr(err)
	}

	return rule, nil
}

func (c *Catalog) DateRules() []*models.AutomationRule     { return c.date }
func (c *Catalog) IntervalRules() []*models.AutomationRule { return c.interval }
func (c *Catalog) Invalid() []InvalidRule                  { return c.invalid }

// Len counts the rules that will be evaluated.
func (c *Catalog) Len() int {
	return len(c.date) + len(c.interval)
}
