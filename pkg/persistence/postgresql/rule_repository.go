package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
)

// RuleRepository handles automation rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

const selectRules = `
	SELECT
		id
	  , name
	  , is_active
	  , scope
	  , trigger_config
	  , condition_config
	  , action_kind
	  , action_config
	FROM automation_rules
`

// ActiveRules returns the definitions of every active rule ordered by id.
func (r *RuleRepository) ActiveRules(ctx context.Context) ([]*models.RuleDefinition, error) {
	return r.query(ctx, selectRules+" WHERE is_active ORDER BY id")
}

// Rules returns every rule definition ordered by id.
func (r *RuleRepository) Rules(ctx context.Context) ([]*models.RuleDefinition, error) {
	return r.query(ctx, selectRules+" ORDER BY id")
}

// SaveRule inserts or replaces a rule definition.
func (r *RuleRepository) SaveRule(ctx context.Context, rule *models.RuleDefinition) error {
	if rule == nil || rule.ID == "" {
		return errors.New("rule ID cannot be empty")
	}

	scopeJSON, err := json.Marshal(rule.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}

	triggerJSON, err := json.Marshal(rule.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("failed to marshal condition: %w", err)
	}

	actionConfig := []byte(rule.ActionConfig)
	if len(actionConfig) == 0 {
		actionConfig = []byte("{}")
	}

	query := `
		INSERT INTO automation_rules (
			id, name, is_active, scope, trigger_config, condition_config, action_kind, action_config
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			scope = EXCLUDED.scope,
			trigger_config = EXCLUDED.trigger_config,
			condition_config = EXCLUDED.condition_config,
			action_kind = EXCLUDED.action_kind,
			action_config = EXCLUDED.action_config,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.IsActive,
		scopeJSON,
		triggerJSON,
		conditionJSON,
		rule.ActionKind,
		actionConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) query(ctx context.Context, query string) ([]*models.RuleDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.RuleDefinition, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// scanRule decodes the JSON columns. The action config stays raw; a malformed one is
// reported by the rule catalog against its own rule only.
func scanRule(rows *sql.Rows) (*models.RuleDefinition, error) {
	var rule models.RuleDefinition

	var scopeJSON, triggerJSON, conditionJSON, actionConfig []byte

	err := rows.Scan(
		&rule.ID,
		&rule.Name,
		&rule.IsActive,
		&scopeJSON,
		&triggerJSON,
		&conditionJSON,
		&rule.ActionKind,
		&actionConfig,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(scopeJSON, &rule.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope of rule %s: %w", rule.ID, err)
	}

	err = json.Unmarshal(triggerJSON, &rule.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger of rule %s: %w", rule.ID, err)
	}

	err = json.Unmarshal(conditionJSON, &rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition of rule %s: %w", rule.ID, err)
	}

	rule.ActionConfig = json.RawMessage(actionConfig)

	return &rule, nil
}
