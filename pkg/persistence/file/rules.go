package file

import (
	"context"
	"errors"
	"path/filepath"
	"sort"

	"github.com/dukex/cadence/pkg/models"
)

type ruleRepository struct {
	fp *Persistence
}

func (r *ruleRepository) ActiveRules(_ context.Context) ([]*models.RuleDefinition, error) {
	return r.list(func(rule *models.RuleDefinition) bool { return rule.IsActive })
}

func (r *ruleRepository) Rules(_ context.Context) ([]*models.RuleDefinition, error) {
	return r.list(func(*models.RuleDefinition) bool { return true })
}

func (r *ruleRepository) SaveRule(_ context.Context, rule *models.RuleDefinition) error {
	if rule == nil || rule.ID == "" {
		return errors.New("rule ID cannot be empty")
	}

	return writeFile(filepath.Join(r.fp.dir(rulesDir), fileName(rule.ID, ".json")), rule)
}

func (r *ruleRepository) list(keep func(*models.RuleDefinition) bool) ([]*models.RuleDefinition, error) {
	all, err := readDir[models.RuleDefinition](r.fp.dir(rulesDir))
	if err != nil {
		return nil, err
	}

	rules := make([]*models.RuleDefinition, 0, len(all))

	for _, rule := range all {
		if keep(rule) {
			rules = append(rules, rule)
		}
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return rules, nil
}
