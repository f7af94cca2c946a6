// Package config loads rule definitions from YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/cadence/pkg/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoRules     = errors.New("rules file defines no rules")
	ErrDuplicateID = errors.New("duplicate rule id")
	ErrMissingID   = errors.New("rule without id")
)

// RulesFile is the layout of a rules YAML file. Each entry uses the same field names
// as the stored JSON definition; action_config is kept as free-form YAML.
type RulesFile struct {
	Rules []map[string]any `yaml:"rules"`
}

// LoadRules reads a rules file from disk.
func LoadRules(path string) ([]*models.RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	return ParseRules(data)
}

// ParseRules decodes rule definitions from YAML. Definitions are not validated
// beyond ids; the rule catalog decides whether each one is usable.
func ParseRules(data []byte) ([]*models.RuleDefinition, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules: %w", err)
	}

	if len(file.Rules) == 0 {
		return nil, ErrNoRules
	}

	definitions := make([]*models.RuleDefinition, 0, len(file.Rules))
	seen := make(map[string]bool, len(file.Rules))

	for i, raw := range file.Rules {
		// yaml and json agree on the map shape, so the stored JSON decoders apply.
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		var definition models.RuleDefinition
		if err := json.Unmarshal(encoded, &definition); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		if definition.ID == "" {
			return nil, fmt.Errorf("rule %d: %w", i, ErrMissingID)
		}

		if seen[definition.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, definition.ID)
		}

		seen[definition.ID] = true

		definitions = append(definitions, &definition)
	}

	return definitions, nil
}
