package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownActionKind   = errors.New("unknown action kind")
	ErrInvalidActionConfig = errors.New("invalid action config")
)

var labelSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"label": map[string]any{"type": "string", "minLength": 1},
	},
	"required": []string{"label"},
}

// actionSchemas describes the stored action_config payload for every action kind.
var actionSchemas = map[ActionKind]map[string]any{
	ActionAddTask: {
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string"},
			"assigned_to": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":    map[string]any{"type": "string", "enum": []string{string(AssigneeLiteral), string(AssigneeSubjectSalesPerson)}},
					"user_id": map[string]any{"type": "string"},
				},
			},
			"deadline": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"base":        map[string]any{"type": "string", "minLength": 1},
					"offset_days": map[string]any{"type": "integer", "minimum": 0},
					"direction":   map[string]any{"type": "string", "enum": []string{string(DirectionBefore), string(DirectionAfter)}},
				},
				"required": []string{"base"},
			},
		},
		"required": []string{"title"},
	},
	ActionAddLabel:    labelSchema,
	ActionRemoveLabel: labelSchema,
	ActionChangeStatus: {
		"type": "object",
		"properties": map[string]any{
			"status_id": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"status_id"},
	},
	ActionSetFieldValue: {
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind": map[string]any{"type": "string", "enum": []string{string(FieldValueCurrentDate), string(FieldValueLiteral)}},
					"date": map[string]any{"type": "string"},
				},
				"required": []string{"kind"},
			},
		},
		"required": []string{"field", "value"},
	},
}

// ActionSchema returns the JSON schema for an action kind's config payload.
func ActionSchema(kind ActionKind) (map[string]any, bool) {
	schema, ok := actionSchemas[kind]

	return schema, ok
}

// DecodeAction validates a stored action config against its schema and decodes it
// into the concrete action type.
func DecodeAction(kind ActionKind, raw json.RawMessage) (Action, error) {
	schema, ok := actionSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, kind)
	}

	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidActionConfig, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			details = append(details, resultErr.String())
		}

		return nil, fmt.Errorf("%w for %s: %s", ErrInvalidActionConfig, kind, strings.Join(details, "; "))
	}

	var action Action

	switch kind {
	case ActionAddTask:
		action, err = decodeInto[AddTask](raw)
	case ActionAddLabel:
		action, err = decodeInto[AddLabel](raw)
	case ActionRemoveLabel:
		action, err = decodeInto[RemoveLabel](raw)
	case ActionChangeStatus:
		action, err = decodeInto[ChangeStatus](raw)
	case ActionSetFieldValue:
		action, err = decodeInto[SetFieldValue](raw)
	}

	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrInvalidActionConfig, kind, err)
	}

	return action, nil
}

func decodeInto[T Action](raw json.RawMessage) (Action, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}

	return value, nil
}

// EncodeAction returns the kind and config payload to store for an action.
func EncodeAction(action Action) (ActionKind, json.RawMessage, error) {
	if action == nil {
		return "", nil, ErrMissingAction
	}

	raw, err := json.Marshal(action)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s action: %w", action.Kind(), err)
	}

	return action.Kind(), raw, nil
}

// RuleDefinition is the stored shape of a rule: the action is kept as a kind plus a
// raw config payload so a malformed payload only invalidates its own rule.
type RuleDefinition struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IsActive     bool            `json:"is_active"`
	Scope        Scope           `json:"scope"`
	Trigger      Trigger         `json:"trigger"`
	Condition    Condition       `json:"condition"`
	ActionKind   ActionKind      `json:"action_kind"`
	ActionConfig json.RawMessage `json:"action_config"`
}

// Rule decodes the definition into a typed rule. Only the action payload is checked
// here; invariants are enforced by the rule catalog.
func (d *RuleDefinition) Rule() (*AutomationRule, error) {
	action, err := DecodeAction(d.ActionKind, d.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", d.ID, err)
	}

	return &AutomationRule{
		ID:        d.ID,
		Name:      d.Name,
		IsActive:  d.IsActive,
		Scope:     d.Scope,
		Trigger:   d.Trigger,
		Condition: d.Condition,
		Action:    action,
	}, nil
}

// Definition encodes a typed rule into its stored shape.
func (r *AutomationRule) Definition() (*RuleDefinition, error) {
	kind, config, err := EncodeAction(r.Action)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}

	return &RuleDefinition{
		ID:           r.ID,
		Name:         r.Name,
		IsActive:     r.IsActive,
		Scope:        r.Scope,
		Trigger:      r.Trigger,
		Condition:    r.Condition,
		ActionKind:   kind,
		ActionConfig: config,
	}, nil
}

func (r AutomationRule) MarshalJSON() ([]byte, error) {
	definition, err := r.Definition()
	if err != nil {
		return nil, err
	}

	return json.Marshal(definition)
}

func (r *AutomationRule) UnmarshalJSON(data []byte) error {
	var definition RuleDefinition
	if err := json.Unmarshal(data, &definition); err != nil {
		return err
	}

	rule, err := definition.Rule()
	if err != nil {
		return err
	}

	*r = *rule

	return nil
}
