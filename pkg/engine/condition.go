package engine

import "github.com/dukex/cadence/pkg/models"

// Match reports whether the subject satisfies the rule condition. An absent
// attribute never equals anything.
func Match(condition models.Condition, subject *models.Subject) bool {
	switch condition.Kind {
	case "", models.ConditionNone:
		return true
	case models.ConditionAttributeEquals:
		value, ok := subject.Attribute(condition.Attribute)

		return ok && value == condition.Expected
	default:
		return false
	}
}
