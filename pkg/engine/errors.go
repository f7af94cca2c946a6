package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Only a rule catalog load failure aborts a pass; every other kind is
// reported per rule or per occurrence.
var (
	// ErrConfiguration marks a malformed rule. The rule is skipped.
	ErrConfiguration = errors.New("configuration error")

	// ErrLookup marks a failed status, subject, sub-record or ledger read.
	ErrLookup = errors.New("lookup error")

	// ErrAction marks a failed action. Nothing is recorded so a later pass may retry.
	ErrAction = errors.New("action error")

	// ErrLedgerWrite marks an occurrence whose action ran but could not be recorded.
	ErrLedgerWrite = errors.New("ledger write error")
)

// Error attaches a kind and the rule/subject it concerns to an underlying error.
type Error struct {
	Kind        error
	RuleID      string
	SubjectID   string
	SubRecordID string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " (rule %s", e.RuleID)

	if e.SubjectID != "" {
		fmt.Fprintf(&b, ", subject %s", e.SubjectID)
	}

	if e.SubRecordID != "" {
		fmt.Fprintf(&b, ", sub-record %s", e.SubRecordID)
	}

	fmt.Fprintf(&b, "): %v", e.Err)

	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindName is the stable identifier of the error's kind used in summaries and events.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrAction):
		return "action"
	case errors.Is(err, ErrLedgerWrite):
		return "ledger_write"
	default:
		return "unknown"
	}
}
