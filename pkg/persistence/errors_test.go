package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrRuleNotFound)
		assert.NotNil(t, persistence.ErrStatusNotFound)
		assert.NotNil(t, persistence.ErrSubjectNotFound)
		assert.NotNil(t, persistence.ErrAlreadyRecorded)
		assert.NotNil(t, persistence.ErrReservationClosed)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		subjectErr := persistence.NewRecordError("SubjectByID", "subject", "p-1", persistence.ErrSubjectNotFound)
		statusErr := persistence.NewRecordError("StatusByName", "status", "Proposal", persistence.ErrStatusNotFound)
		ledgerErr := persistence.NewRecordError("Reserve", "ledger", "r-1/subject/p-1", persistence.ErrAlreadyRecorded)

		assert.True(t, persistence.IsSubjectNotFound(subjectErr))
		assert.True(t, persistence.IsStatusNotFound(statusErr))
		assert.True(t, persistence.IsAlreadyRecorded(ledgerErr))
		assert.False(t, persistence.IsAlreadyRecorded(subjectErr))

		assert.True(t, errors.Is(subjectErr, persistence.ErrSubjectNotFound))
	})

	t.Run("record error contains context", func(t *testing.T) {
		err := persistence.NewRecordError("UpdateSubjectStatus", "subject", "p-123", persistence.ErrSubjectNotFound)

		assert.Contains(t, err.Error(), "UpdateSubjectStatus")
		assert.Contains(t, err.Error(), "p-123")
		assert.Contains(t, err.Error(), "subject not found")
	})

	t.Run("record error without id", func(t *testing.T) {
		err := persistence.NewRecordError("Rules", "rule", "", errors.New("boom"))

		assert.Equal(t, "Rules operation failed for rule: boom", err.Error())
	})
}
