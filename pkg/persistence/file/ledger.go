package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const (
	ledgerDir   = "ledger"
	recordExt   = ".json"
	reservedExt = ".pending"
)

// Ledger implements persistence.Ledger with one file per key under root/ledger.
// A reservation is a <key>.pending file created with O_EXCL; a commit publishes
// <key>.json with a hard link, which fails if the record exists. Both steps are
// atomic across processes sharing the directory.
//
// A process that dies between Reserve and Commit leaves its .pending file behind and
// the key stays claimed until an operator removes it.
type Ledger struct {
	dir string
}

// NewLedger opens (or creates) the ledger stored under root.
func NewLedger(root string) (*Ledger, error) {
	dir := filepath.Join(strings.Replace(root, "file://", "", 1), ledgerDir)

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	return &Ledger{dir: dir}, nil
}

func (l *Ledger) Exists(_ context.Context, key models.OccurrenceKey) (bool, error) {
	exists, err := l.recorded(key)
	if err != nil {
		return false, persistence.NewRecordError("Exists", "ledger", key.String(), err)
	}

	return exists, nil
}

func (l *Ledger) Reserve(_ context.Context, key models.OccurrenceKey) (persistence.Reservation, error) {
	id := key.String()

	recorded, err := l.recorded(key)
	if err != nil {
		return nil, persistence.NewRecordError("Reserve", "ledger", id, err)
	}

	if recorded {
		return nil, persistence.NewRecordError("Reserve", "ledger", id, persistence.ErrAlreadyRecorded)
	}

	pending := l.path(key, reservedExt)

	file, err := os.OpenFile(pending, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304 -- path is constructed from the controlled root
	if err != nil {
		if os.IsExist(err) {
			return nil, persistence.NewRecordError("Reserve", "ledger", id, persistence.ErrAlreadyRecorded)
		}

		return nil, persistence.NewRecordError("Reserve", "ledger", id, err)
	}

	_, _ = fmt.Fprintf(file, "pid=%d reserved_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = file.Close()

	// A holder that committed between the check above and the create has already
	// published the record and dropped its claim.
	recorded, err = l.recorded(key)
	if err != nil || recorded {
		_ = os.Remove(pending)

		if err != nil {
			return nil, persistence.NewRecordError("Reserve", "ledger", id, err)
		}

		return nil, persistence.NewRecordError("Reserve", "ledger", id, persistence.ErrAlreadyRecorded)
	}

	return &reservation{ledger: l, key: key}, nil
}

func (l *Ledger) Records(_ context.Context, ruleID string) ([]*models.ExecutionRecord, error) {
	all, err := readDir[models.ExecutionRecord](l.dir)
	if err != nil {
		return nil, persistence.NewRecordError("Records", "ledger", ruleID, err)
	}

	var records []*models.ExecutionRecord

	for _, record := range all {
		if record.RuleID == ruleID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Key().String() < records[j].Key().String()
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (l *Ledger) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return fmt.Errorf("ledger directory does not exist: %s", l.dir)
	}

	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	return nil
}

func (l *Ledger) path(key models.OccurrenceKey, ext string) string {
	return filepath.Join(l.dir, fileName(key.String(), ext))
}

func (l *Ledger) recorded(key models.OccurrenceKey) (bool, error) {
	_, err := os.Stat(l.path(key, recordExt))
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

type reservation struct {
	ledger *Ledger
	key    models.OccurrenceKey
	closed bool
}

func (r *reservation) Commit(_ context.Context, record *models.ExecutionRecord) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	id := r.key.String()
	if record.Key() != r.key {
		return fmt.Errorf("record key %s does not match reservation %s", record.Key(), id)
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	err := createFile(r.ledger.path(r.key, recordExt), &stored)
	if errors.Is(err, errExists) {
		err = persistence.ErrAlreadyRecorded
	}

	if err != nil {
		return persistence.NewRecordError("Commit", "ledger", id, err)
	}

	r.closed = true

	// The record is durable now; a leftover claim file is ignored by Reserve.
	_ = os.Remove(r.ledger.path(r.key, reservedExt))

	return nil
}

func (r *reservation) Release(_ context.Context) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	r.closed = true

	err := os.Remove(r.ledger.path(r.key, reservedExt))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewRecordError("Release", "ledger", r.key.String(), err)
	}

	return nil
}
