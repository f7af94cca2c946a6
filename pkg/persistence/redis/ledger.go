// Package redis provides a Redis-backed execution ledger.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "cadence:ledger:"
	pendingTag = "pending:"

	// DefaultPendingTTL bounds how long a crashed reserver can hold a key.
	DefaultPendingTTL = 10 * time.Minute
)

// commitScript replaces the pending token with the record, dropping the expiry.
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("SADD", KEYS[2], KEYS[1])
return 1
`)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errReservationLost = errors.New("reservation expired or was taken over")

// Ledger implements persistence.Ledger with SET NX. A reservation is a pending token
// with a TTL; committing swaps the token for the JSON record without expiry.
type Ledger struct {
	client     redis.UniversalClient
	logger     *slog.Logger
	pendingTTL time.Duration
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithPendingTTL overrides DefaultPendingTTL.
func WithPendingTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.pendingTTL = ttl
	}
}

// NewLedger connects to the Redis server described by redisURL (redis:// or rediss://).
func NewLedger(ctx context.Context, logger *slog.Logger, redisURL string, opts ...Option) (*Ledger, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewLedgerWithClient(client, logger, opts...), nil
}

// NewLedgerWithClient wraps an existing client.
func NewLedgerWithClient(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Ledger {
	ledger := &Ledger{
		client:     client,
		logger:     logger,
		pendingTTL: DefaultPendingTTL,
	}

	for _, opt := range opts {
		opt(ledger)
	}

	return ledger
}

func (l *Ledger) Exists(ctx context.Context, key models.OccurrenceKey) (bool, error) {
	value, err := l.client.Get(ctx, recordKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, persistence.NewRecordError("Exists", "ledger", key.String(), err)
	}

	return !strings.HasPrefix(value, pendingTag), nil
}

func (l *Ledger) Reserve(ctx context.Context, key models.OccurrenceKey) (persistence.Reservation, error) {
	token := pendingTag + uuid.NewString()

	acquired, err := l.client.SetNX(ctx, recordKey(key), token, l.pendingTTL).Result()
	if err != nil {
		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), err)
	}

	if !acquired {
		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), persistence.ErrAlreadyRecorded)
	}

	return &reservation{ledger: l, key: key, token: token}, nil
}

func (l *Ledger) Records(ctx context.Context, ruleID string) ([]*models.ExecutionRecord, error) {
	keys, err := l.client.SMembers(ctx, ruleIndexKey(ruleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger keys: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger records: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok || strings.HasPrefix(raw, pendingTag) {
			continue
		}

		var record models.ExecutionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("failed to decode ledger record %s: %w", keys[i], err)
		}

		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Key().String() < records[j].Key().String()
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func (l *Ledger) HealthCheck(ctx context.Context) error {
	err := l.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	err := l.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

type reservation struct {
	ledger *Ledger
	key    models.OccurrenceKey
	token  string
	closed bool
}

func (r *reservation) Commit(ctx context.Context, record *models.ExecutionRecord) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	if record.Key() != r.key {
		return fmt.Errorf("record key %s does not match reservation %s", record.Key(), r.key)
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return persistence.NewRecordError("Commit", "ledger", r.key.String(), err)
	}

	keys := []string{recordKey(r.key), ruleIndexKey(r.key.RuleID)}

	swapped, err := commitScript.Run(ctx, r.ledger.client, keys, r.token, data).Int()
	if err != nil {
		return persistence.NewRecordError("Commit", "ledger", r.key.String(), err)
	}

	r.closed = true

	if swapped == 0 {
		return persistence.NewRecordError("Commit", "ledger", r.key.String(), errReservationLost)
	}

	return nil
}

func (r *reservation) Release(ctx context.Context) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	r.closed = true

	err := releaseScript.Run(ctx, r.ledger.client, []string{recordKey(r.key)}, r.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return persistence.NewRecordError("Release", "ledger", r.key.String(), err)
	}

	return nil
}

func recordKey(key models.OccurrenceKey) string {
	return keyPrefix + key.String()
}

func ruleIndexKey(ruleID string) string {
	return keyPrefix + "rule:" + ruleID
}
