// Package engine evaluates automation rules against subjects once per pass.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// PassOptions overrides the defaults of a single pass.
type PassOptions struct {
	// Today replaces the clock's current day.
	Today *time.Time
	// BackfillDays replaces the configured interval backfill window when positive.
	BackfillDays int
}

// Engine runs evaluation passes. It holds no state between passes; everything it
// remembers lives in the ledger.
type Engine struct {
	logger     *slog.Logger
	store      persistence.Persistence
	ledger     persistence.Ledger
	config     Config
	clock      Clock
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	dispatcher *Dispatcher
}

type Option func(*Engine)

func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithPublisher sends pass events to the bus. Without it events are dropped.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func New(
	logger *slog.Logger,
	store persistence.Persistence,
	ledger persistence.Ledger,
	config Config,
	opts ...Option,
) (*Engine, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger: logger.With("module", "engine"),
		store:  store,
		ledger: ledger,
		config: config,
		clock:  SystemClock{},
		tracer: otel.Tracer("cadence-engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.dispatcher = NewDispatcher(store, e.clock, config.StoreTimeout)

	return e, nil
}

// Today is the current calendar day in the configured location.
func (e *Engine) Today() time.Time {
	return models.Day(e.clock.Now().In(e.config.Location))
}

// RunPass evaluates every active rule once. Only a failure to load the rule catalog
// aborts the pass; any other failure is reported in the summary.
func (e *Engine) RunPass(ctx context.Context, opts PassOptions) (*models.PassSummary, error) {
	startedAt := e.clock.Now().UTC()

	p := &pass{
		id:           uuid.NewString(),
		today:        e.Today(),
		backfillDays: e.config.BackfillDays,
		engine:       e,
	}

	if opts.Today != nil {
		p.today = models.Day(*opts.Today)
	}

	if opts.BackfillDays > 0 {
		p.backfillDays = opts.BackfillDays
	}

	logger := e.logger.With("pass_id", p.id, "today", p.today.Format(models.DayLayout))

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.pass",
		attribute.String(otelhelper.PassIDKey, p.id),
		attribute.String(otelhelper.PassTodayKey, p.today.Format(models.DayLayout)),
		attribute.Int(otelhelper.BackfillKey, p.backfillDays),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting evaluation pass", "backfill_days", p.backfillDays)

	var catalog *Catalog

	err := e.call(ctx, func(ctx context.Context) error {
		var err error

		catalog, err = LoadCatalog(ctx, e.store.RuleRepository())

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to load rule catalog", "error", err)

		return nil, err
	}

	for _, invalid := range catalog.Invalid() {
		logger.WarnContext(ctx, "Skipping invalid rule", "rule_id", invalid.Definition.ID, "error", invalid.Err)

		p.record(models.Result{
			RuleID:   invalid.Definition.ID,
			RuleName: invalid.Definition.Name,
			Action:   invalid.Definition.ActionKind,
		}, invalid.Err)
	}

	g := new(errgroup.Group)
	g.SetLimit(e.config.RuleConcurrency)

	for _, rule := range slices.Concat(catalog.DateRules(), catalog.IntervalRules()) {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			e.evaluateRule(ctx, p, rule)

			return nil
		})
	}

	_ = g.Wait()

	summary := p.summary(startedAt, e.clock.Now().UTC())

	span.SetAttributes(
		attribute.Int("cadence.pass.executed", summary.Executed),
		attribute.Int("cadence.pass.results", len(summary.Results)),
	)

	e.publish(ctx, p.id, events.PassCompleted{
		BaseEvent:  events.NewBaseEvent(events.PassCompletedEvent, p.id),
		Today:      p.today,
		Executed:   summary.Executed,
		Failed:     summary.Count(models.ResultError),
		Skipped:    summary.Count(models.ResultSkipped),
		DurationMs: summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})

	logger.InfoContext(ctx, "Evaluation pass completed",
		"rules", catalog.Len(),
		"invalid_rules", len(catalog.Invalid()),
		"executed", summary.Executed,
		"failed", summary.Count(models.ResultError),
		"skipped", summary.Count(models.ResultSkipped),
	)

	if ctx.Err() != nil {
		return summary, fmt.Errorf("pass interrupted: %w", ctx.Err())
	}

	return summary, nil
}

func (e *Engine) evaluateRule(ctx context.Context, p *pass, rule *models.AutomationRule) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.rule",
		attribute.String(otelhelper.PassIDKey, p.id),
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.RuleNameKey, rule.Name),
		attribute.String(otelhelper.TriggerKindKey, string(rule.Trigger.Kind)),
		attribute.String(otelhelper.ActionKindKey, string(rule.Action.Kind())),
	)
	defer span.End()

	if rule.Trigger.Kind.IsDateTrigger() {
		e.evaluateDateRule(ctx, p, rule)
	} else {
		e.evaluateIntervalRule(ctx, p, rule)
	}

	if failed := p.failures(rule.ID); failed > 0 {
		span.SetAttributes(attribute.Int("cadence.rule.failures", failed))
	}
}

// occurrence is one due firing waiting for the ledger, condition and action.
type occurrence struct {
	rule      *models.AutomationRule
	key       models.OccurrenceKey
	subject   *models.Subject
	subRecord *models.SubRecord
	firedFor  time.Time
	// today is the day the action sees; the simulated day for interval backfill.
	today  time.Time
	record models.ExecutionRecord
}

// fire runs the check, reserve, act, commit sequence for one occurrence.
func (e *Engine) fire(ctx context.Context, p *pass, occ occurrence) {
	result := models.Result{
		SubjectID: occ.subject.ID,
		FiredFor:  &occ.firedFor,
	}
	if occ.subRecord != nil {
		result.SubRecordID = occ.subRecord.ID
	}

	fail := func(kind error, err error) *Error {
		return &Error{Kind: kind, RuleID: occ.rule.ID, SubjectID: result.SubjectID, SubRecordID: result.SubRecordID, Err: err}
	}

	var recorded bool

	err := e.call(ctx, func(ctx context.Context) error {
		var err error

		recorded, err = e.ledger.Exists(ctx, occ.key)

		return err
	})
	if err != nil {
		p.add(ctx, occ.rule, result, fail(ErrLookup, fmt.Errorf("failed to check ledger: %w", err)))

		return
	}

	if recorded {
		p.skip(ctx, occ.rule, result, models.SkipAlreadyRecorded)

		return
	}

	if !Match(occ.rule.Condition, occ.subject) {
		p.skip(ctx, occ.rule, result, models.SkipConditionMismatch)

		return
	}

	var reservation persistence.Reservation

	err = e.call(ctx, func(ctx context.Context) error {
		var err error

		reservation, err = e.ledger.Reserve(ctx, occ.key)

		return err
	})
	if persistence.IsAlreadyRecorded(err) {
		p.skip(ctx, occ.rule, result, models.SkipAlreadyRecorded)

		return
	}

	if err != nil {
		p.add(ctx, occ.rule, result, fail(ErrLookup, fmt.Errorf("failed to reserve occurrence: %w", err)))

		return
	}

	err = e.dispatcher.Dispatch(ctx, occ.rule.Action, Target{
		RuleID:      occ.rule.ID,
		SubjectID:   result.SubjectID,
		SubRecordID: result.SubRecordID,
		Today:       occ.today,
	})
	if err != nil {
		releaseErr := e.call(context.WithoutCancel(ctx), reservation.Release)
		if releaseErr != nil {
			e.logger.WarnContext(ctx, "Failed to release reservation", "key", occ.key.String(), "error", releaseErr)
		}

		actionErr := fail(ErrAction, err)
		p.add(ctx, occ.rule, result, actionErr)

		e.publish(ctx, occ.key.String(), events.OccurrenceFailed{
			BaseEvent:  events.NewBaseEvent(events.OccurrenceFailedEvent, p.id),
			Occurrence: p.occurrence(occ),
			ErrorKind:  KindName(actionErr),
			Error:      err.Error(),
		})

		return
	}

	record := occ.record
	record.CreatedAt = e.clock.Now().UTC()

	err = e.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return reservation.Commit(ctx, &record)
	})
	if err != nil {
		ledgerErr := fail(ErrLedgerWrite, err)

		e.logger.ErrorContext(ctx, "Action executed but ledger write failed, occurrence may repeat",
			"alert", true,
			"pass_id", p.id,
			"rule_id", occ.rule.ID,
			"key", occ.key.String(),
			"error", err,
		)

		p.add(ctx, occ.rule, result, ledgerErr)

		e.publish(ctx, occ.key.String(), events.LedgerWriteFailed{
			BaseEvent:  events.NewBaseEvent(events.LedgerWriteFailedEvent, p.id),
			Occurrence: p.occurrence(occ),
			Error:      err.Error(),
		})

		return
	}

	result.Status = models.ResultSuccess
	p.add(ctx, occ.rule, result, nil)

	e.publish(ctx, occ.key.String(), events.OccurrenceExecuted{
		BaseEvent:  events.NewBaseEvent(events.OccurrenceExecutedEvent, p.id),
		Occurrence: p.occurrence(occ),
	})
}

// forEach runs fn for every index, bounded by SubjectConcurrency.
func (e *Engine) forEach(ctx context.Context, n int, fn func(context.Context, int)) {
	g := new(errgroup.Group)
	g.SetLimit(e.config.SubjectConcurrency)

	for i := range n {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			fn(ctx, i)

			return nil
		})
	}

	_ = g.Wait()
}

func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	return withTimeout(ctx, e.config.StoreTimeout, fn)
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// pass accumulates the results of one RunPass call.
type pass struct {
	id           string
	today        time.Time
	backfillDays int
	engine       *Engine

	mu      sync.Mutex
	results []models.Result
}

// add completes result with the rule and err and stores it. A nil err keeps the
// status the caller set.
func (p *pass) add(ctx context.Context, rule *models.AutomationRule, result models.Result, err error) {
	result.RuleID = rule.ID
	result.RuleName = rule.Name
	result.Action = rule.Action.Kind()

	if err != nil {
		p.engine.logger.WarnContext(ctx, "Occurrence failed",
			"pass_id", p.id,
			"rule_id", rule.ID,
			"subject_id", result.SubjectID,
			"sub_record_id", result.SubRecordID,
			"error_kind", KindName(err),
			"error", err,
		)
	}

	p.record(result, err)
}

func (p *pass) skip(ctx context.Context, rule *models.AutomationRule, result models.Result, reason string) {
	p.engine.logger.DebugContext(ctx, "Occurrence skipped",
		"rule_id", rule.ID,
		"subject_id", result.SubjectID,
		"sub_record_id", result.SubRecordID,
		"reason", reason,
	)

	result.Status = models.ResultSkipped
	result.Reason = reason

	p.add(ctx, rule, result, nil)
}

// ruleFailed reports a failure that stopped the whole rule, such as a status lookup.
func (p *pass) ruleFailed(ctx context.Context, rule *models.AutomationRule, err error) {
	p.add(ctx, rule, models.Result{}, err)
}

func (p *pass) record(result models.Result, err error) {
	if err != nil {
		result.Status = models.ResultError
		result.ErrorKind = KindName(err)
		result.Error = err.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.results = append(p.results, result)
}

func (p *pass) failures(ruleID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0

	for _, result := range p.results {
		if result.RuleID == ruleID && result.Status == models.ResultError {
			count++
		}
	}

	return count
}

func (p *pass) occurrence(occ occurrence) events.Occurrence {
	o := events.Occurrence{
		RuleID:    occ.rule.ID,
		RuleName:  occ.rule.Name,
		SubjectID: occ.subject.ID,
		Action:    occ.rule.Action.Kind(),
		FiredFor:  occ.firedFor,
	}
	if occ.subRecord != nil {
		o.SubRecordID = occ.subRecord.ID
	}

	return o
}

// summary orders results by rule, subject and sub-record so output is stable
// regardless of scheduling.
func (p *pass) summary(startedAt, finishedAt time.Time) *models.PassSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := slices.Clone(p.results)
	slices.SortStableFunc(results, func(a, b models.Result) int {
		return cmp.Or(
			cmp.Compare(a.RuleID, b.RuleID),
			cmp.Compare(a.SubjectID, b.SubjectID),
			cmp.Compare(a.SubRecordID, b.SubRecordID),
		)
	})

	summary := &models.PassSummary{
		ID:         p.id,
		Today:      p.today,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Results:    results,
	}
	summary.Executed = summary.Count(models.ResultSuccess)

	if summary.Results == nil {
		summary.Results = []models.Result{}
	}

	return summary
}
