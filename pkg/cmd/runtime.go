package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/urfave/cli/v3"
)

// Flags returns the flags every cadence binary understands.
func Flags() []cli.Flag {
	defaults := engine.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a directory)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "ledger-url",
			Usage:   "Execution ledger URL (redis://, postgres:// or a directory); defaults to the database",
			Sources: cli.EnvVars("LEDGER_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka); empty disables pass events",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers for the kafka event bus",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "timezone",
			Usage:   "IANA time zone deciding which calendar day a pass runs for",
			Value:   "UTC",
			Sources: cli.EnvVars("TZ_NAME"),
		},
		&cli.IntFlag{
			Name:    "rule-concurrency",
			Usage:   "Rules evaluated in parallel",
			Value:   defaults.RuleConcurrency,
			Sources: cli.EnvVars("RULE_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "subject-concurrency",
			Usage:   "Subjects evaluated in parallel within one rule",
			Value:   defaults.SubjectConcurrency,
			Sources: cli.EnvVars("SUBJECT_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "store-timeout",
			Usage:   "Deadline for each store call",
			Value:   defaults.StoreTimeout,
			Sources: cli.EnvVars("STORE_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "backfill-days",
			Usage:   "Interval backfill window in days (1 checks today only)",
			Value:   defaults.BackfillDays,
			Sources: cli.EnvVars("BACKFILL_DAYS"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP (configured via OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

// Runtime holds everything a binary needs to run passes.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Ledger      persistence.Ledger
	EventBus    eventbus.EventBus
	Engine      *engine.Engine
	Config      engine.Config

	shutdownTracer otelhelper.ShutdownFunc
}

// EngineConfig builds the engine configuration from the common flags.
func EngineConfig(command *cli.Command) (engine.Config, error) {
	location, err := time.LoadLocation(command.String("timezone"))
	if err != nil {
		return engine.Config{}, fmt.Errorf("invalid timezone: %w", err)
	}

	config := engine.Config{
		Location:           location,
		RuleConcurrency:    command.Int("rule-concurrency"),
		SubjectConcurrency: command.Int("subject-concurrency"),
		StoreTimeout:       command.Duration("store-timeout"),
		BackfillDays:       command.Int("backfill-days"),
	}

	return config, config.Validate()
}

// NewRuntime opens the stores, the event bus and the tracer named by the common flags.
// On error everything opened so far is closed again.
func NewRuntime(ctx context.Context, command *cli.Command, module string) (*Runtime, error) {
	log.Setup(command.String("log-level"))

	r := &Runtime{Logger: log.WithModule(module)}

	config, err := EngineConfig(command)
	if err != nil {
		return nil, err
	}

	r.Config = config

	fail := func(err error) (*Runtime, error) {
		r.Close(ctx)

		return nil, err
	}

	databaseURL := command.String("database-url")

	r.Persistence, err = NewPersistence(ctx, r.Logger, databaseURL)
	if err != nil {
		return fail(fmt.Errorf("failed to open persistence: %w", err))
	}

	r.Ledger, err = NewLedger(ctx, r.Logger, command.String("ledger-url"), databaseURL, r.Persistence)
	if err != nil {
		return fail(fmt.Errorf("failed to open ledger: %w", err))
	}

	r.EventBus, err = NewEventBus(command.String("event-bus"), r.Logger, command.String("kafka-brokers"))
	if err != nil {
		return fail(err)
	}

	opts := []engine.Option{}

	if r.EventBus != nil {
		opts = append(opts, engine.WithPublisher(r.EventBus))
	}

	if command.Bool("otel-enabled") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, module)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize tracer: %w", err))
		}

		r.shutdownTracer = shutdown
		opts = append(opts, engine.WithTracer(tracer))
	}

	r.Engine, err = engine.New(r.Logger, r.Persistence, r.Ledger, config, opts...)
	if err != nil {
		return fail(err)
	}

	ledgerBackend := "shared with persistence"
	if ledgerURL := command.String("ledger-url"); ledgerURL != "" {
		ledgerBackend = Describe(ledgerURL)
	}

	r.Logger.InfoContext(ctx, "Runtime initialized",
		"persistence", Describe(databaseURL),
		"ledger", ledgerBackend,
		"event_bus", command.String("event-bus"),
		"timezone", config.Location.String(),
	)

	return r, nil
}

// Close releases every resource the runtime opened, logging failures.
func (r *Runtime) Close(ctx context.Context) {
	var errs []error

	if r.EventBus != nil {
		errs = append(errs, r.EventBus.Close())
	}

	if r.Ledger != nil {
		errs = append(errs, r.Ledger.Close(ctx))
	}

	if r.Persistence != nil {
		errs = append(errs, r.Persistence.Close(ctx))
	}

	if r.shutdownTracer != nil {
		errs = append(errs, r.shutdownTracer(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		r.Logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
