package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
)

const maxErrorLength = 2000

// Settings tunes the dispatcher.
type Settings struct {
	BatchSize    int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	StaleAfter   time.Duration
	PollInterval time.Duration
}

// SettingsFrom maps the outbox configuration section.
func SettingsFrom(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  time.Duration(cfg.BackoffBaseSeconds) * time.Second,
		BackoffMax:   time.Duration(cfg.BackoffMaxSeconds) * time.Second,
		StaleAfter:   cfg.StaleAfter(),
		PollInterval: cfg.PollInterval(),
	}
}

// DispatcherDependencies groups dispatcher collaborators.
type DispatcherDependencies struct {
	Repo     repository.OutboxRepository
	Handlers events.Dispatcher
	Clock    tat.Clock
	Settings Settings
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Dispatcher claims pending outbox rows and hands them to the registered handlers.
type Dispatcher struct {
	repo     repository.OutboxRepository
	handlers events.Dispatcher
	clock    tat.Clock
	settings Settings
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// BatchResult summarises one RunOnce pass.
type BatchResult struct {
	Claimed      int `json:"claimed"`
	Completed    int `json:"completed"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	settings := deps.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = 25
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = 10 * time.Second
	}
	if settings.BackoffMax < settings.BackoffBase {
		settings.BackoffMax = settings.BackoffBase
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = time.Second
	}
	clock := deps.Clock
	if clock == nil {
		clock = tat.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		repo:     deps.Repo,
		handlers: deps.Handlers,
		clock:    clock,
		settings: settings,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Backoff returns the delay before retry number attempts (1-based):
// base doubled per previous attempt, capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RunOnce claims one batch and processes every claimed row.
func (d *Dispatcher) RunOnce(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	rows, err := d.repo.ClaimBatch(ctx, d.clock.Now(), d.settings.BatchSize)
	if err != nil {
		return result, err
	}
	result.Claimed = len(rows)

	for _, row := range rows {
		outcome, err := d.process(ctx, row)
		if err != nil {
			d.logger.Error("outbox bookkeeping failed",
				zap.String("outbox_id", row.ID),
				zap.String("event_type", row.EventType),
				zap.Error(err))
			continue
		}
		switch outcome {
		case domain.OutboxCompleted:
			result.Completed++
		case domain.OutboxPending:
			result.Retried++
		case domain.OutboxDeadLetter:
			result.DeadLettered++
		}
	}
	return result, nil
}

func (d *Dispatcher) process(ctx context.Context, row domain.OutboxEvent) (domain.OutboxStatus, error) {
	execErr := d.execute(ctx, row)
	now := d.clock.Now()
	if execErr == nil {
		d.metrics.RecordDispatch(row.EventType, string(domain.OutboxCompleted))
		return domain.OutboxCompleted, d.repo.MarkCompleted(ctx, row.ID, now)
	}

	attempts := row.Attempts + 1
	maxAttempts := row.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.settings.MaxAttempts
	}
	message := truncate(execErr.Error())

	if attempts < maxAttempts {
		next := now.Add(Backoff(d.settings.BackoffBase, d.settings.BackoffMax, attempts))
		d.logger.Warn("outbox delivery failed; retrying",
			zap.String("outbox_id", row.ID),
			zap.String("event_type", row.EventType),
			zap.Int("attempts", attempts),
			zap.Time("next_attempt", next),
			zap.Error(execErr))
		d.metrics.RecordDispatch(row.EventType, "retried")
		return domain.OutboxPending, d.repo.MarkRetry(ctx, row.ID, attempts, next, message)
	}

	d.logger.Error("outbox event dead-lettered",
		zap.String("outbox_id", row.ID),
		zap.String("event_type", row.EventType),
		zap.Int("attempts", attempts),
		zap.Error(execErr))
	d.metrics.RecordDispatch(row.EventType, string(domain.OutboxDeadLetter))
	return domain.OutboxDeadLetter, d.repo.MarkDeadLetter(ctx, row.ID, attempts, message, now)
}

func (d *Dispatcher) execute(ctx context.Context, row domain.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("handler panicked")
			d.logger.Error("outbox handler panic", zap.String("outbox_id", row.ID), zap.Any("panic", r))
		}
	}()
	event, err := events.Decode(row.Payload)
	if err != nil {
		return err
	}
	if d.settings.StaleAfter > 0 {
		// handlers must finish well inside the lease or the row is taken back
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.settings.StaleAfter/2)
		defer cancel()
	}
	return d.handlers.Publish(ctx, event)
}

// ReleaseStale takes back rows stuck in processing longer than StaleAfter.
// Each release uses up one attempt.
func (d *Dispatcher) ReleaseStale(ctx context.Context) (repository.StaleRelease, error) {
	if d.settings.StaleAfter <= 0 {
		return repository.StaleRelease{}, nil
	}
	now := d.clock.Now()
	return d.repo.ReleaseStale(ctx, now.Add(-d.settings.StaleAfter), now)
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another pass; otherwise the loop waits PollInterval.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.settings.BatchSize),
		zap.Duration("poll_interval", d.settings.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-timer.C:
		}

		if released, err := d.ReleaseStale(ctx); err != nil {
			d.logger.Warn("release stale outbox rows", zap.Error(err))
		} else if released.Requeued+released.DeadLettered > 0 {
			d.logger.Warn("released stale outbox rows",
				zap.Int64("requeued", released.Requeued),
				zap.Int64("dead_lettered", released.DeadLettered))
		}

		result, err := d.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("outbox claim failed", zap.Error(err))
		}

		wait := d.settings.PollInterval
		if err == nil && result.Claimed == d.settings.BatchSize {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Requeue resets a dead-lettered row to pending with a fresh attempt budget.
func (d *Dispatcher) Requeue(ctx context.Context, id string) error {
	return d.repo.Requeue(ctx, id, d.clock.Now())
}

// DeadLetters lists rows that exhausted their attempts.
func (d *Dispatcher) DeadLetters(ctx context.Context, limit, offset int) ([]domain.OutboxEvent, error) {
	return d.repo.ListDeadLetters(ctx, limit, offset)
}

func truncate(message string) string {
	if len(message) <= maxErrorLength {
		return message
	}
	return message[:maxErrorLength]
}
