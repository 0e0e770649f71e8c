package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/service"
)

// Sweeper escalates overdue tickets.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (service.SweepResult, error)
}

// Purger removes expired idempotency records.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SchedulerConfig holds the cron expressions. An empty spec disables the job.
type SchedulerConfig struct {
	SweepSpec  string
	PurgeSpec  string
	Location   *time.Location
	JobTimeout time.Duration
}

// Scheduler runs the periodic jobs on a cron.
type Scheduler struct {
	cfg     SchedulerConfig
	sweeper Sweeper
	purger  Purger
	logger  *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler validates the cron expressions and registers the jobs.
func NewScheduler(cfg SchedulerConfig, sweeper Sweeper, purger Purger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	s := &Scheduler{cfg: cfg, sweeper: sweeper, purger: purger, logger: logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.SweepSpec != "" && sweeper != nil {
		if _, err := s.cron.AddJob(cfg.SweepSpec, cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()})).Then(cron.FuncJob(s.RunSweep))); err != nil {
			return nil, fmt.Errorf("escalation sweep spec %q: %w", cfg.SweepSpec, err)
		}
	}
	if cfg.PurgeSpec != "" && purger != nil {
		if _, err := s.cron.AddFunc(cfg.PurgeSpec, s.RunPurge); err != nil {
			return nil, fmt.Errorf("idempotency purge spec %q: %w", cfg.PurgeSpec, err)
		}
	}
	return s, nil
}

// Start begins scheduling.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// StopWithContext stops scheduling and waits for running jobs.
func (s *Scheduler) StopWithContext(ctx context.Context) error {
	s.mu.Lock()
	stopped := s.cron.Stop()
	s.mu.Unlock()
	s.cancel()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSweep executes one escalation sweep.
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	if _, err := s.sweeper.SweepOverdue(ctx); err != nil {
		s.logger.Error("escalation sweep failed", zap.Error(err))
	}
}

// RunPurge deletes expired idempotency keys.
func (s *Scheduler) RunPurge() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	purged, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("idempotency purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("idempotency keys purged", zap.Int64("count", purged))
	}
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
