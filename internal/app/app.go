// Package app assembles the service graph shared by the API server and the
// operator CLI.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/notify"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/outbox"
	"github.com/campusdesk/ticket-sla/internal/persistence"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/service"
	"github.com/campusdesk/ticket-sla/internal/tat"
)

// Container holds the wired services and the connections they share.
type Container struct {
	Postgres    *persistence.Postgres
	Redis       *persistence.Redis
	Metrics     *observability.Metrics
	Calculator  *tat.Calculator
	Statuses    *service.StatusRegistry
	Users       *service.UserService
	Tickets     *service.TicketService
	Escalations *service.EscalationService
	Idempotency *service.IdempotencyService
	Dispatcher  *outbox.Dispatcher

	mirror *notify.KafkaMirror
	logger *zap.Logger
}

// LoadCalendar builds the business calendar from configuration.
func LoadCalendar(cfg config.TATConfig) (tat.Calendar, error) {
	calendar := tat.DefaultCalendar(cfg.Location())
	if cfg.CalendarFile != "" {
		loaded, err := tat.LoadCalendarFile(cfg.CalendarFile, calendar)
		if err != nil {
			return calendar, err
		}
		calendar = loaded
	}
	if err := calendar.Validate(); err != nil {
		return calendar, fmt.Errorf("calendar: %w", err)
	}
	return calendar, nil
}

// Build connects to the stores and wires every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	calendar, err := LoadCalendar(cfg.TAT)
	if err != nil {
		return nil, err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	redis := persistence.NewRedis(cfg.Redis, cfg.App.Name, logger)

	pool := pg.PoolHandle()
	clock := tat.SystemClock{}
	metrics := observability.NewMetrics()
	calculator := tat.NewCalculator(calendar, clock)

	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	statuses := service.NewStatusRegistry(service.StatusRegistryDependencies{
		Repo:          repository.NewStatusRepository(pool),
		Redis:         redis.Client,
		CacheKey:      redis.Key("statuses:v1"),
		TTL:           cfg.Redis.StatusCacheTTL(),
		PauseStatuses: cfg.TAT.PauseStatuses,
		Logger:        logger,
	})
	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		CategoryRepo: categoryRepo,
		AdminRepo:    repository.NewAdminAssignmentRepository(pool),
	})
	publisher := outbox.NewPublisher(outbox.PublisherDependencies{
		Repo:        outboxRepo,
		Clock:       clock,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Metrics:     metrics,
		Logger:      logger,
	})
	tx := repository.NewTransactor(pool)

	tickets := service.NewTicketService(service.TicketDependencies{
		Tx:           tx,
		TicketRepo:   ticketRepo,
		ActivityRepo: repository.NewActivityRepository(pool),
		CategoryRepo: categoryRepo,
		UserRepo:     userRepo,
		Statuses:     statuses,
		Assignment:   assignment,
		Calculator:   calculator,
		Publisher:    publisher,
		Settings: service.TicketSettings{
			DefaultSLAHours: cfg.TAT.DefaultSLAHours,
			DefaultAckHours: cfg.TAT.DefaultAckHours,
		},
		Logger: logger,
	})
	escalations := service.NewEscalationService(service.EscalationDependencies{
		Tx:           tx,
		TicketRepo:   ticketRepo,
		CategoryRepo: categoryRepo,
		RuleRepo:     repository.NewEscalationRuleRepository(pool),
		Statuses:     statuses,
		Assignment:   assignment,
		Calculator:   calculator,
		Publisher:    publisher,
		Cooldown:     cfg.Escalation.Cooldown(),
		SweepLimit:   cfg.TAT.OverdueSweepLimit,
		Metrics:      metrics,
		Logger:       logger,
	})
	idempotency := service.NewIdempotencyService(service.IdempotencyDependencies{
		Repo:   repository.NewIdempotencyRepository(pool),
		TTL:    cfg.Idempotency.TTL(),
		Clock:  clock,
		Logger: logger,
	})

	handlers := events.NewInMemoryDispatcher()
	notifier := notify.NewNotifier(notify.NotifierDependencies{
		Users:         userRepo,
		Senders:       notify.NewMux(senders(cfg.Notification)),
		PortalBaseURL: cfg.Notification.PortalBaseURL,
		Logger:        logger,
	})
	notifier.RegisterHandlers(handlers)
	mirror := notify.NewKafkaMirror(cfg.Notification)
	if mirror != nil {
		for _, eventType := range events.AllTypes() {
			handlers.Subscribe(eventType, mirror.Handle)
		}
		logger.Info("kafka event mirror enabled", zap.String("topic", cfg.Notification.KafkaTopic))
	}
	dispatcher := outbox.NewDispatcher(outbox.DispatcherDependencies{
		Repo:     outboxRepo,
		Handlers: handlers,
		Clock:    clock,
		Settings: outbox.SettingsFrom(cfg.Outbox),
		Metrics:  metrics,
		Logger:   logger,
	})

	return &Container{
		Postgres:    pg,
		Redis:       redis,
		Metrics:     metrics,
		Calculator:  calculator,
		Statuses:    statuses,
		Users:       service.NewUserService(userRepo),
		Tickets:     tickets,
		Escalations: escalations,
		Idempotency: idempotency,
		Dispatcher:  dispatcher,
		mirror:      mirror,
		logger:      logger,
	}, nil
}

// senders returns only the configured channels so the mux never holds a nil sender.
func senders(cfg config.NotificationConfig) map[domain.NotifyChannel]notify.Sender {
	out := map[domain.NotifyChannel]notify.Sender{}
	if email := notify.NewEmailSender(cfg); email != nil {
		out[domain.ChannelEmail] = email
	}
	if slack := notify.NewSlackSender(cfg); slack != nil {
		out[domain.ChannelSlack] = slack
	}
	return out
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if err := c.mirror.Close(); err != nil {
		c.logger.Warn("close kafka mirror", zap.Error(err))
	}
	c.Redis.Close()
	c.Postgres.Close()
}
