package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/app"
	"github.com/campusdesk/ticket-sla/internal/auth"
	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tatctl",
		Short:         "Operate the ticket SLA engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newDeadlineCmd(),
		newSweepCmd(),
		newDispatchCmd(),
		newMigrateCmd(),
		newTokenCmd(),
	)
	return root
}

func newDeadlineCmd() *cobra.Command {
	var (
		start        string
		hours        float64
		calendarFile string
		timezone     string
	)
	cmd := &cobra.Command{
		Use:   "deadline",
		Short: "Compute a deadline on the business calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := app.LoadCalendar(config.TATConfig{Timezone: timezone, CalendarFile: calendarFile})
			if err != nil {
				return err
			}
			from := time.Now().In(calendar.Location)
			if start != "" {
				if from, err = time.Parse(time.RFC3339, start); err != nil {
					return fmt.Errorf("parse --start: %w", err)
				}
			}
			due := calendar.AddBusinessHours(from, hours)
			fmt.Fprintf(cmd.OutOrStdout(), "start:    %s\ndeadline: %s\nbusiness hours: %.2f\n",
				from.In(calendar.Location).Format(time.RFC3339),
				due.In(calendar.Location).Format(time.RFC3339),
				calendar.BusinessHoursBetween(from, due))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339), defaults to now")
	cmd.Flags().Float64Var(&hours, "hours", 48, "business hours to add")
	cmd.Flags().StringVar(&calendarFile, "calendar", "", "YAML calendar file")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "calendar timezone")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue escalation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				result, err := c.Escalations.SweepOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d escalated=%d skipped=%d failed=%d\n",
					result.Scanned, result.Escalated, result.Skipped, result.Failed)
				return nil
			})
		},
	}
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch one batch of pending outbox events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *app.Container) error {
				if _, err := c.Dispatcher.ReleaseStale(ctx); err != nil {
					return err
				}
				result, err := c.Dispatcher.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d completed=%d retried=%d dead_lettered=%d\n",
					result.Claimed, result.Completed, result.Retried, result.DeadLettered)
				return nil
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger)
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		name    string
		email   string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := domain.Role(role)
			if !parsed.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			raw, expiresAt, err := tokens.Issue(subject, name, email, parsed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires: %s\n", raw, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "external user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "student, admin or super_admin")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func withContainer(ctx context.Context, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(ctx, container)
}

