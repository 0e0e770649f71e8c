package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		allowed  bool
	}{
		{domain.StatusOpen, domain.StatusAcknowledged, true},
		{domain.StatusOpen, domain.StatusInProgress, true},
		{domain.StatusOpen, domain.StatusResolved, false},
		{domain.StatusOpen, domain.StatusAwaitingStudentResponse, false},
		{domain.StatusInProgress, domain.StatusAwaitingStudentResponse, true},
		{domain.StatusAwaitingStudentResponse, domain.StatusInProgress, true},
		{domain.StatusResolved, domain.StatusClosed, true},
		{domain.StatusResolved, domain.StatusReopened, true},
		{domain.StatusClosed, domain.StatusReopened, true},
		{domain.StatusClosed, domain.StatusInProgress, false},
		{domain.StatusCancelled, domain.StatusReopened, false},
		{domain.StatusReopened, domain.StatusInProgress, true},
		{"unknown", domain.StatusOpen, false},
	}
	for _, tc := range cases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			require.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestValidateTransitionNamesPair(t *testing.T) {
	err := ValidateTransition(domain.StatusClosed, domain.StatusResolved)
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, domain.StatusClosed, domainErr.Details["from"])
	require.Equal(t, domain.StatusResolved, domainErr.Details["to"])
}

func TestApplySetsTimestampsOnce(t *testing.T) {
	life := lifecycle{calc: tat.NewCalculator(tat.DefaultCalendar(time.UTC), nil)}
	pausing := map[string]bool{domain.StatusAwaitingStudentResponse: true}
	ticket := &domain.Ticket{Status: domain.StatusOpen}

	require.NoError(t, life.apply(ticket, domain.StatusAcknowledged, pausing, at(19, 10)))
	require.NoError(t, life.apply(ticket, domain.StatusInProgress, pausing, at(19, 11)))
	require.Equal(t, at(19, 10), *ticket.AcknowledgedAt)

	require.NoError(t, life.apply(ticket, domain.StatusResolved, pausing, at(19, 12)))
	require.NoError(t, life.apply(ticket, domain.StatusClosed, pausing, at(19, 13)))
	require.Equal(t, at(19, 12), *ticket.ResolvedAt)
	require.Equal(t, at(19, 13), *ticket.ClosedAt)
}

func TestApplyPauseWithoutDeadlineKeepsRunning(t *testing.T) {
	life := lifecycle{calc: tat.NewCalculator(tat.DefaultCalendar(time.UTC), nil)}
	pausing := map[string]bool{domain.StatusAwaitingStudentResponse: true}
	ticket := &domain.Ticket{Status: domain.StatusInProgress}

	require.NoError(t, life.apply(ticket, domain.StatusAwaitingStudentResponse, pausing, at(19, 10)))
	require.False(t, ticket.Metadata.IsPaused())
	require.NoError(t, life.apply(ticket, domain.StatusInProgress, pausing, at(19, 12)))
	require.Nil(t, ticket.ResolutionDueAt)
}

func TestApplyReopenResetsEscalationState(t *testing.T) {
	life := lifecycle{calc: tat.NewCalculator(tat.DefaultCalendar(time.UTC), nil)}
	marker := at(21, 9)
	last := at(21, 10)
	resolved := at(21, 11)
	ticket := &domain.Ticket{
		Status:          domain.StatusResolved,
		EscalationLevel: 2,
		ResolvedAt:      &resolved,
		Metadata: domain.TicketMetadata{
			EscalatedForDeadline: &marker,
			LastEscalationAt:     &last,
		},
	}

	require.NoError(t, life.apply(ticket, domain.StatusReopened, nil, at(22, 9)))
	require.Equal(t, 0, ticket.EscalationLevel)
	require.Equal(t, 1, ticket.ReopenCount)
	require.Nil(t, ticket.ResolvedAt)
	require.Nil(t, ticket.Metadata.EscalatedForDeadline)
	require.Nil(t, ticket.Metadata.LastEscalationAt)
}
