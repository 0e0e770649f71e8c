package service

import (
	"time"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// transitions is the single source of allowed status changes.
var transitions = map[string]map[string]bool{
	domain.StatusOpen: {
		domain.StatusAcknowledged: true,
		domain.StatusInProgress:   true,
		domain.StatusCancelled:    true,
	},
	domain.StatusAcknowledged: {
		domain.StatusInProgress:              true,
		domain.StatusAwaitingStudentResponse: true,
		domain.StatusCancelled:               true,
	},
	domain.StatusInProgress: {
		domain.StatusAwaitingStudentResponse: true,
		domain.StatusResolved:                true,
		domain.StatusCancelled:               true,
	},
	domain.StatusAwaitingStudentResponse: {
		domain.StatusInProgress: true,
		domain.StatusResolved:   true,
		domain.StatusCancelled:  true,
	},
	domain.StatusReopened: {
		domain.StatusInProgress:              true,
		domain.StatusAwaitingStudentResponse: true,
		domain.StatusResolved:                true,
		domain.StatusCancelled:               true,
	},
	domain.StatusResolved: {
		domain.StatusClosed:   true,
		domain.StatusReopened: true,
	},
	domain.StatusClosed: {
		domain.StatusReopened: true,
	},
	domain.StatusCancelled: {},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// ValidateTransition returns a validation error naming an illegal pair.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return apperrors.NewIllegalTransition(from, to)
	}
	return nil
}

// lifecycle applies a status change together with its side effects on
// timestamps and the TAT countdown.
type lifecycle struct {
	calc *tat.Calculator
}

// apply moves ticket to status to. Entering a pausing status freezes the
// remaining business hours; leaving one recomputes the deadline from them.
func (l lifecycle) apply(ticket *domain.Ticket, to string, pausing map[string]bool, now time.Time) error {
	from := ticket.Status
	if err := ValidateTransition(from, to); err != nil {
		return err
	}

	switch {
	case !pausing[from] && pausing[to]:
		if ticket.ResolutionDueAt != nil && !ticket.Metadata.IsPaused() {
			state := l.calc.Pause(*ticket.ResolutionDueAt, from, now)
			ticket.Metadata.SetTAT(&state)
		}
	case pausing[from] && !pausing[to]:
		l.repair(ticket, pausing, now)
		if ticket.Metadata.IsPaused() {
			due := l.calc.Resume(*ticket.Metadata.TAT, now)
			ticket.ResolutionDueAt = &due
			ticket.Metadata.ClearTAT()
		}
	}

	switch to {
	case domain.StatusAcknowledged:
		if ticket.AcknowledgedAt == nil {
			ticket.AcknowledgedAt = &now
		}
	case domain.StatusInProgress:
		if ticket.AcknowledgedAt == nil {
			ticket.AcknowledgedAt = &now
		}
	case domain.StatusResolved:
		ticket.ResolvedAt = &now
	case domain.StatusClosed:
		ticket.ClosedAt = &now
	case domain.StatusReopened:
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
		ticket.ReopenCount++
		ticket.EscalationLevel = 0
		ticket.Metadata.ResetEscalation()
		ticket.Metadata.ClearTAT()
	}

	ticket.Status = to
	return nil
}

// repair rebuilds unusable pause state before a ticket is changed. A ticket
// in a pausing status gets a fresh pause that keeps the salvaged remaining
// hours, or freezes what is left of its deadline at now, never below zero.
// Elsewhere the broken state is dropped. It reports whether anything changed.
func (l lifecycle) repair(ticket *domain.Ticket, pausing map[string]bool, now time.Time) bool {
	meta := &ticket.Metadata
	if !pausing[ticket.Status] {
		if meta.TATMalformed() {
			meta.ClearTAT()
			return true
		}
		return false
	}
	if meta.IsPaused() {
		return false
	}
	state, ok := meta.SalvageTAT()
	if !ok {
		if ticket.ResolutionDueAt == nil {
			return false
		}
		state = l.calc.Pause(*ticket.ResolutionDueAt, domain.StatusInProgress, now)
		if state.RemainingHours < 0 {
			state.RemainingHours = 0
		}
	}
	if state.PausedAt.IsZero() {
		state.PausedAt = now
	}
	if state.PausedStatus == "" || pausing[state.PausedStatus] {
		state.PausedStatus = domain.StatusInProgress
	}
	meta.SetTAT(&state)
	return true
}

// countdownHeld reports whether the resolution countdown is stopped: paused,
// holding unusable pause state, or sitting in a pausing status without one.
func countdownHeld(ticket *domain.Ticket, pausing map[string]bool) bool {
	return ticket.Metadata.IsPaused() || ticket.Metadata.TATMalformed() || pausing[ticket.Status]
}
