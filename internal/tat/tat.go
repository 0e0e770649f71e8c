package tat

import (
	"math"
	"time"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// maxCalendarDays bounds day-by-day walks so a misconfigured calendar cannot spin.
const maxCalendarDays = 366 * 20

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(math.Round(hours * float64(time.Hour)))
}

// AddBusinessHours advances start by hours of business time. Zero returns start
// unchanged and negative values walk backwards through business time.
func (c Calendar) AddBusinessHours(start time.Time, hours float64) time.Time {
	remaining := hoursToDuration(hours)
	switch {
	case remaining == 0:
		return start
	case remaining > 0:
		return c.forward(start, remaining).In(start.Location())
	default:
		return c.backward(start, -remaining).In(start.Location())
	}
}

func (c Calendar) forward(t time.Time, remaining time.Duration) time.Time {
	for i := 0; i < maxCalendarDays; i++ {
		day := c.startOfDay(t)
		ws, we, ok := c.windowOf(day)
		if !ok || !t.Before(we) {
			t = c.nextDay(t)
			continue
		}
		if t.Before(ws) {
			t = ws
		}
		available := we.Sub(t)
		if remaining <= available {
			return t.Add(remaining)
		}
		remaining -= available
		t = c.nextDay(t)
	}
	return t.Add(remaining)
}

func (c Calendar) backward(t time.Time, remaining time.Duration) time.Time {
	for i := 0; i < maxCalendarDays; i++ {
		day := c.startOfDay(t)
		if t.Equal(day) {
			day = c.previousDay(day)
		}
		if ws, we, ok := c.windowOf(day); ok {
			if t.After(we) {
				t = we
			}
			if t.After(ws) {
				available := t.Sub(ws)
				if remaining <= available {
					return t.Add(-remaining)
				}
				remaining -= available
			}
		}
		t = day
	}
	return t.Add(-remaining)
}

// BusinessHoursBetween measures business time from from to to. The result is
// negative when to precedes from.
func (c Calendar) BusinessHoursBetween(from, to time.Time) float64 {
	if to.Before(from) {
		return -c.BusinessHoursBetween(to, from)
	}
	var total time.Duration
	t := from
	for i := 0; t.Before(to) && i < maxCalendarDays; i++ {
		day := c.startOfDay(t)
		next := c.nextDay(t)
		if ws, we, ok := c.windowOf(day); ok {
			s, e := ws, we
			if t.After(s) {
				s = t
			}
			if to.Before(e) {
				e = to
			}
			if e.After(s) {
				total += e.Sub(s)
			}
		}
		t = next
	}
	return total.Hours()
}

// Calculator binds a calendar to a clock and implements pause, resume and
// extension bookkeeping on ticket metadata.
type Calculator struct {
	calendar Calendar
	clock    Clock
}

// NewCalculator constructs a calculator. A nil clock means the system clock.
func NewCalculator(calendar Calendar, clock Clock) *Calculator {
	if clock == nil {
		clock = SystemClock{}
	}
	if calendar.Location == nil {
		calendar = DefaultCalendar(nil)
	}
	return &Calculator{calendar: calendar, clock: clock}
}

// Now returns the calculator's notion of the current time.
func (c *Calculator) Now() time.Time {
	return c.clock.Now()
}

// Calendar exposes the configured business calendar.
func (c *Calculator) Calendar() Calendar {
	return c.calendar
}

// Deadline computes start plus hours of business time.
func (c *Calculator) Deadline(start time.Time, hours float64) time.Time {
	return c.calendar.AddBusinessHours(start, hours)
}

// Pause captures the business hours left until deadline at now.
func (c *Calculator) Pause(deadline time.Time, activeStatus string, now time.Time) domain.TatState {
	return domain.TatState{
		PausedAt:       now,
		RemainingHours: c.calendar.BusinessHoursBetween(now, deadline),
		PausedStatus:   activeStatus,
	}
}

// Resume recomputes the deadline from the remaining hours captured on pause.
// Zero or negative remaining hours yield a deadline at or before now.
func (c *Calculator) Resume(state domain.TatState, now time.Time) time.Time {
	return c.calendar.AddBusinessHours(now, state.RemainingHours)
}

// IsOverdue compares now against the effective deadline. A paused countdown,
// unusable pause state or a missing deadline is never overdue.
func (c *Calculator) IsOverdue(deadline *time.Time, meta domain.TicketMetadata, now time.Time) bool {
	if deadline == nil || deadline.IsZero() {
		return false
	}
	if meta.IsPaused() || meta.TATMalformed() {
		return false
	}
	return now.After(*deadline)
}

// RemainingHours reports business hours left before the deadline, using the
// frozen value while paused. It is unknown while the pause state is unusable.
func (c *Calculator) RemainingHours(deadline *time.Time, meta domain.TicketMetadata, now time.Time) *float64 {
	if meta.IsPaused() {
		remaining := meta.TAT.RemainingHours
		return &remaining
	}
	if deadline == nil || meta.TATMalformed() {
		return nil
	}
	remaining := c.calendar.BusinessHoursBetween(now, *deadline)
	return &remaining
}

// Extend appends an extension record and returns the new deadline. When the
// countdown is paused the frozen remaining hours are moved by the same amount
// so that resume honours the extension.
func (c *Calculator) Extend(meta *domain.TicketMetadata, previous *time.Time, next time.Time, by, reason string, now time.Time) time.Time {
	if meta.IsPaused() && previous != nil {
		meta.TAT.RemainingHours += c.calendar.BusinessHoursBetween(*previous, next)
	}
	meta.Extensions = append(meta.Extensions, domain.ExtensionRecord{
		ExtendedAt:       now,
		ExtendedBy:       by,
		PreviousDeadline: previous,
		NewDeadline:      next,
		Reason:           reason,
	})
	return next
}
