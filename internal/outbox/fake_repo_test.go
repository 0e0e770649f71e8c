package outbox

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/repository"
)

type memoryOutbox struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*domain.OutboxEvent
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{rows: map[string]*domain.OutboxEvent{}}
}

func (m *memoryOutbox) Enqueue(_ context.Context, event *domain.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.IdempotencyKey != nil {
		for _, row := range m.rows {
			if row.IdempotencyKey != nil && *row.IdempotencyKey == *event.IdempotencyKey {
				*event = *row
				return false, nil
			}
		}
	}
	m.seq++
	stored := *event
	stored.ID = "ob-" + strconv.Itoa(m.seq)
	stored.Status = domain.OutboxPending
	stored.CreatedAt = event.ScheduledAt
	m.rows[stored.ID] = &stored
	*event = stored
	return true, nil
}

func (m *memoryOutbox) ClaimBatch(_ context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.OutboxEvent
	for _, row := range m.rows {
		if row.Status == domain.OutboxPending && !row.ScheduledAt.After(now) {
			due = append(due, row)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.OutboxEvent, 0, len(due))
	for _, row := range due {
		locked := now
		row.Status = domain.OutboxProcessing
		row.LockedAt = &locked
		out = append(out, *row)
	}
	return out, nil
}

func (m *memoryOutbox) processing(id string) (*domain.OutboxEvent, error) {
	row, ok := m.rows[id]
	if !ok || row.Status != domain.OutboxProcessing {
		return nil, pgx.ErrNoRows
	}
	return row, nil
}

func (m *memoryOutbox) MarkCompleted(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.processing(id)
	if err != nil {
		return err
	}
	row.Status = domain.OutboxCompleted
	row.ProcessedAt = &now
	row.LockedAt = nil
	return nil
}

func (m *memoryOutbox) MarkRetry(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.processing(id)
	if err != nil {
		return err
	}
	row.Status = domain.OutboxPending
	row.Attempts = attempts
	row.ScheduledAt = next
	row.LastError = &lastErr
	row.LockedAt = nil
	return nil
}

func (m *memoryOutbox) MarkDeadLetter(_ context.Context, id string, attempts int, lastErr string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.processing(id)
	if err != nil {
		return err
	}
	row.Status = domain.OutboxDeadLetter
	row.Attempts = attempts
	row.LastError = &lastErr
	row.ProcessedAt = &now
	row.LockedAt = nil
	return nil
}

func (m *memoryOutbox) ReleaseStale(_ context.Context, lockedBefore, now time.Time) (repository.StaleRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result repository.StaleRelease
	for _, row := range m.rows {
		if row.Status != domain.OutboxProcessing || row.LockedAt == nil || !row.LockedAt.Before(lockedBefore) {
			continue
		}
		row.Attempts++
		message := "processing lease expired"
		row.LastError = &message
		row.LockedAt = nil
		if row.Attempts >= max(row.MaxAttempts, 1) {
			row.Status = domain.OutboxDeadLetter
			processed := now
			row.ProcessedAt = &processed
			result.DeadLettered++
			continue
		}
		row.Status = domain.OutboxPending
		result.Requeued++
	}
	return result, nil
}

func (m *memoryOutbox) Requeue(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != domain.OutboxDeadLetter {
		return pgx.ErrNoRows
	}
	row.Status = domain.OutboxPending
	row.Attempts = 0
	row.ScheduledAt = now
	row.LastError = nil
	row.ProcessedAt = nil
	return nil
}

func (m *memoryOutbox) ListDeadLetters(_ context.Context, _, _ int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboxEvent
	for _, row := range m.rows {
		if row.Status == domain.OutboxDeadLetter {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memoryOutbox) GetByID(_ context.Context, id string) (*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
