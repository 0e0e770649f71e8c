package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
	OutboxDeadLetter OutboxStatus = "dead_letter"
)

// OutboxEvent is a durable side effect waiting for dispatch.
type OutboxEvent struct {
	ID             string
	EventType      string
	AggregateType  string
	AggregateID    string
	Payload        json.RawMessage
	Status         OutboxStatus
	Attempts       int
	MaxAttempts    int
	IdempotencyKey *string
	ScheduledAt    time.Time
	Priority       int
	LockedAt       *time.Time
	ProcessedAt    *time.Time
	LastError      *string
	CreatedAt      time.Time
}

// IdempotencyRecord remembers the outcome of an externally retried mutation.
// ResourceID is nil while the first request is still executing.
type IdempotencyRecord struct {
	Key          string
	ResourceType string
	ResourceID   *string
	RequestHash  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
