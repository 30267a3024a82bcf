// Package common holds the event base shared by the domain log and the
// downstream publisher.
package common

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is implemented by every event an aggregate emits.
type DomainEvent interface {
	EventID() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseEvent provides common fields for domain events.
type BaseEvent struct {
	ID        string    `json:"event_id"`
	Timestamp time.Time `json:"occurred_at"`
	AggID     string    `json:"aggregate_id"`
}

// NewBaseEvent stamps a fresh event id for aggID at the given instant.
func NewBaseEvent(aggID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Timestamp: at.UTC(),
		AggID:     aggID,
	}
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggID }
