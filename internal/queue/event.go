package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operations carried by invalidation events.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// InvalidationEvent signals that cached data for a contact is stale.
// Exactly one event is produced per successful persistence write; the
// worker consumes it at-least-once.
type InvalidationEvent struct {
	ContactID uint      `json:"contact_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInvalidationEvent stamps an event with the current time.
func NewInvalidationEvent(contactID uint, operation string) InvalidationEvent {
	return InvalidationEvent{
		ContactID: contactID,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

// Encode serialises the event for transport.
func (e InvalidationEvent) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("queue: encode event: %w", err)
	}
	return payload, nil
}

// DecodeInvalidationEvent parses a transported event payload.
func DecodeInvalidationEvent(payload []byte) (InvalidationEvent, error) {
	var event InvalidationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return InvalidationEvent{}, fmt.Errorf("queue: decode event: %w", err)
	}
	if event.Operation == "" {
		return InvalidationEvent{}, fmt.Errorf("queue: event missing operation")
	}
	return event, nil
}
