package domain

import (
	"encoding/json"
	"time"
)

// Topic is the storefront's label for an inbound event.
type Topic string

const (
	TopicProductsUpdate        Topic = "products/update"
	TopicProductsDelete        Topic = "products/delete"
	TopicInventoryLevelsUpdate Topic = "inventory_levels/update"
	TopicOrdersCreate          Topic = "orders/create"
)

// EventState is the position of an InboundEvent in its two-phase lifecycle:
// Pending -> Processed | Failed. Processed and Failed are terminal for one
// ingestion attempt; replay may move a terminal event between them.
type EventState string

const (
	EventStatePending   EventState = "PENDING"
	EventStateProcessed EventState = "PROCESSED"
	EventStateFailed    EventState = "FAILED"
)

// Outcome is the terminal transition applied to a pending event.
type Outcome struct {
	failed bool
	reason string
}

// Succeeded is the outcome of an interpretation that completed without error.
func Succeeded() Outcome { return Outcome{} }

// FailedWith records err as the reason the event could not be processed.
func FailedWith(err error) Outcome {
	reason := "unknown error"
	if err != nil && err.Error() != "" {
		reason = err.Error()
	}
	return Outcome{failed: true, reason: reason}
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool { return o.failed }

// ErrorText returns the stored error column value: nil on success.
func (o Outcome) ErrorText() *string {
	if !o.failed {
		return nil
	}
	r := o.reason
	return &r
}

// State returns the event state this outcome leads to.
func (o Outcome) State() EventState {
	if o.failed {
		return EventStateFailed
	}
	return EventStateProcessed
}

// InboundEvent is one row of the append-only event log.
type InboundEvent struct {
	ID        string
	StoreID   string
	Topic     Topic
	WebhookID string

	// Payload is the parsed body. Nil when the body could not be parsed, in
	// which case RawBody holds the bytes as received.
	Payload json.RawMessage
	RawBody []byte

	Processed bool
	Error     *string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated by listing queries only.
	StoreName   string
	StoreDomain string
}

// State derives the lifecycle state from the persisted columns.
func (e *InboundEvent) State() EventState {
	switch {
	case !e.Processed:
		return EventStatePending
	case e.Error != nil:
		return EventStateFailed
	default:
		return EventStateProcessed
	}
}

// EventFilter selects events for a store, newest first.
type EventFilter struct {
	StoreID   string
	Processed *bool
	Limit     int
}
