package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	insertEventSQL = `
INSERT INTO webhook_events (id, store_id, topic, webhook_id, payload, raw_body, processed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)`

	finalizeEventSQL = `
UPDATE webhook_events
SET processed = TRUE, error = $2, updated_at = now()
WHERE id = $1`

	selectEventColumns = `
SELECT e.id, e.store_id, e.topic, e.webhook_id, e.payload, e.raw_body, e.processed, e.error,
       e.created_at, e.updated_at, s.name, s.shopify_domain
FROM webhook_events e
JOIN stores s ON s.id = e.store_id`

	getEventSQL = selectEventColumns + `
WHERE e.id = $1`

	listEventsSQL = selectEventColumns + `
WHERE e.store_id = $1 AND ($2::boolean IS NULL OR e.processed = $2)
ORDER BY e.created_at DESC
LIMIT $3`

	listFailedEventIDsSQL = `
SELECT id FROM webhook_events
WHERE store_id = $1 AND processed AND error IS NOT NULL
ORDER BY created_at
LIMIT $2`

	deleteProcessedEventsSQL = `
DELETE FROM webhook_events
WHERE processed AND error IS NULL AND created_at < $1`
)

// AppendEvent inserts a pending event. ID and CreatedAt are filled when empty.
func (q *Queries) AppendEvent(ctx context.Context, e *domain.InboundEvent) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.UpdatedAt = e.CreatedAt
	e.Processed = false
	e.Error = nil

	if _, err := q.db.Exec(ctx, insertEventSQL,
		e.ID, e.StoreID, string(e.Topic), nullIfEmpty(e.WebhookID), e.Payload, e.RawBody, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// FinalizeEvent applies the terminal transition to one event by id.
func (q *Queries) FinalizeEvent(ctx context.Context, id string, outcome domain.Outcome) error {
	tag, err := q.db.Exec(ctx, finalizeEventSQL, id, outcome.ErrorText())
	if err != nil {
		return fmt.Errorf("finalize webhook event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize webhook event %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetEvent returns one event with its store name and domain.
func (q *Queries) GetEvent(ctx context.Context, id string) (*domain.InboundEvent, error) {
	e, err := scanEvent(q.db.QueryRow(ctx, getEventSQL, id))
	if err != nil {
		return nil, fmt.Errorf("get webhook event %s: %w", id, notFound(err))
	}
	return e, nil
}

// ListEvents returns a store's events newest first.
func (q *Queries) ListEvents(ctx context.Context, f domain.EventFilter) ([]*domain.InboundEvent, error) {
	rows, err := q.db.Query(ctx, listEventsSQL, f.StoreID, f.Processed, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.InboundEvent, error) {
		return scanEvent(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan webhook events: %w", err)
	}
	return events, nil
}

// ListFailedEventIDs returns ids of a store's events whose last attempt failed, oldest first.
func (q *Queries) ListFailedEventIDs(ctx context.Context, storeID string, limit int) ([]string, error) {
	rows, err := q.db.Query(ctx, listFailedEventIDsSQL, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed webhook events: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan failed webhook event ids: %w", err)
	}
	return ids, nil
}

// DeleteProcessedEventsBefore removes successfully processed events older
// than cutoff. Failed and pending events are kept for replay.
func (q *Queries) DeleteProcessedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteProcessedEventsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete processed webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(row pgx.Row) (*domain.InboundEvent, error) {
	var (
		e         domain.InboundEvent
		topic     string
		webhookID *string
	)
	if err := row.Scan(
		&e.ID, &e.StoreID, &topic, &webhookID, &e.Payload, &e.RawBody, &e.Processed, &e.Error,
		&e.CreatedAt, &e.UpdatedAt, &e.StoreName, &e.StoreDomain,
	); err != nil {
		return nil, err
	}
	e.Topic = domain.Topic(topic)
	e.WebhookID = derefString(webhookID)
	return &e, nil
}
