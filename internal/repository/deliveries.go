package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	insertDeliverySQL = `
INSERT INTO push_notifications (id, user_id, title, body, data, status, gateway_error, sent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectDeliveryColumns = `
SELECT id, user_id, title, body, data, status, gateway_error, sent_at, clicked_at, created_at
FROM push_notifications`

	getDeliverySQL = selectDeliveryColumns + `
WHERE id = $1`

	listDeliveriesForUserSQL = selectDeliveryColumns + `
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

	markDeliveryClickedSQL = `
UPDATE push_notifications
SET status = 'DELIVERED', clicked_at = $2
WHERE id = $1`

	deleteDeliveriesSQL = `
DELETE FROM push_notifications
WHERE created_at < $1`
)

// InsertDeliveries writes all records in one batch. Either every record is
// stored or an error is returned.
func (q *Queries) InsertDeliveries(ctx context.Context, records []domain.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		data := r.Data
		if data == nil {
			data = map[string]string{}
		}
		batch.Queue(insertDeliverySQL,
			r.ID, r.UserID, r.Title, r.Body, data, string(r.Status), r.GatewayError, r.SentAt, r.CreatedAt,
		)
	}

	// Batched statements run in a single implicit transaction.
	if err := q.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %d delivery records: %w", len(records), err)
	}
	return nil
}

// GetDelivery returns one delivery record.
func (q *Queries) GetDelivery(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	r, err := scanDelivery(q.db.QueryRow(ctx, getDeliverySQL, id))
	if err != nil {
		return nil, fmt.Errorf("get delivery record %s: %w", id, notFound(err))
	}
	return r, nil
}

// ListDeliveriesForUser returns a user's delivery records newest first.
func (q *Queries) ListDeliveriesForUser(ctx context.Context, userID string, limit int) ([]*domain.DeliveryRecord, error) {
	rows, err := q.db.Query(ctx, listDeliveriesForUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.DeliveryRecord, error) {
		return scanDelivery(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan delivery records: %w", err)
	}
	return records, nil
}

// MarkDeliveryClicked transitions a record to DELIVERED and stamps the click time.
func (q *Queries) MarkDeliveryClicked(ctx context.Context, id string, at time.Time) error {
	tag, err := q.db.Exec(ctx, markDeliveryClickedSQL, id, at)
	if err != nil {
		return fmt.Errorf("mark delivery record %s clicked: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark delivery record %s clicked: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteDeliveriesBefore removes delivery records older than cutoff.
func (q *Queries) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteDeliveriesSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete delivery records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDelivery(row pgx.Row) (*domain.DeliveryRecord, error) {
	var (
		r      domain.DeliveryRecord
		status string
	)
	if err := row.Scan(
		&r.ID, &r.UserID, &r.Title, &r.Body, &r.Data, &status, &r.GatewayError, &r.SentAt, &r.ClickedAt, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = domain.DeliveryStatus(status)
	return &r, nil
}
