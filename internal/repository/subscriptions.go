package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	// Inserts a new row or reactivates an inactive one. An already-active row
	// is left untouched and yields no row.
	subscribeSQL = `
INSERT INTO subscriptions (id, user_id, store_id, is_active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (user_id, store_id) DO UPDATE
SET is_active = TRUE, updated_at = now()
WHERE subscriptions.is_active = FALSE
RETURNING id`

	unsubscribeSQL = `
UPDATE subscriptions SET is_active = FALSE, updated_at = now()
WHERE user_id = $1 AND store_id = $2 AND is_active`

	activeSubscriberTokensSQL = `
SELECT u.id, u.fcm_token
FROM subscriptions s
JOIN users u ON u.id = s.user_id
WHERE s.store_id = $1 AND s.is_active AND u.fcm_token IS NOT NULL AND u.fcm_token <> ''
ORDER BY s.created_at, u.id`

	activeStoreIDsSQL = `
SELECT store_id FROM subscriptions
WHERE user_id = $1 AND is_active`
)

// Subscribe activates the (user, store) subscription. It returns
// domain.ErrAlreadySubscribed when an active row already exists.
func (q *Queries) Subscribe(ctx context.Context, userID, storeID string) (string, error) {
	var id string
	err := q.db.QueryRow(ctx, subscribeSQL, domain.NewID(), userID, storeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrAlreadySubscribed
	}
	if err != nil {
		return "", fmt.Errorf("subscribe user %s to store %s: %w", userID, storeID, err)
	}
	return id, nil
}

// Unsubscribe deactivates the (user, store) subscription. It returns
// domain.ErrNotSubscribed when no active row exists.
func (q *Queries) Unsubscribe(ctx context.Context, userID, storeID string) error {
	tag, err := q.db.Exec(ctx, unsubscribeSQL, userID, storeID)
	if err != nil {
		return fmt.Errorf("unsubscribe user %s from store %s: %w", userID, storeID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotSubscribed
	}
	return nil
}

// ActiveSubscriberTokens resolves users actively subscribed to storeID that
// have a device token.
func (q *Queries) ActiveSubscriberTokens(ctx context.Context, storeID string) ([]domain.Recipient, error) {
	rows, err := q.db.Query(ctx, activeSubscriberTokensSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("resolve subscribers of store %s: %w", storeID, err)
	}
	return collectRecipients(rows)
}

// ActiveStoreIDs returns the stores a user is actively subscribed to.
func (q *Queries) ActiveStoreIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := q.db.Query(ctx, activeStoreIDsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of user %s: %w", userID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan subscribed store ids: %w", err)
	}
	return ids, nil
}
