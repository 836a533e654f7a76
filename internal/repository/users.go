package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	upsertUserSQL = `
INSERT INTO users (id, email, name, fcm_token)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE
SET name = EXCLUDED.name,
    fcm_token = COALESCE(EXCLUDED.fcm_token, users.fcm_token),
    updated_at = now()
RETURNING id`

	setDeviceTokenSQL = `
UPDATE users SET fcm_token = $2, updated_at = now()
WHERE id = $1`

	userTokensSQL = `
SELECT id, fcm_token FROM users
WHERE id = ANY($1) AND fcm_token IS NOT NULL AND fcm_token <> ''
ORDER BY id`

	userTokenSQL = `
SELECT fcm_token FROM users WHERE id = $1`

	clearStaleTokenSQL = `
UPDATE users SET fcm_token = NULL, updated_at = now()
WHERE id = $1 AND fcm_token = $2`

	userExistsSQL = `
SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
)

// UpsertUser inserts a user or updates the row with the same email, and
// returns the persisted id.
func (q *Queries) UpsertUser(ctx context.Context, u domain.User) (string, error) {
	if u.ID == "" {
		u.ID = domain.NewID()
	}
	var id string
	if err := q.db.QueryRow(ctx, upsertUserSQL, u.ID, u.Email, u.Name, nullIfEmpty(u.DeviceToken)).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert user %q: %w", u.Email, err)
	}
	return id, nil
}

// SetDeviceToken stores the user's device messaging token. An empty token clears it.
func (q *Queries) SetDeviceToken(ctx context.Context, userID, token string) error {
	tag, err := q.db.Exec(ctx, setDeviceTokenSQL, userID, nullIfEmpty(token))
	if err != nil {
		return fmt.Errorf("set device token for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set device token for user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// Tokens resolves device tokens for the given users, skipping users without one.
func (q *Queries) Tokens(ctx context.Context, userIDs []string) ([]domain.Recipient, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, userTokensSQL, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve user tokens: %w", err)
	}
	return collectRecipients(rows)
}

// Token resolves one user's device token. It returns "" when the user has none.
func (q *Queries) Token(ctx context.Context, userID string) (string, error) {
	var token *string
	if err := q.db.QueryRow(ctx, userTokenSQL, userID).Scan(&token); err != nil {
		return "", fmt.Errorf("resolve token for user %s: %w", userID, notFound(err))
	}
	return derefString(token), nil
}

// ClearStaleToken removes a token the gateway no longer accepts. A token
// re-registered in the meantime is left alone.
func (q *Queries) ClearStaleToken(ctx context.Context, r domain.Recipient) error {
	if _, err := q.db.Exec(ctx, clearStaleTokenSQL, r.UserID, r.Token); err != nil {
		return fmt.Errorf("clear stale token for user %s: %w", r.UserID, err)
	}
	return nil
}

// UserExists reports whether a user row exists.
func (q *Queries) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, userExistsSQL, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user %s: %w", userID, err)
	}
	return exists, nil
}

func collectRecipients(rows pgx.Rows) ([]domain.Recipient, error) {
	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Recipient, error) {
		var r domain.Recipient
		err := row.Scan(&r.UserID, &r.Token)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan recipients: %w", err)
	}
	return recipients, nil
}
