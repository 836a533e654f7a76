package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	insertPromotionSQL = `
INSERT INTO promotions (id, store_id, title, description, image, discount_code, valid_until, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)`

	listPromotionsForUserSQL = `
SELECT p.id, p.store_id, s.name, p.title, p.description, p.image, p.discount_code, p.valid_until, p.is_active, p.created_at
FROM promotions p
JOIN stores s ON s.id = p.store_id
JOIN subscriptions sub ON sub.store_id = p.store_id AND sub.user_id = $1 AND sub.is_active
WHERE p.is_active AND (p.valid_until IS NULL OR p.valid_until >= $2)
ORDER BY p.created_at DESC
LIMIT $3`
)

// CreatePromotion inserts an active promotion.
func (q *Queries) CreatePromotion(ctx context.Context, p *domain.Promotion) error {
	if p.ID == "" {
		p.ID = domain.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.IsActive = true
	if _, err := q.db.Exec(ctx, insertPromotionSQL,
		p.ID, p.StoreID, p.Title, p.Description, p.Image, p.DiscountCode, p.ValidUntil, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

// ListPromotionsForUser returns active, unexpired promotions of the stores
// the user is subscribed to, newest first.
func (q *Queries) ListPromotionsForUser(ctx context.Context, userID string, now time.Time, limit int) ([]*domain.Promotion, error) {
	rows, err := q.db.Query(ctx, listPromotionsForUserSQL, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	promos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Promotion, error) {
		var p domain.Promotion
		err := row.Scan(&p.ID, &p.StoreID, &p.StoreName, &p.Title, &p.Description, &p.Image,
			&p.DiscountCode, &p.ValidUntil, &p.IsActive, &p.CreatedAt)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan promotions: %w", err)
	}
	return promos, nil
}
