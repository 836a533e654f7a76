package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/imc400/shopify-market-place/internal/domain"
)

const (
	selectStoreColumns = `
SELECT id, name, shopify_domain, description, logo, categories, is_active, created_at
FROM stores`

	getActiveStoreByDomainSQL = selectStoreColumns + `
WHERE shopify_domain = $1 AND is_active`

	getActiveStoreByIDSQL = selectStoreColumns + `
WHERE id = $1 AND is_active`

	upsertStoreSQL = `
INSERT INTO stores (id, name, shopify_domain, encrypted_access_token, description, logo, categories, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (shopify_domain) DO UPDATE
SET name = EXCLUDED.name,
    encrypted_access_token = EXCLUDED.encrypted_access_token,
    description = EXCLUDED.description,
    logo = EXCLUDED.logo,
    categories = EXCLUDED.categories,
    is_active = EXCLUDED.is_active,
    updated_at = now()
RETURNING id`
)

// ActiveStoreByDomain resolves a storefront domain to an active store.
func (q *Queries) ActiveStoreByDomain(ctx context.Context, shopDomain string) (*domain.Store, error) {
	s, err := scanStore(q.db.QueryRow(ctx, getActiveStoreByDomainSQL, shopDomain))
	if err != nil {
		return nil, fmt.Errorf("get store by domain %q: %w", shopDomain, notFound(err))
	}
	return s, nil
}

// ActiveStoreByID returns an active store by id.
func (q *Queries) ActiveStoreByID(ctx context.Context, id string) (*domain.Store, error) {
	s, err := scanStore(q.db.QueryRow(ctx, getActiveStoreByIDSQL, id))
	if err != nil {
		return nil, fmt.Errorf("get store %s: %w", id, notFound(err))
	}
	return s, nil
}

// UpsertStore inserts a store or updates the row with the same domain, and
// returns the persisted id. sealedToken is the already-encrypted access token.
func (q *Queries) UpsertStore(ctx context.Context, s domain.Store, sealedToken []byte) (string, error) {
	if s.ID == "" {
		s.ID = domain.NewID()
	}
	categories := s.Categories
	if categories == nil {
		categories = []string{}
	}
	var id string
	if err := q.db.QueryRow(ctx, upsertStoreSQL,
		s.ID, s.Name, s.ShopifyDomain, sealedToken, s.Description, s.Logo, categories, s.IsActive,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert store %q: %w", s.ShopifyDomain, err)
	}
	return id, nil
}

func scanStore(row pgx.Row) (*domain.Store, error) {
	var s domain.Store
	if err := row.Scan(&s.ID, &s.Name, &s.ShopifyDomain, &s.Description, &s.Logo, &s.Categories, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
