package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadySubscribed is returned when an active subscription already exists.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrNotSubscribed is returned when no active subscription exists.
	ErrNotSubscribed = errors.New("not subscribed")
)

// NewID returns a time-ordered identifier for persisted rows.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Store is a storefront tenant registered with the marketplace.
type Store struct {
	ID            string
	Name          string
	ShopifyDomain string
	Description   string
	Logo          string
	Categories    []string
	IsActive      bool
	CreatedAt     time.Time
}

// Subscription is a user's membership in a store's fan-out set.
type Subscription struct {
	ID        string
	UserID    string
	StoreID   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is the subset of the account the pipeline needs.
type User struct {
	ID          string
	Email       string
	Name        string
	DeviceToken string
}

// Promotion is a store offer that may be announced to subscribers.
type Promotion struct {
	ID           string
	StoreID      string
	StoreName    string
	Title        string
	Description  string
	Image        string
	DiscountCode string
	ValidUntil   *time.Time
	IsActive     bool
	CreatedAt    time.Time
}
