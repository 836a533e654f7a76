// Package handlers implements the HTTP API on top of the webhook pipeline,
// the notification dispatcher and the repositories.
//
// Handlers depend on narrow interfaces so they can be exercised with fakes.
// Route registration lives in internal/app.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/imc400/shopify-market-place/internal/api/middleware"
	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WebhookPipeline ingests and replays storefront deliveries.
type WebhookPipeline interface {
	Ingest(ctx context.Context, d webhook.Delivery) (*webhook.Result, error)
	Replay(ctx context.Context, eventID string) (*webhook.Result, error)
}

// EventReader lists logged events.
type EventReader interface {
	ListEvents(ctx context.Context, f domain.EventFilter) ([]*domain.InboundEvent, error)
}

// BulkReplayer enqueues replays of a store's failed events.
type BulkReplayer interface {
	EnqueueFailed(ctx context.Context, storeID string) (int, error)
}

// Notifier is the dispatcher surface used by the API.
type Notifier interface {
	SendToStoreSubscribers(ctx context.Context, storeID string, p domain.NotificationPayload) (int, error)
	SendToMultipleUsers(ctx context.Context, userIDs []string, p domain.NotificationPayload) (int, error)
	SendToTopic(ctx context.Context, topic string, p domain.NotificationPayload) bool
	SubscribeUserToTopic(ctx context.Context, userID, topic string) bool
	UnsubscribeUserFromTopic(ctx context.Context, userID, topic string) bool
	MarkNotificationAsClicked(ctx context.Context, notificationID string) bool
	Delivery(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error)
	History(ctx context.Context, userID string, limit int) ([]*domain.DeliveryRecord, error)
}

// StoreReader resolves active stores.
type StoreReader interface {
	ActiveStoreByID(ctx context.Context, id string) (*domain.Store, error)
}

// SubscriptionStore toggles and lists store subscriptions.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, userID, storeID string) (string, error)
	Unsubscribe(ctx context.Context, userID, storeID string) error
	ActiveStoreIDs(ctx context.Context, userID string) ([]string, error)
}

// DeviceTokenWriter stores device messaging tokens.
type DeviceTokenWriter interface {
	SetDeviceToken(ctx context.Context, userID, token string) error
}

// PromotionStore persists promotions.
type PromotionStore interface {
	CreatePromotion(ctx context.Context, p *domain.Promotion) error
	ListPromotionsForUser(ctx context.Context, userID string, now time.Time, limit int) ([]*domain.Promotion, error)
}

// Server implements all API handlers.
type Server struct {
	db            Pinger
	pipeline      WebhookPipeline
	events        EventReader
	replays       BulkReplayer
	notifier      Notifier
	stores        StoreReader
	subscriptions SubscriptionStore
	devices       DeviceTokenWriter
	promotions    PromotionStore
	maxBodyBytes  int64
	now           func() time.Time
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	DB            Pinger
	Pipeline      WebhookPipeline
	Events        EventReader
	Replays       BulkReplayer // Optional: nil disables bulk replay.
	Notifier      Notifier
	Stores        StoreReader
	Subscriptions SubscriptionStore
	Devices       DeviceTokenWriter
	Promotions    PromotionStore
	MaxBodyBytes  int64
}

// DefaultMaxBodyBytes bounds webhook bodies when ServerDeps.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 2 << 20

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Server{
		db:            deps.DB,
		pipeline:      deps.Pipeline,
		events:        deps.Events,
		replays:       deps.Replays,
		notifier:      deps.Notifier,
		stores:        deps.Stores,
		subscriptions: deps.Subscriptions,
		devices:       deps.Devices,
		promotions:    deps.Promotions,
		maxBodyBytes:  maxBody,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// requireUser returns the authenticated user id or records a 401.
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c.Request.Context())
	if userID == "" {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "user not authenticated"))
		return "", false
	}
	return userID, true
}

// bindJSON decodes and validates the request body, recording a 400 with
// per-field details on failure.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   lowerFirst(fe.Field()),
				Code:    fe.Tag(),
				Message: fe.Error(),
			})
		}
		_ = c.Error(apperrors.ErrValidation("invalid request body", fields...))
		return false
	}
	_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "malformed request body", http.StatusBadRequest))
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// storeErr maps repository lookups to API errors.
func storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.ErrStoreNotFound()
	}
	return apperrors.ErrPersistence(err, "load store")
}
