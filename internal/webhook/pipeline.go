// Package webhook ingests storefront deliveries: it authenticates them,
// records each attempt in the event log before acting on it, routes the event
// to its topic interpreter and fans the resulting notification out.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/metrics"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

// Storefront delivery headers.
const (
	HeaderHmac      = "X-Shopify-Hmac-Sha256"
	HeaderShop      = "X-Shopify-Shop-Domain"
	HeaderTopic     = "X-Shopify-Topic"
	HeaderWebhookID = "X-Shopify-Webhook-Id"
)

// ErrUnsupportedTopic is recorded when a replayed event has no interpreter.
var ErrUnsupportedTopic = errors.New("unsupported webhook topic")

// EventLog is the append-only event store.
type EventLog interface {
	AppendEvent(ctx context.Context, e *domain.InboundEvent) error
	FinalizeEvent(ctx context.Context, id string, outcome domain.Outcome) error
	GetEvent(ctx context.Context, id string) (*domain.InboundEvent, error)
}

// StoreResolver maps delivery sources to tenants.
type StoreResolver interface {
	ActiveStoreByDomain(ctx context.Context, shopDomain string) (*domain.Store, error)
	ActiveStoreByID(ctx context.Context, id string) (*domain.Store, error)
}

// Notifier fans a payload out to a store's subscribers.
type Notifier interface {
	SendToStoreSubscribers(ctx context.Context, storeID string, p domain.NotificationPayload) (int, error)
}

// Delivery is one inbound webhook request as received.
type Delivery struct {
	Body       []byte
	Signature  string
	ShopDomain string
	Topic      string
	WebhookID  string
}

// Result describes a completed ingestion or replay.
type Result struct {
	EventID string
	Topic   domain.Topic
	// Handled is false when no interpreter is registered for the topic.
	Handled bool
	// Notified is the gateway success count of the fan-out, if any.
	Notified int
}

// Pipeline runs verify -> resolve -> log -> interpret -> finalize.
type Pipeline struct {
	verifier *Verifier
	stores   StoreResolver
	events   EventLog
	registry *Registry
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	verifier *Verifier,
	stores StoreResolver,
	events EventLog,
	registry *Registry,
	notifier Notifier,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		verifier: verifier,
		stores:   stores,
		events:   events,
		registry: registry,
		notifier: notifier,
		metrics:  m,
	}
}

// Ingest processes one delivery. Requests failing authentication or source
// resolution leave no trace. Every other request leaves exactly one event row
// in a terminal state, even when the caller goes away mid-flight.
func (p *Pipeline) Ingest(ctx context.Context, d Delivery) (*Result, error) {
	start := time.Now()
	topic := domain.Topic(d.Topic)
	defer func() { p.metrics.ObserveWebhook(string(topic), time.Since(start)) }()

	if d.Signature == "" || d.ShopDomain == "" || d.Topic == "" {
		p.metrics.IncWebhookEvent(string(topic), "rejected")
		return nil, apperrors.BadRequest(apperrors.CodeWebhookHeadersMissing, "missing required webhook headers")
	}
	if !p.verifier.Verify(d.Body, d.Signature) {
		p.metrics.IncWebhookEvent(string(topic), "rejected")
		logger.Warn("Webhook signature mismatch",
			zap.String("shop", d.ShopDomain),
			zap.String("topic", d.Topic),
		)
		return nil, apperrors.Unauthorized(apperrors.CodeWebhookSignatureInvalid, "invalid webhook signature")
	}

	store, err := p.stores.ActiveStoreByDomain(ctx, d.ShopDomain)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.metrics.IncWebhookEvent(string(topic), "rejected")
			logger.Warn("Webhook from unknown store", zap.String("shop", d.ShopDomain))
			return nil, apperrors.ErrStoreNotFound()
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "resolve store", http.StatusInternalServerError)
	}

	// The event row's terminal state must not depend on the caller staying connected.
	ctx = context.WithoutCancel(ctx)

	event := &domain.InboundEvent{
		ID:        domain.NewID(),
		StoreID:   store.ID,
		Topic:     topic,
		WebhookID: d.WebhookID,
	}
	payload, parseErr := parsePayload(d.Body)
	if parseErr != nil {
		event.RawBody = d.Body
	} else {
		event.Payload = payload
	}

	if err := p.events.AppendEvent(ctx, event); err != nil {
		p.metrics.IncWebhookEvent(string(topic), "failed")
		return nil, apperrors.ErrPersistence(err, "record webhook event")
	}

	if parseErr != nil {
		if err := p.finalize(ctx, event, domain.FailedWith(parseErr)); err != nil {
			return nil, err
		}
		return nil, apperrors.Wrap(parseErr, apperrors.CodeInvalidPayload, "webhook body is not a JSON object", http.StatusBadRequest)
	}

	return p.process(ctx, *store, event, false)
}

// Replay re-runs the interpreter of a logged event and overwrites its
// terminal state.
func (p *Pipeline) Replay(ctx context.Context, eventID string) (*Result, error) {
	event, err := p.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.ErrEventNotFound()
		}
		return nil, apperrors.ErrPersistence(err, "load webhook event")
	}
	store, err := p.stores.ActiveStoreByID(ctx, event.StoreID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.ErrStoreNotFound()
		}
		return nil, apperrors.ErrPersistence(err, "load store")
	}

	ctx = context.WithoutCancel(ctx)

	if event.Payload == nil {
		payload, parseErr := parsePayload(event.RawBody)
		if parseErr != nil {
			if err := p.finalize(ctx, event, domain.FailedWith(parseErr)); err != nil {
				return nil, err
			}
			return nil, apperrors.Wrap(parseErr, apperrors.CodeWebhookProcessingFailed, "webhook replay failed", http.StatusInternalServerError)
		}
		event.Payload = payload
	}

	logger.Info("Replaying webhook event",
		zap.String("event_id", event.ID),
		zap.String("topic", string(event.Topic)),
		zap.String("previous_state", string(event.State())),
	)
	return p.process(ctx, *store, event, true)
}

// process interprets a logged event, fans out and records the outcome.
func (p *Pipeline) process(ctx context.Context, store domain.Store, event *domain.InboundEvent, replay bool) (*Result, error) {
	result := &Result{EventID: event.ID, Topic: event.Topic}

	interpret, ok := p.registry.Lookup(event.Topic)
	if !ok {
		if replay {
			err := fmt.Errorf("%w: %s", ErrUnsupportedTopic, event.Topic)
			if ferr := p.finalize(ctx, event, domain.FailedWith(err)); ferr != nil {
				return nil, ferr
			}
			return nil, apperrors.Wrap(err, apperrors.CodeWebhookTopicNotSupported, err.Error(), http.StatusInternalServerError)
		}
		logger.Info("Unhandled webhook topic",
			zap.String("topic", string(event.Topic)),
			zap.String("store_id", store.ID),
		)
		if err := p.finalize(ctx, event, domain.Succeeded()); err != nil {
			return nil, err
		}
		p.metrics.IncWebhookEvent(string(event.Topic), "ignored")
		return result, nil
	}
	result.Handled = true

	outcome := domain.Succeeded()
	notification, err := interpret(store, event.Payload)
	if err == nil && notification != nil {
		result.Notified, err = p.notifier.SendToStoreSubscribers(ctx, store.ID, *notification)
	}
	if err != nil {
		outcome = domain.FailedWith(err)
		logger.Error("Webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("topic", string(event.Topic)),
			zap.String("store_id", store.ID),
			zap.Error(err),
		)
	}

	if ferr := p.finalize(ctx, event, outcome); ferr != nil {
		return nil, ferr
	}
	if outcome.Failed() {
		p.metrics.IncWebhookEvent(string(event.Topic), "failed")
		return nil, apperrors.Wrap(err, apperrors.CodeWebhookProcessingFailed, "webhook processing failed", http.StatusInternalServerError)
	}
	p.metrics.IncWebhookEvent(string(event.Topic), "processed")
	logger.Info("Webhook processed",
		zap.String("event_id", event.ID),
		zap.String("topic", string(event.Topic)),
		zap.Int("notified", result.Notified),
	)
	return result, nil
}

func (p *Pipeline) finalize(ctx context.Context, event *domain.InboundEvent, outcome domain.Outcome) error {
	if err := p.events.FinalizeEvent(ctx, event.ID, outcome); err != nil {
		logger.Error("Failed to finalize webhook event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return apperrors.ErrPersistence(err, "finalize webhook event")
	}
	event.Processed = true
	event.Error = outcome.ErrorText()
	return nil
}

// parsePayload accepts a JSON object and returns a private copy of it.
func parsePayload(body []byte) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if obj == nil {
		return nil, errors.New("invalid JSON payload: null")
	}
	return json.RawMessage(append([]byte(nil), body...)), nil
}
