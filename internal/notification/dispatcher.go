// Package notification fans notification payloads out to device tokens
// through the push gateway and keeps the per-recipient delivery record trail.
//
// Gateway failures never leave the dispatcher as errors: they become FAILED
// delivery records and a reduced success count. Errors returned by the
// dispatcher are directory or persistence failures.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/gateway"
	"github.com/imc400/shopify-market-place/internal/metrics"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
	"github.com/imc400/shopify-market-place/internal/pkg/worker"
)

// History bounds.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 50
)

// Defaults applied when Config fields are zero.
const (
	DefaultBatchSize   = 500
	DefaultSendTimeout = 10 * time.Second
)

// RecipientDirectory resolves device tokens.
type RecipientDirectory interface {
	ActiveSubscriberTokens(ctx context.Context, storeID string) ([]domain.Recipient, error)
	Tokens(ctx context.Context, userIDs []string) ([]domain.Recipient, error)
	Token(ctx context.Context, userID string) (string, error)
}

// DeliveryStore persists delivery records.
type DeliveryStore interface {
	InsertDeliveries(ctx context.Context, records []domain.DeliveryRecord) error
	GetDelivery(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	ListDeliveriesForUser(ctx context.Context, userID string, limit int) ([]*domain.DeliveryRecord, error)
	MarkDeliveryClicked(ctx context.Context, id string, at time.Time) error
}

// TaskRunner runs gateway batches concurrently. *worker.Pool satisfies it.
type TaskRunner interface {
	RunAll(ctx context.Context, tasks ...worker.ErrTask) []error
}

// Config tunes batching.
type Config struct {
	// BatchSize is the maximum number of tokens per multicast call.
	BatchSize int
	// SendTimeout bounds each gateway call. Expiry counts as a failed call.
	SendTimeout time.Duration
}

// Dispatcher is the fan-out component.
type Dispatcher struct {
	directory RecipientDirectory
	store     DeliveryStore
	gateway   gateway.Client
	runner    TaskRunner
	cfg       Config
	metrics   *metrics.Metrics
	now       func() time.Time
	isStale   func(error) bool
	onStale   func([]domain.Recipient)
}

// OnStaleTokens registers a callback receiving the recipients whose tokens
// the gateway reported as unregistered. It runs after delivery records are
// written and must not block.
func (d *Dispatcher) OnStaleTokens(fn func([]domain.Recipient)) {
	d.onStale = fn
}

// NewDispatcher creates a Dispatcher. runner may be nil, in which case
// batches are sent one after another on the calling goroutine.
func NewDispatcher(
	directory RecipientDirectory,
	store DeliveryStore,
	gw gateway.Client,
	runner TaskRunner,
	cfg Config,
	m *metrics.Metrics,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		directory: directory,
		store:     store,
		gateway:   gw,
		runner:    runner,
		cfg:       cfg,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		isStale:   gateway.IsStaleToken,
	}
}

// SendToStoreSubscribers notifies every active subscriber of storeID that has
// a device token. Returns the gateway's per-token success count.
func (d *Dispatcher) SendToStoreSubscribers(ctx context.Context, storeID string, p domain.NotificationPayload) (int, error) {
	recipients, err := d.directory.ActiveSubscriberTokens(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("resolve subscribers: %w", err)
	}
	if len(recipients) == 0 {
		logger.Warn("No subscribers with device tokens",
			zap.String("store_id", storeID),
		)
		return 0, nil
	}
	return d.sendToRecipients(ctx, recipients, p)
}

// SendToMultipleUsers notifies the given users, skipping those without a
// device token. Returns the gateway's per-token success count.
func (d *Dispatcher) SendToMultipleUsers(ctx context.Context, userIDs []string, p domain.NotificationPayload) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	recipients, err := d.directory.Tokens(ctx, userIDs)
	if err != nil {
		return 0, fmt.Errorf("resolve user tokens: %w", err)
	}
	if len(recipients) == 0 {
		logger.Warn("No users with device tokens", zap.Int("requested", len(userIDs)))
		return 0, nil
	}
	return d.sendToRecipients(ctx, recipients, p)
}

type chunkResult struct {
	recipients []domain.Recipient
	result     *gateway.BatchResult
}

// sendToRecipients writes exactly one delivery record per recipient:
// FAILED for every recipient of a batch whose call failed or timed out,
// SENT otherwise, with per-token rejections noted on the record.
func (d *Dispatcher) sendToRecipients(ctx context.Context, recipients []domain.Recipient, p domain.NotificationPayload) (int, error) {
	chunks := make([]chunkResult, 0, (len(recipients)+d.cfg.BatchSize-1)/d.cfg.BatchSize)
	for start := 0; start < len(recipients); start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, len(recipients))
		chunks = append(chunks, chunkResult{recipients: recipients[start:end]})
	}

	tasks := make([]worker.ErrTask, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		tasks[i] = func(ctx context.Context) error {
			tokens := make([]string, len(c.recipients))
			for j, r := range c.recipients {
				tokens[j] = r.Token
			}

			callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
			defer cancel()

			start := time.Now()
			res, err := d.gateway.SendMulticast(callCtx, tokens, p)
			d.metrics.ObserveGatewayCall("multicast", time.Since(start))
			if err != nil {
				return err
			}
			if res == nil {
				return errors.New("gateway returned no result")
			}
			c.result = res
			return nil
		}
	}
	errs := d.run(ctx, tasks)

	at := d.now()
	records := make([]domain.DeliveryRecord, 0, len(recipients))
	var stale []domain.Recipient
	success := 0
	for i, c := range chunks {
		if errs[i] != nil {
			logger.Error("Push gateway batch failed",
				zap.Int("batch", i),
				zap.Int("tokens", len(c.recipients)),
				zap.Error(errs[i]),
			)
			for _, r := range c.recipients {
				records = append(records, domain.NewDeliveryRecord(r.UserID, p, domain.DeliveryStatusFailed, at))
			}
			continue
		}

		success += c.result.SuccessCount
		for j, r := range c.recipients {
			rec := domain.NewDeliveryRecord(r.UserID, p, domain.DeliveryStatusSent, at)
			if j < len(c.result.Results) && c.result.Results[j].Err != nil {
				tokenErr := c.result.Results[j].Err
				reason := tokenErr.Error()
				rec.GatewayError = &reason
				result := "rejected"
				if d.isStale(tokenErr) {
					result = "stale"
					stale = append(stale, r)
				}
				d.metrics.AddGatewayTokens(result, 1)
				logger.Warn("Push gateway rejected token",
					zap.String("user_id", r.UserID),
					zap.String("result", result),
					zap.Error(tokenErr),
				)
			}
			records = append(records, rec)
		}
		d.metrics.AddGatewayTokens("accepted", c.result.SuccessCount)
	}

	if err := d.store.InsertDeliveries(ctx, records); err != nil {
		return success, fmt.Errorf("record deliveries: %w", err)
	}
	d.countRecords(records)
	if len(stale) > 0 && d.onStale != nil {
		d.onStale(stale)
	}

	logger.Info("Notifications dispatched",
		zap.Int("recipients", len(recipients)),
		zap.Int("batches", len(chunks)),
		zap.Int("success", success),
	)
	return success, nil
}

func (d *Dispatcher) run(ctx context.Context, tasks []worker.ErrTask) []error {
	if d.runner != nil {
		return d.runner.RunAll(ctx, tasks...)
	}
	errs := make([]error, len(tasks))
	for i, task := range tasks {
		errs[i] = task(ctx)
	}
	return errs
}

func (d *Dispatcher) countRecords(records []domain.DeliveryRecord) {
	var sent, failed int
	for _, r := range records {
		if r.Status == domain.DeliveryStatusSent {
			sent++
		} else {
			failed++
		}
	}
	d.metrics.AddDeliveries(string(domain.DeliveryStatusSent), sent)
	d.metrics.AddDeliveries(string(domain.DeliveryStatusFailed), failed)
}

// SendToUser notifies a single user. It reports false without side effects
// when the user has no device token, and false with a FAILED record when the
// gateway call fails.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, p domain.NotificationPayload) (bool, error) {
	token, err := d.directory.Token(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("resolve user token: %w", err)
	}
	if token == "" {
		logger.Warn("User has no device token", zap.String("user_id", userID))
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	start := time.Now()
	msgID, sendErr := d.gateway.Send(callCtx, token, p)
	cancel()
	d.metrics.ObserveGatewayCall("single", time.Since(start))

	status := domain.DeliveryStatusSent
	if sendErr != nil {
		status = domain.DeliveryStatusFailed
		logger.Error("Push to user failed",
			zap.String("user_id", userID),
			zap.Error(sendErr),
		)
	}

	rec := domain.NewDeliveryRecord(userID, p, status, d.now())
	if err := d.store.InsertDeliveries(ctx, []domain.DeliveryRecord{rec}); err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	d.metrics.AddDeliveries(string(status), 1)

	if sendErr != nil {
		return false, nil
	}
	logger.Info("Push to user sent",
		zap.String("user_id", userID),
		zap.String("message_id", msgID),
	)
	return true, nil
}

// SendToTopic broadcasts to a gateway topic. No delivery records are written
// since the recipients are unknown.
func (d *Dispatcher) SendToTopic(ctx context.Context, topic string, p domain.NotificationPayload) bool {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	msgID, err := d.gateway.SendToTopic(callCtx, topic, p)
	d.metrics.ObserveGatewayCall("topic", time.Since(start))
	if err != nil {
		logger.Error("Topic notification failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	logger.Info("Topic notification sent", zap.String("topic", topic), zap.String("message_id", msgID))
	return true
}

// SubscribeUserToTopic subscribes the user's device token to a gateway topic.
// It returns false when the user has no token or the gateway refuses.
func (d *Dispatcher) SubscribeUserToTopic(ctx context.Context, userID, topic string) bool {
	return d.manageTopic(ctx, userID, topic, true)
}

// UnsubscribeUserFromTopic removes the user's device token from a gateway topic.
func (d *Dispatcher) UnsubscribeUserFromTopic(ctx context.Context, userID, topic string) bool {
	return d.manageTopic(ctx, userID, topic, false)
}

func (d *Dispatcher) manageTopic(ctx context.Context, userID, topic string, subscribe bool) bool {
	token, err := d.directory.Token(ctx, userID)
	if err != nil || token == "" {
		logger.Warn("Topic membership skipped: no device token",
			zap.String("user_id", userID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	if subscribe {
		err = d.gateway.SubscribeToTopic(callCtx, []string{token}, topic)
	} else {
		err = d.gateway.UnsubscribeFromTopic(callCtx, []string{token}, topic)
	}
	if err != nil {
		logger.Error("Topic membership change failed",
			zap.String("user_id", userID),
			zap.String("topic", topic),
			zap.Bool("subscribe", subscribe),
			zap.Error(err),
		)
		return false
	}
	return true
}

// MarkNotificationAsClicked transitions a delivery record to DELIVERED. It
// returns false, not an error, when the record is missing or the update fails.
func (d *Dispatcher) MarkNotificationAsClicked(ctx context.Context, notificationID string) bool {
	if err := d.store.MarkDeliveryClicked(ctx, notificationID, d.now()); err != nil {
		logger.Error("Mark notification clicked failed",
			zap.String("notification_id", notificationID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Delivery returns one delivery record, used for ownership checks.
func (d *Dispatcher) Delivery(ctx context.Context, notificationID string) (*domain.DeliveryRecord, error) {
	return d.store.GetDelivery(ctx, notificationID)
}

// History returns a user's delivery records newest first. limit <= 0 means
// the default; values above MaxHistoryLimit are capped.
func (d *Dispatcher) History(ctx context.Context, userID string, limit int) ([]*domain.DeliveryRecord, error) {
	return d.store.ListDeliveriesForUser(ctx, userID, ClampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit))
}

// ClampLimit applies a default to non-positive limits and caps the rest.
func ClampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
