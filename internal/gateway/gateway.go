// Package gateway is the client for the external push delivery service.
package gateway

import (
	"context"
	"errors"

	"github.com/imc400/shopify-market-place/internal/domain"
)

// ErrDisabled is returned by the disabled client for every call.
var ErrDisabled = errors.New("push gateway is not configured")

// TokenResult is the gateway's verdict for one token of a multicast call.
type TokenResult struct {
	Token     string
	MessageID string
	Err       error
}

// BatchResult is the outcome of a multicast call that returned normally.
// Results is index-aligned with the tokens passed in.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []TokenResult
}

// Client sends notifications through the push gateway.
type Client interface {
	// Send delivers to one device token and returns the gateway message id.
	Send(ctx context.Context, token string, p domain.NotificationPayload) (string, error)
	// SendMulticast delivers to up to 500 tokens in one call. An error means
	// the call as a whole failed; per-token failures are reported in the result.
	SendMulticast(ctx context.Context, tokens []string, p domain.NotificationPayload) (*BatchResult, error)
	// SendToTopic delivers to every device subscribed to topic.
	SendToTopic(ctx context.Context, topic string, p domain.NotificationPayload) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error
}

// Disabled is used when no gateway credentials are configured.
type Disabled struct{}

var _ Client = Disabled{}

func (Disabled) Send(context.Context, string, domain.NotificationPayload) (string, error) {
	return "", ErrDisabled
}

func (Disabled) SendMulticast(context.Context, []string, domain.NotificationPayload) (*BatchResult, error) {
	return nil, ErrDisabled
}

func (Disabled) SendToTopic(context.Context, string, domain.NotificationPayload) (string, error) {
	return "", ErrDisabled
}

func (Disabled) SubscribeToTopic(context.Context, []string, string) error { return ErrDisabled }

func (Disabled) UnsubscribeFromTopic(context.Context, []string, string) error { return ErrDisabled }
