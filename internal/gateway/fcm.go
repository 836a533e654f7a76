package gateway

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/imc400/shopify-market-place/internal/config"
	"github.com/imc400/shopify-market-place/internal/domain"
)

// Platform decorations applied to every message.
const (
	androidIcon  = "ic_notification"
	androidColor = "#6366f1"
	defaultSound = "default"
	apnsBadge    = 1
)

// messagingAPI is the subset of *messaging.Client used here.
type messagingAPI interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// FCM is the Firebase Cloud Messaging implementation of Client.
type FCM struct {
	api messagingAPI
}

var _ Client = (*FCM)(nil)

// NewFCM creates a Firebase app from the configured credentials.
// Without credentials, application default credentials are used.
func NewFCM(ctx context.Context, cfg config.FirebaseConfig) (*FCM, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCM{api: client}, nil
}

// Send implements Client.
func (f *FCM) Send(ctx context.Context, token string, p domain.NotificationPayload) (string, error) {
	msg := buildMessage(p)
	msg.Token = token
	id, err := f.api.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("fcm send: %w", err)
	}
	return id, nil
}

// SendMulticast implements Client.
func (f *FCM) SendMulticast(ctx context.Context, tokens []string, p domain.NotificationPayload) (*BatchResult, error) {
	base := buildMessage(p)
	resp, err := f.api.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: base.Notification,
		Data:         base.Data,
		Android:      base.Android,
		APNS:         base.APNS,
	})
	if err != nil {
		return nil, fmt.Errorf("fcm multicast: %w", err)
	}

	out := &BatchResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Results:      make([]TokenResult, len(tokens)),
	}
	for i, token := range tokens {
		out.Results[i].Token = token
		if i >= len(resp.Responses) || resp.Responses[i] == nil {
			out.Results[i].Err = fmt.Errorf("no response for token")
			continue
		}
		r := resp.Responses[i]
		if r.Success {
			out.Results[i].MessageID = r.MessageID
			continue
		}
		out.Results[i].Err = r.Error
		if out.Results[i].Err == nil {
			out.Results[i].Err = fmt.Errorf("rejected by gateway")
		}
	}
	return out, nil
}

// SendToTopic implements Client.
func (f *FCM) SendToTopic(ctx context.Context, topic string, p domain.NotificationPayload) (string, error) {
	msg := buildMessage(p)
	msg.Topic = topic
	id, err := f.api.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("fcm send to topic %q: %w", topic, err)
	}
	return id, nil
}

// SubscribeToTopic implements Client.
func (f *FCM) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	resp, err := f.api.SubscribeToTopic(ctx, tokens, topic)
	return topicResult("subscribe", topic, resp, err)
}

// UnsubscribeFromTopic implements Client.
func (f *FCM) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) error {
	resp, err := f.api.UnsubscribeFromTopic(ctx, tokens, topic)
	return topicResult("unsubscribe", topic, resp, err)
}

func topicResult(op, topic string, resp *messaging.TopicManagementResponse, err error) error {
	if err != nil {
		return fmt.Errorf("fcm %s topic %q: %w", op, topic, err)
	}
	if resp != nil && resp.FailureCount > 0 {
		reason := "unknown"
		if len(resp.Errors) > 0 && resp.Errors[0] != nil {
			reason = resp.Errors[0].Reason
		}
		return fmt.Errorf("fcm %s topic %q: %d token(s) failed: %s", op, topic, resp.FailureCount, reason)
	}
	return nil
}

func buildMessage(p domain.NotificationPayload) *messaging.Message {
	data := p.Data
	if data == nil {
		data = map[string]string{}
	}
	badge := apnsBadge
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.ImageURL,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Icon:  androidIcon,
				Color: androidColor,
				Sound: defaultSound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Badge: &badge,
					Sound: defaultSound,
				},
			},
		},
	}
}

// IsStaleToken reports whether a per-token error means the device token is
// no longer registered with the gateway.
func IsStaleToken(err error) bool {
	return err != nil && messaging.IsUnregistered(err)
}
