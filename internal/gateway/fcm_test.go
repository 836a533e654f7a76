package gateway

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imc400/shopify-market-place/internal/domain"
)

type fakeMessaging struct {
	sent      []*messaging.Message
	multicast []*messaging.MulticastMessage
	batch     *messaging.BatchResponse
	topicResp *messaging.TopicManagementResponse
	err       error
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	if f.err != nil {
		return "", f.err
	}
	return "projects/p/messages/1", nil
}

func (f *fakeMessaging) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.multicast = append(f.multicast, m)
	return f.batch, f.err
}

func (f *fakeMessaging) SubscribeToTopic(context.Context, []string, string) (*messaging.TopicManagementResponse, error) {
	return f.topicResp, f.err
}

func (f *fakeMessaging) UnsubscribeFromTopic(context.Context, []string, string) (*messaging.TopicManagementResponse, error) {
	return f.topicResp, f.err
}

var payload = domain.NotificationPayload{
	Title:    "⚠️ Stock limitado - Tienda",
	Body:     "Quedan solo 3 unidades disponibles",
	Data:     map[string]string{"type": "low_stock"},
	ImageURL: "https://cdn.example.com/p.png",
}

func TestFCM_SendDecoratesMessage(t *testing.T) {
	api := &fakeMessaging{}
	f := &FCM{api: api}

	id, err := f.Send(context.Background(), "T1", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, api.sent, 1)
	m := api.sent[0]
	assert.Equal(t, "T1", m.Token)
	assert.Equal(t, payload.Title, m.Notification.Title)
	assert.Equal(t, payload.ImageURL, m.Notification.ImageURL)
	assert.Equal(t, "ic_notification", m.Android.Notification.Icon)
	assert.Equal(t, "#6366f1", m.Android.Notification.Color)
	assert.Equal(t, "default", m.Android.Notification.Sound)
	require.NotNil(t, m.APNS.Payload.Aps.Badge)
	assert.Equal(t, 1, *m.APNS.Payload.Aps.Badge)
}

func TestFCM_SendToTopic(t *testing.T) {
	api := &fakeMessaging{}
	f := &FCM{api: api}

	_, err := f.SendToTopic(context.Background(), "ofertas", domain.NotificationPayload{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "ofertas", api.sent[0].Topic)
	assert.NotNil(t, api.sent[0].Data, "nil data becomes an empty map")
}

func TestFCM_SendMulticastMapsPerTokenResults(t *testing.T) {
	rejected := errors.New("registration token not registered")
	api := &fakeMessaging{batch: &messaging.BatchResponse{
		SuccessCount: 1,
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "m1"},
			{Success: false, Error: rejected},
		},
	}}
	f := &FCM{api: api}

	res, err := f.SendMulticast(context.Background(), []string{"T1", "T2"}, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, []string{"T1", "T2"}, api.multicast[0].Tokens)
	assert.Equal(t, "m1", res.Results[0].MessageID)
	assert.NoError(t, res.Results[0].Err)
	assert.ErrorIs(t, res.Results[1].Err, rejected)
	assert.Equal(t, "T2", res.Results[1].Token)
}

func TestFCM_SendMulticastCallFailure(t *testing.T) {
	api := &fakeMessaging{err: errors.New("unavailable")}
	f := &FCM{api: api}

	res, err := f.SendMulticast(context.Background(), []string{"T1"}, payload)
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestFCM_TopicManagementFailureCount(t *testing.T) {
	api := &fakeMessaging{topicResp: &messaging.TopicManagementResponse{
		FailureCount: 1,
		Errors:       []*messaging.ErrorInfo{{Index: 0, Reason: "invalid-argument"}},
	}}
	f := &FCM{api: api}

	err := f.SubscribeToTopic(context.Background(), []string{"bad"}, "ofertas")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-argument")

	api.topicResp = &messaging.TopicManagementResponse{SuccessCount: 1}
	assert.NoError(t, f.UnsubscribeFromTopic(context.Background(), []string{"T1"}, "ofertas"))
}

func TestDisabled(t *testing.T) {
	var c Client = Disabled{}
	_, err := c.SendMulticast(context.Background(), []string{"T1"}, payload)
	assert.ErrorIs(t, err, ErrDisabled)
}
