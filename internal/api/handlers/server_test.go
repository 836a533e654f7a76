package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imc400/shopify-market-place/internal/api/middleware"
	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

const (
	testUser  = "0191f1a2-7c3e-7a44-9b1d-3c1f8e2a9b01"
	testStore = "0191f1a2-7c3e-7a44-9b1d-3c1f8e2a9b02"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakePipeline struct {
	deliveries []webhook.Delivery
	replayed   []string
	err        error
}

func (f *fakePipeline) Ingest(_ context.Context, d webhook.Delivery) (*webhook.Result, error) {
	f.deliveries = append(f.deliveries, d)
	if f.err != nil {
		return nil, f.err
	}
	return &webhook.Result{EventID: "e1", Handled: true}, nil
}

func (f *fakePipeline) Replay(_ context.Context, id string) (*webhook.Result, error) {
	f.replayed = append(f.replayed, id)
	if f.err != nil {
		return nil, f.err
	}
	return &webhook.Result{EventID: id, Handled: true, Notified: 4}, nil
}

type fakeEvents struct {
	filters []domain.EventFilter
	events  []*domain.InboundEvent
}

func (f *fakeEvents) ListEvents(_ context.Context, filter domain.EventFilter) ([]*domain.InboundEvent, error) {
	f.filters = append(f.filters, filter)
	return f.events, nil
}

type fakeReplays struct {
	stores []string
}

func (f *fakeReplays) EnqueueFailed(_ context.Context, storeID string) (int, error) {
	f.stores = append(f.stores, storeID)
	return 3, nil
}

type fakeNotifier struct {
	storeCalls  []string
	userCalls   [][]string
	topicCalls  []string
	payloads    []domain.NotificationPayload
	records     map[string]*domain.DeliveryRecord
	clicked     []string
	historyArgs []int
}

func (f *fakeNotifier) SendToStoreSubscribers(_ context.Context, storeID string, p domain.NotificationPayload) (int, error) {
	f.storeCalls = append(f.storeCalls, storeID)
	f.payloads = append(f.payloads, p)
	return 5, nil
}

func (f *fakeNotifier) SendToMultipleUsers(_ context.Context, ids []string, p domain.NotificationPayload) (int, error) {
	f.userCalls = append(f.userCalls, ids)
	f.payloads = append(f.payloads, p)
	return len(ids), nil
}

func (f *fakeNotifier) SendToTopic(_ context.Context, topic string, p domain.NotificationPayload) bool {
	f.topicCalls = append(f.topicCalls, topic)
	f.payloads = append(f.payloads, p)
	return true
}

func (f *fakeNotifier) SubscribeUserToTopic(_ context.Context, _, topic string) bool {
	f.topicCalls = append(f.topicCalls, "+"+topic)
	return true
}

func (f *fakeNotifier) UnsubscribeUserFromTopic(_ context.Context, _, topic string) bool {
	f.topicCalls = append(f.topicCalls, "-"+topic)
	return true
}

func (f *fakeNotifier) MarkNotificationAsClicked(_ context.Context, id string) bool {
	f.clicked = append(f.clicked, id)
	return true
}

func (f *fakeNotifier) Delivery(_ context.Context, id string) (*domain.DeliveryRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeNotifier) History(_ context.Context, _ string, limit int) ([]*domain.DeliveryRecord, error) {
	f.historyArgs = append(f.historyArgs, limit)
	return []*domain.DeliveryRecord{{ID: "n1", UserID: testUser, Title: "t", Status: domain.DeliveryStatusSent}}, nil
}

type fakeStores struct{}

func (fakeStores) ActiveStoreByID(_ context.Context, id string) (*domain.Store, error) {
	if id != testStore {
		return nil, domain.ErrNotFound
	}
	return &domain.Store{ID: testStore, Name: "Tienda Sur", ShopifyDomain: "tienda-sur.myshopify.com", IsActive: true}, nil
}

type fakeSubscriptions struct {
	pairs map[string]bool
}

func (f *fakeSubscriptions) Subscribe(_ context.Context, userID, storeID string) (string, error) {
	key := userID + "/" + storeID
	if f.pairs[key] {
		return "", domain.ErrAlreadySubscribed
	}
	f.pairs[key] = true
	return "sub-1", nil
}

func (f *fakeSubscriptions) ActiveStoreIDs(_ context.Context, userID string) ([]string, error) {
	var ids []string
	for key := range f.pairs {
		if strings.HasPrefix(key, userID+"/") {
			ids = append(ids, strings.TrimPrefix(key, userID+"/"))
		}
	}
	return ids, nil
}

func (f *fakeSubscriptions) Unsubscribe(_ context.Context, userID, storeID string) error {
	key := userID + "/" + storeID
	if !f.pairs[key] {
		return domain.ErrNotSubscribed
	}
	delete(f.pairs, key)
	return nil
}

type fakeDevices struct {
	tokens map[string]string
}

func (f *fakeDevices) SetDeviceToken(_ context.Context, userID, token string) error {
	if userID != testUser {
		return domain.ErrNotFound
	}
	f.tokens[userID] = token
	return nil
}

type fakePromotions struct {
	created []*domain.Promotion
	now     time.Time
}

func (f *fakePromotions) CreatePromotion(_ context.Context, p *domain.Promotion) error {
	p.ID = "promo-1"
	p.IsActive = true
	p.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.created = append(f.created, p)
	return nil
}

func (f *fakePromotions) ListPromotionsForUser(_ context.Context, _ string, now time.Time, limit int) ([]*domain.Promotion, error) {
	f.now = now
	if limit != maxPromotions {
		return nil, errors.New("unexpected limit")
	}
	return f.created, nil
}

type fixture struct {
	server     *Server
	router     *gin.Engine
	pipeline   *fakePipeline
	events     *fakeEvents
	replays    *fakeReplays
	notifier   *fakeNotifier
	subs       *fakeSubscriptions
	devices    *fakeDevices
	promotions *fakePromotions
}

func newFixture() *fixture {
	f := &fixture{
		pipeline:   &fakePipeline{},
		events:     &fakeEvents{},
		replays:    &fakeReplays{},
		notifier:   &fakeNotifier{records: map[string]*domain.DeliveryRecord{}},
		subs:       &fakeSubscriptions{pairs: map[string]bool{}},
		devices:    &fakeDevices{tokens: map[string]string{}},
		promotions: &fakePromotions{},
	}
	f.server = NewServer(ServerDeps{
		DB:            fakePinger{},
		Pipeline:      f.pipeline,
		Events:        f.events,
		Replays:       f.replays,
		Notifier:      f.notifier,
		Stores:        fakeStores{},
		Subscriptions: f.subs,
		Devices:       f.devices,
		Promotions:    f.promotions,
		MaxBodyBytes:  1024,
	})
	f.server.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.POST("/webhooks/shopify", f.server.ReceiveShopifyWebhook)

	authed := r.Group("/", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Request = c.Request.WithContext(middleware.SetUserContext(c.Request.Context(), uid, uid+"@example.com"))
		}
		c.Next()
	})
	authed.GET("/webhooks/logs/:storeId", f.server.ListWebhookLogs)
	authed.POST("/webhooks/retry/:eventId", f.server.RetryWebhook)
	authed.POST("/webhooks/replay-failed", f.server.ReplayFailedWebhooks)
	authed.POST("/notifications/send", f.server.SendNotification)
	authed.POST("/notifications/topics/:topic/send", f.server.SendTopicNotification)
	authed.GET("/notifications/history", f.server.GetNotificationHistory)
	authed.PUT("/notifications/:notificationId/clicked", f.server.MarkNotificationClicked)
	authed.POST("/notifications/promotions", f.server.CreatePromotion)
	authed.GET("/notifications/promotions", f.server.ListPromotions)
	authed.POST("/stores/:storeId/subscription", f.server.SubscribeToStore)
	authed.DELETE("/stores/:storeId/subscription", f.server.UnsubscribeFromStore)
	authed.GET("/me/subscriptions", f.server.ListSubscriptions)
	authed.PUT("/me/device-token", f.server.SetDeviceToken)
	authed.POST("/me/topics/:topic", f.server.SubscribeToTopic)
	authed.DELETE("/me/topics/:topic", f.server.UnsubscribeFromTopic)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) asUser(method, path, body string) *httptest.ResponseRecorder {
	return f.do(method, path, body, map[string]string{"X-Test-User": testUser})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := NewServer(ServerDeps{DB: fakePinger{}})
	r := gin.New()
	r.GET("/live", s.GetLiveness)
	r.GET("/ready", s.GetReadiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewServer(ServerDeps{DB: fakePinger{err: errors.New("refused")}})
	r2 := gin.New()
	r2.GET("/ready", down.GetReadiness)
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestReceiveShopifyWebhook(t *testing.T) {
	f := newFixture()
	body := `{"id":1}`
	w := f.do(http.MethodPost, "/webhooks/shopify", body, map[string]string{
		webhook.HeaderHmac:      "sig",
		webhook.HeaderShop:      "tienda-sur.myshopify.com",
		webhook.HeaderTopic:     "products/update",
		webhook.HeaderWebhookID: "wh-1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	require.Len(t, f.pipeline.deliveries, 1)
	d := f.pipeline.deliveries[0]
	assert.Equal(t, []byte(body), d.Body)
	assert.Equal(t, "sig", d.Signature)
	assert.Equal(t, "products/update", d.Topic)
	assert.Equal(t, "wh-1", d.WebhookID)
}

func TestReceiveShopifyWebhook_Errors(t *testing.T) {
	t.Run("pipeline rejection keeps its status", func(t *testing.T) {
		f := newFixture()
		f.pipeline.err = apperrors.Unauthorized(apperrors.CodeWebhookSignatureInvalid, "invalid webhook signature")
		w := f.do(http.MethodPost, "/webhooks/shopify", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperrors.CodeWebhookSignatureInvalid, decode(t, w)["code"])
	})

	t.Run("oversized body", func(t *testing.T) {
		f := newFixture()
		w := f.do(http.MethodPost, "/webhooks/shopify", `{"x":"`+strings.Repeat("a", 2048)+`"}`, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Empty(t, f.pipeline.deliveries)
	})
}

func TestListWebhookLogs(t *testing.T) {
	f := newFixture()
	msg := "boom"
	f.events.events = []*domain.InboundEvent{{
		ID: "e1", StoreID: testStore, Topic: domain.TopicProductsUpdate,
		Processed: true, Error: &msg, StoreName: "Tienda Sur", StoreDomain: "tienda-sur.myshopify.com",
	}}

	w := f.asUser(http.MethodGet, "/webhooks/logs/"+testStore+"?limit=500&processed=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.events.filters, 1)
	filter := f.events.filters[0]
	assert.Equal(t, testStore, filter.StoreID)
	assert.Equal(t, maxLogLimit, filter.Limit)
	require.NotNil(t, filter.Processed)
	assert.True(t, *filter.Processed)

	logs := decode(t, w)["logs"].([]any)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Equal(t, string(domain.EventStateFailed), entry["state"])
	assert.Equal(t, "Tienda Sur", entry["store"].(map[string]any)["name"])

	f.asUser(http.MethodGet, "/webhooks/logs/"+testStore+"?processed=maybe", "")
	assert.Equal(t, defaultLogLimit, f.events.filters[1].Limit)
	assert.Nil(t, f.events.filters[1].Processed)
}

func TestRetryWebhook(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPost, "/webhooks/retry/e9", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Webhook processed successfully", body["message"])
	assert.Equal(t, []string{"e9"}, f.pipeline.replayed)

	f.pipeline.err = apperrors.ErrEventNotFound()
	w = f.asUser(http.MethodPost, "/webhooks/retry/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplayFailedWebhooks(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPost, "/webhooks/replay-failed", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.asUser(http.MethodPost, "/webhooks/replay-failed?storeId="+testStore, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["enqueued"])
	assert.Equal(t, []string{testStore}, f.replays.stores)
}

func TestSendNotification(t *testing.T) {
	t.Run("to store", func(t *testing.T) {
		f := newFixture()
		w := f.asUser(http.MethodPost, "/notifications/send", `{"title":"Hola","body":"Mundo","storeId":"`+testStore+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Notification sent to 5 users", body["message"])
		assert.Equal(t, float64(5), body["sentCount"])
		assert.Equal(t, []string{testStore}, f.notifier.storeCalls)
	})

	t.Run("to users", func(t *testing.T) {
		f := newFixture()
		w := f.asUser(http.MethodPost, "/notifications/send", `{"title":"Hola","body":"Mundo","userIds":["`+testUser+`"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, [][]string{{testUser}}, f.notifier.userCalls)
	})

	t.Run("no target", func(t *testing.T) {
		f := newFixture()
		w := f.asUser(http.MethodPost, "/notifications/send", `{"title":"Hola","body":"Mundo"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Either storeId or userIds must be provided", decode(t, w)["message"])
	})

	t.Run("unknown store", func(t *testing.T) {
		f := newFixture()
		w := f.asUser(http.MethodPost, "/notifications/send", `{"title":"Hola","body":"Mundo","storeId":"0191f1a2-7c3e-7a44-9b1d-3c1f8e2a9bff"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, f.notifier.storeCalls)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture()
		w := f.asUser(http.MethodPost, "/notifications/send", `{"title":"`+strings.Repeat("x", 101)+`","body":"b","storeId":"`+testStore+`"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, apperrors.CodeValidationFailed, body["code"])
		fields := body["field_errors"].([]any)
		require.Len(t, fields, 1)
		assert.Equal(t, "title", fields[0].(map[string]any)["field"])
		assert.Equal(t, "max", fields[0].(map[string]any)["code"])
	})
}

func TestSendTopicNotification(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPost, "/notifications/topics/ofertas/send", `{"title":"Hola","body":"Mundo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ofertas"}, f.notifier.topicCalls)

	w = f.asUser(http.MethodPost, "/notifications/topics/bad$topic/send", `{"title":"Hola","body":"Mundo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHistory(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodGet, "/notifications/history?limit=7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{7}, f.notifier.historyArgs)
	assert.Len(t, decode(t, w)["notifications"], 1)

	w = f.do(http.MethodGet, "/notifications/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMarkNotificationClicked(t *testing.T) {
	f := newFixture()
	f.notifier.records["mine"] = &domain.DeliveryRecord{ID: "mine", UserID: testUser}
	f.notifier.records["theirs"] = &domain.DeliveryRecord{ID: "theirs", UserID: "someone-else"}

	w := f.asUser(http.MethodPut, "/notifications/missing/clicked", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Notification not found", decode(t, w)["message"])

	w = f.asUser(http.MethodPut, "/notifications/theirs/clicked", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.asUser(http.MethodPut, "/notifications/mine/clicked", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Notification marked as clicked", decode(t, w)["message"])
	assert.Equal(t, []string{"mine"}, f.notifier.clicked)
}

func TestCreatePromotion(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPost, "/notifications/promotions", `{
		"title":"2x1 en poleras",
		"description":"Solo este fin de semana",
		"image":"https://cdn.example.com/p.png",
		"discountCode":"POLERA2X1",
		"storeId":"`+testStore+`",
		"sendNotification":true
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Promotion created successfully", body["message"])
	assert.Equal(t, "promo-1", body["promotion"].(map[string]any)["id"])

	require.Len(t, f.notifier.payloads, 1)
	p := f.notifier.payloads[0]
	assert.Equal(t, "🎉 Nueva oferta en Tienda Sur", p.Title)
	assert.Equal(t, "2x1 en poleras - Código: POLERA2X1", p.Body)
	assert.Equal(t, "https://cdn.example.com/p.png", p.ImageURL)
	assert.Equal(t, map[string]string{
		"type":        webhook.DataTypePromotion,
		"promotionId": "promo-1",
		"storeId":     testStore,
	}, p.Data)
}

func TestCreatePromotion_WithoutNotification(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPost, "/notifications/promotions", `{"title":"t","description":"d","storeId":"`+testStore+`"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, f.notifier.payloads)
	assert.Len(t, f.promotions.created, 1)
}

func TestListPromotions(t *testing.T) {
	f := newFixture()
	f.promotions.created = []*domain.Promotion{{ID: "p1", StoreID: testStore, Title: "t"}}

	w := f.asUser(http.MethodGet, "/notifications/promotions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["promotions"], 1)
	assert.Equal(t, f.server.now(), f.promotions.now)
}

func TestStoreSubscription(t *testing.T) {
	f := newFixture()
	path := "/stores/" + testStore + "/subscription"

	w := f.asUser(http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully subscribed to store", decode(t, w)["message"])

	w = f.asUser(http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperrors.CodeAlreadySubscribed, body["code"])
	assert.Equal(t, "Already subscribed to this store", body["message"])

	w = f.asUser(http.MethodGet, "/me/subscriptions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{testStore}, decode(t, w)["storeIds"])

	w = f.asUser(http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully unsubscribed from store", decode(t, w)["message"])

	w = f.asUser(http.MethodGet, "/me/subscriptions", "")
	assert.Equal(t, []any{}, decode(t, w)["storeIds"])

	w = f.asUser(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeNotSubscribed, decode(t, w)["code"])

	w = f.asUser(http.MethodPost, "/stores/0191f1a2-7c3e-7a44-9b1d-3c1f8e2a9bff/subscription", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceToken(t *testing.T) {
	f := newFixture()
	w := f.asUser(http.MethodPut, "/me/device-token", `{"token":"fcm-token-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fcm-token-1", f.devices.tokens[testUser])

	w = f.asUser(http.MethodPut, "/me/device-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/me/device-token", `{"token":"x"}`, map[string]string{"X-Test-User": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeUserNotFound, decode(t, w)["code"])
}

func TestTopicMembership(t *testing.T) {
	f := newFixture()
	require.Equal(t, http.StatusOK, f.asUser(http.MethodPost, "/me/topics/ofertas", "").Code)
	require.Equal(t, http.StatusOK, f.asUser(http.MethodDelete, "/me/topics/ofertas", "").Code)
	assert.Equal(t, []string{"+ofertas", "-ofertas"}, f.notifier.topicCalls)
}

func TestValidTopic(t *testing.T) {
	assert.True(t, validTopic("store-updates_2026.v1"))
	assert.False(t, validTopic(""))
	assert.False(t, validTopic("a b"))
	assert.False(t, validTopic(strings.Repeat("a", 901)))
}
