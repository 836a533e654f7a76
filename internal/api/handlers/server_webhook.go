package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/notification"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

// Webhook log listing bounds.
const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// ReceiveShopifyWebhook handles POST /api/v1/webhooks/shopify.
// The body is read verbatim; the signature covers the exact bytes.
func (s *Server) ReceiveShopifyWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(apperrors.New(apperrors.CodeInvalidPayload, "webhook body too large", http.StatusRequestEntityTooLarge))
			return
		}
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeInvalidPayload, "read webhook body", http.StatusBadRequest))
		return
	}

	_, err = s.pipeline.Ingest(c.Request.Context(), webhook.Delivery{
		Body:       body,
		Signature:  c.GetHeader(webhook.HeaderHmac),
		ShopDomain: c.GetHeader(webhook.HeaderShop),
		Topic:      c.GetHeader(webhook.HeaderTopic),
		WebhookID:  c.GetHeader(webhook.HeaderWebhookID),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListWebhookLogs handles GET /api/v1/webhooks/logs/:storeId.
func (s *Server) ListWebhookLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	filter := domain.EventFilter{
		StoreID: c.Param("storeId"),
		Limit:   notification.ClampLimit(limit, defaultLogLimit, maxLogLimit),
	}
	switch c.Query("processed") {
	case "true":
		v := true
		filter.Processed = &v
	case "false":
		v := false
		filter.Processed = &v
	}

	events, err := s.events.ListEvents(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "list webhook logs"))
		return
	}

	logs := make([]webhookLogResponse, 0, len(events))
	for _, e := range events {
		logs = append(logs, webhookLogToAPI(e))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"logs":    logs,
	})
}

// RetryWebhook handles POST /api/v1/webhooks/retry/:eventId.
func (s *Server) RetryWebhook(c *gin.Context) {
	res, err := s.pipeline.Replay(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Webhook processed successfully",
		"notified": res.Notified,
	})
}

// ReplayFailedWebhooks handles POST /api/v1/webhooks/replay-failed?storeId=.
func (s *Server) ReplayFailedWebhooks(c *gin.Context) {
	storeID := c.Query("storeId")
	if storeID == "" {
		_ = c.Error(apperrors.ErrValidation("storeId is required",
			apperrors.FieldError{Field: "storeId", Code: "required"}))
		return
	}
	if s.replays == nil {
		_ = c.Error(apperrors.New(apperrors.CodeInternal, "bulk replay is not available", http.StatusServiceUnavailable))
		return
	}

	n, err := s.replays.EnqueueFailed(c.Request.Context(), storeID)
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "enqueue replay jobs"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"enqueued": n,
	})
}
