package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/api/middleware"
	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

type sendNotificationRequest struct {
	Title    string            `json:"title" binding:"required,min=1,max=100"`
	Body     string            `json:"body" binding:"required,min=1,max=200"`
	Data     map[string]string `json:"data"`
	ImageURL string            `json:"imageUrl" binding:"omitempty,url"`
	StoreID  string            `json:"storeId" binding:"omitempty,uuid"`
	UserIDs  []string          `json:"userIds" binding:"omitempty,dive,uuid"`
}

func (r sendNotificationRequest) payload() domain.NotificationPayload {
	return domain.NotificationPayload{
		Title:    r.Title,
		Body:     r.Body,
		Data:     r.Data,
		ImageURL: r.ImageURL,
	}
}

// SendNotification handles POST /api/v1/notifications/send.
func (s *Server) SendNotification(c *gin.Context) {
	var req sendNotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var (
		sent int
		err  error
	)
	switch {
	case req.StoreID != "":
		if _, lookupErr := s.stores.ActiveStoreByID(ctx, req.StoreID); lookupErr != nil {
			_ = c.Error(storeErr(lookupErr))
			return
		}
		sent, err = s.notifier.SendToStoreSubscribers(ctx, req.StoreID, req.payload())
	case len(req.UserIDs) > 0:
		sent, err = s.notifier.SendToMultipleUsers(ctx, req.UserIDs, req.payload())
	default:
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "Either storeId or userIds must be provided"))
		return
	}
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "send notification"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   fmt.Sprintf("Notification sent to %d users", sent),
		"sentCount": sent,
	})
}

type topicNotificationRequest struct {
	Title    string            `json:"title" binding:"required,min=1,max=100"`
	Body     string            `json:"body" binding:"required,min=1,max=200"`
	Data     map[string]string `json:"data"`
	ImageURL string            `json:"imageUrl" binding:"omitempty,url"`
}

// SendTopicNotification handles POST /api/v1/notifications/topics/:topic/send.
func (s *Server) SendTopicNotification(c *gin.Context) {
	topic, ok := topicParam(c)
	if !ok {
		return
	}
	var req topicNotificationRequest
	if !bindJSON(c, &req) {
		return
	}

	sent := s.notifier.SendToTopic(c.Request.Context(), topic, domain.NotificationPayload{
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		ImageURL: req.ImageURL,
	})
	c.JSON(http.StatusOK, gin.H{"success": sent})
}

// GetNotificationHistory handles GET /api/v1/notifications/history.
func (s *Server) GetNotificationHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := s.notifier.History(c.Request.Context(), userID, limit)
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "load notification history"))
		return
	}

	items := make([]deliveryResponse, 0, len(records))
	for _, r := range records {
		items = append(items, deliveryToAPI(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": items,
	})
}

// MarkNotificationClicked handles PUT /api/v1/notifications/:notificationId/clicked.
func (s *Server) MarkNotificationClicked(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	notificationID := c.Param("notificationId")

	record, err := s.notifier.Delivery(ctx, notificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeNotificationNotFound, "Notification not found"))
			return
		}
		_ = c.Error(apperrors.ErrPersistence(err, "load notification"))
		return
	}
	if record.UserID != userID {
		logger.Warn("Notification click by non-owner",
			zap.String("notification_id", notificationID),
			zap.String("user_id", userID),
			zap.String("request_id", middleware.GetRequestID(ctx)),
		)
		_ = c.Error(apperrors.Forbidden(apperrors.CodeForbidden, "Unauthorized"))
		return
	}

	success := s.notifier.MarkNotificationAsClicked(ctx, notificationID)
	message := "Notification marked as clicked"
	if !success {
		message = "Failed to update notification"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": success,
		"message": message,
	})
}
