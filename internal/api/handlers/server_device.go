package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
)

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096"`
}

// SetDeviceToken handles PUT /api/v1/me/device-token.
func (s *Server) SetDeviceToken(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req deviceTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.devices.SetDeviceToken(c.Request.Context(), userID, req.Token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeUserNotFound, "user not found"))
			return
		}
		_ = c.Error(apperrors.ErrPersistence(err, "store device token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SubscribeToTopic handles POST /api/v1/me/topics/:topic.
func (s *Server) SubscribeToTopic(c *gin.Context) {
	s.changeTopic(c, true)
}

// UnsubscribeFromTopic handles DELETE /api/v1/me/topics/:topic.
func (s *Server) UnsubscribeFromTopic(c *gin.Context) {
	s.changeTopic(c, false)
}

func (s *Server) changeTopic(c *gin.Context, subscribe bool) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	topic, ok := topicParam(c)
	if !ok {
		return
	}

	var success bool
	if subscribe {
		success = s.notifier.SubscribeUserToTopic(c.Request.Context(), userID, topic)
	} else {
		success = s.notifier.UnsubscribeUserFromTopic(c.Request.Context(), userID, topic)
	}
	c.JSON(http.StatusOK, gin.H{"success": success})
}

// topicParam validates the :topic path parameter against the gateway's
// allowed topic alphabet.
func topicParam(c *gin.Context) (string, bool) {
	topic := c.Param("topic")
	if !validTopic(topic) {
		_ = c.Error(apperrors.ErrValidation("invalid topic name",
			apperrors.FieldError{Field: "topic", Code: "pattern"}))
		return "", false
	}
	return topic, true
}

func validTopic(topic string) bool {
	if topic == "" || len(topic) > 900 {
		return false
	}
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == '~', r == '%':
		default:
			return false
		}
	}
	return true
}
