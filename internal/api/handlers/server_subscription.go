package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
)

// SubscribeToStore handles POST /api/v1/stores/:storeId/subscription.
func (s *Server) SubscribeToStore(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	storeID := c.Param("storeId")

	if _, err := s.stores.ActiveStoreByID(ctx, storeID); err != nil {
		_ = c.Error(storeErr(err))
		return
	}

	id, err := s.subscriptions.Subscribe(ctx, userID, storeID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySubscribed) {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeAlreadySubscribed, "Already subscribed to this store"))
			return
		}
		_ = c.Error(apperrors.ErrPersistence(err, "subscribe"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Successfully subscribed to store",
		"subscriptionId": id,
	})
}

// UnsubscribeFromStore handles DELETE /api/v1/stores/:storeId/subscription.
func (s *Server) UnsubscribeFromStore(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := s.subscriptions.Unsubscribe(c.Request.Context(), userID, c.Param("storeId")); err != nil {
		if errors.Is(err, domain.ErrNotSubscribed) {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeNotSubscribed, "Not subscribed to this store"))
			return
		}
		_ = c.Error(apperrors.ErrPersistence(err, "unsubscribe"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Successfully unsubscribed from store",
	})
}

// ListSubscriptions handles GET /api/v1/me/subscriptions.
func (s *Server) ListSubscriptions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ids, err := s.subscriptions.ActiveStoreIDs(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "list subscriptions"))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"storeIds": ids,
	})
}
