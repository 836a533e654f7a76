package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imc400/shopify-market-place/internal/domain"
	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

// maxPromotions caps the promotions feed.
const maxPromotions = 50

type createPromotionRequest struct {
	Title            string     `json:"title" binding:"required,min=1,max=100"`
	Description      string     `json:"description" binding:"required,min=1,max=500"`
	Image            string     `json:"image" binding:"omitempty,url"`
	DiscountCode     string     `json:"discountCode"`
	ValidUntil       *time.Time `json:"validUntil"`
	StoreID          string     `json:"storeId" binding:"required,uuid"`
	SendNotification bool       `json:"sendNotification"`
}

// promotionNotification builds the announcement sent to store subscribers.
func promotionNotification(store *domain.Store, p *domain.Promotion) domain.NotificationPayload {
	body := p.Title
	if p.DiscountCode != "" {
		body = fmt.Sprintf("%s - Código: %s", p.Title, p.DiscountCode)
	}
	return domain.NotificationPayload{
		Title: fmt.Sprintf("🎉 Nueva oferta en %s", store.Name),
		Body:  body,
		Data: map[string]string{
			"type":        webhook.DataTypePromotion,
			"promotionId": p.ID,
			"storeId":     store.ID,
		},
		ImageURL: p.Image,
	}
}

// CreatePromotion handles POST /api/v1/notifications/promotions.
func (s *Server) CreatePromotion(c *gin.Context) {
	var req createPromotionRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	store, err := s.stores.ActiveStoreByID(ctx, req.StoreID)
	if err != nil {
		_ = c.Error(storeErr(err))
		return
	}

	promo := &domain.Promotion{
		StoreID:      store.ID,
		StoreName:    store.Name,
		Title:        req.Title,
		Description:  req.Description,
		Image:        req.Image,
		DiscountCode: req.DiscountCode,
		ValidUntil:   req.ValidUntil,
	}
	if err := s.promotions.CreatePromotion(ctx, promo); err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "create promotion"))
		return
	}

	resp := gin.H{
		"success":   true,
		"message":   "Promotion created successfully",
		"promotion": promotionToAPI(promo),
	}
	if req.SendNotification {
		sent, err := s.notifier.SendToStoreSubscribers(ctx, store.ID, promotionNotification(store, promo))
		if err != nil {
			_ = c.Error(apperrors.ErrPersistence(err, "announce promotion"))
			return
		}
		resp["sentCount"] = sent
	}
	c.JSON(http.StatusCreated, resp)
}

// ListPromotions handles GET /api/v1/notifications/promotions.
func (s *Server) ListPromotions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	promos, err := s.promotions.ListPromotionsForUser(c.Request.Context(), userID, s.now(), maxPromotions)
	if err != nil {
		_ = c.Error(apperrors.ErrPersistence(err, "list promotions"))
		return
	}

	items := make([]promotionResponse, 0, len(promos))
	for _, p := range promos {
		items = append(items, promotionToAPI(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"promotions": items,
	})
}
