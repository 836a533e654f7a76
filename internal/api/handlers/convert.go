package handlers

import (
	"encoding/json"
	"time"

	"github.com/imc400/shopify-market-place/internal/domain"
)

type storeRef struct {
	Name          string `json:"name"`
	ShopifyDomain string `json:"shopifyDomain"`
}

type webhookLogResponse struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"storeId"`
	Topic     string          `json:"topic"`
	WebhookID string          `json:"webhookId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Processed bool            `json:"processed"`
	State     string          `json:"state"`
	Error     *string         `json:"error"`
	CreatedAt time.Time       `json:"createdAt"`
	Store     storeRef        `json:"store"`
}

func webhookLogToAPI(e *domain.InboundEvent) webhookLogResponse {
	return webhookLogResponse{
		ID:        e.ID,
		StoreID:   e.StoreID,
		Topic:     string(e.Topic),
		WebhookID: e.WebhookID,
		Payload:   e.Payload,
		Processed: e.Processed,
		State:     string(e.State()),
		Error:     e.Error,
		CreatedAt: e.CreatedAt,
		Store:     storeRef{Name: e.StoreName, ShopifyDomain: e.StoreDomain},
	}
}

type deliveryResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data"`
	Status       string            `json:"status"`
	GatewayError *string           `json:"gatewayError,omitempty"`
	SentAt       *time.Time        `json:"sentAt"`
	ClickedAt    *time.Time        `json:"clickedAt"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func deliveryToAPI(r *domain.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Body:         r.Body,
		Data:         r.Data,
		Status:       string(r.Status),
		GatewayError: r.GatewayError,
		SentAt:       r.SentAt,
		ClickedAt:    r.ClickedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type promotionResponse struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"storeId"`
	StoreName    string     `json:"storeName,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Image        string     `json:"image,omitempty"`
	DiscountCode string     `json:"discountCode,omitempty"`
	ValidUntil   *time.Time `json:"validUntil"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func promotionToAPI(p *domain.Promotion) promotionResponse {
	return promotionResponse{
		ID:           p.ID,
		StoreID:      p.StoreID,
		StoreName:    p.StoreName,
		Title:        p.Title,
		Description:  p.Description,
		Image:        p.Image,
		DiscountCode: p.DiscountCode,
		ValidUntil:   p.ValidUntil,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
	}
}
