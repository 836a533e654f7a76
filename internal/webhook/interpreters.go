package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

// Notification data types.
const (
	DataTypeProductUpdate = "product_update"
	DataTypeLowStock      = "low_stock"
	DataTypePromotion     = "promotion"
)

// Product change markers carried in data.changes.
const (
	ChangeAvailable = "available"
	ChangeLowStock  = "low_stock"
)

// DefaultLowStockThreshold is the inclusive upper bound for inventory alerts.
const DefaultLowStockThreshold = 5

type productPayload struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Status      string      `json:"status"`
	PublishedAt *string     `json:"published_at"`
	Variants    []struct {
		InventoryQuantity *int `json:"inventory_quantity"`
	} `json:"variants"`
	Image *struct {
		Src string `json:"src"`
	} `json:"image"`
}

type inventoryLevelPayload struct {
	InventoryItemID json.Number `json:"inventory_item_id"`
	LocationID      json.Number `json:"location_id"`
	Available       *int        `json:"available"`
}

type orderPayload struct {
	ID          json.Number `json:"id"`
	OrderNumber json.Number `json:"order_number"`
	TotalPrice  string      `json:"total_price"`
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// ProductUpdate notifies when a product becomes available or any variant
// sells out. Both conditions may be reported together.
func ProductUpdate(store domain.Store, payload json.RawMessage) (*domain.NotificationPayload, error) {
	var p productPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}

	var changes []string
	available := p.Status == "active" && p.PublishedAt != nil && *p.PublishedAt != ""
	if available {
		changes = append(changes, ChangeAvailable)
	}
	for _, v := range p.Variants {
		if v.InventoryQuantity != nil && *v.InventoryQuantity == 0 {
			changes = append(changes, ChangeLowStock)
			break
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}

	body := fmt.Sprintf("Stock limitado de %s", p.Title)
	if available {
		body = fmt.Sprintf("¡%s ya está disponible!", p.Title)
	}
	n := &domain.NotificationPayload{
		Title: fmt.Sprintf("📦 Actualización de producto - %s", store.Name),
		Body:  body,
		Data: map[string]string{
			"type":      DataTypeProductUpdate,
			"productId": p.ID.String(),
			"storeId":   store.ID,
			"changes":   strings.Join(changes, ","),
		},
	}
	if p.Image != nil {
		n.ImageURL = p.Image.Src
	}
	return n, nil
}

// ProductDelete never notifies.
func ProductDelete(store domain.Store, payload json.RawMessage) (*domain.NotificationPayload, error) {
	var p productPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	logger.Info("Product deleted",
		zap.String("store_id", store.ID),
		zap.String("product_id", p.ID.String()),
	)
	return nil, nil
}

// InventoryLevelUpdate notifies when 0 < available <= threshold.
func InventoryLevelUpdate(threshold int) Interpreter {
	if threshold < 1 {
		threshold = DefaultLowStockThreshold
	}
	return func(store domain.Store, payload json.RawMessage) (*domain.NotificationPayload, error) {
		var p inventoryLevelPayload
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.Available == nil || *p.Available <= 0 || *p.Available > threshold {
			return nil, nil
		}
		return &domain.NotificationPayload{
			Title: fmt.Sprintf("⚠️ Stock limitado - %s", store.Name),
			Body:  fmt.Sprintf("Quedan solo %d unidades disponibles", *p.Available),
			Data: map[string]string{
				"type":            DataTypeLowStock,
				"inventoryItemId": p.InventoryItemID.String(),
				"storeId":         store.ID,
				"available":       strconv.Itoa(*p.Available),
			},
		}, nil
	}
}

// OrderCreate only logs.
func OrderCreate(store domain.Store, payload json.RawMessage) (*domain.NotificationPayload, error) {
	var p orderPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	logger.Info("Order created",
		zap.String("store", store.Name),
		zap.String("order_number", p.OrderNumber.String()),
		zap.String("total_price", p.TotalPrice),
	)
	return nil, nil
}
