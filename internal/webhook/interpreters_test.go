package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imc400/shopify-market-place/internal/domain"
)

var testStore = domain.Store{ID: "store-1", Name: "Tienda Sur", ShopifyDomain: "tienda-sur.myshopify.com", IsActive: true}

func TestInventoryLevelUpdate_Boundaries(t *testing.T) {
	interpret := InventoryLevelUpdate(DefaultLowStockThreshold)
	tests := []struct {
		name    string
		payload string
		notify  bool
	}{
		{"zero", `{"inventory_item_id":7,"available":0}`, false},
		{"one", `{"inventory_item_id":7,"available":1}`, true},
		{"threshold", `{"inventory_item_id":7,"available":5}`, true},
		{"above threshold", `{"inventory_item_id":7,"available":6}`, false},
		{"negative", `{"inventory_item_id":7,"available":-2}`, false},
		{"missing", `{"inventory_item_id":7}`, false},
		{"null", `{"inventory_item_id":7,"available":null}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpret(testStore, json.RawMessage(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.notify, got != nil)
		})
	}
}

func TestInventoryLevelUpdate_Payload(t *testing.T) {
	got, err := InventoryLevelUpdate(5)(testStore, json.RawMessage(`{"inventory_item_id":808950810,"location_id":1,"available":3}`))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "⚠️ Stock limitado - Tienda Sur", got.Title)
	assert.Equal(t, "Quedan solo 3 unidades disponibles", got.Body)
	assert.Equal(t, map[string]string{
		"type":            DataTypeLowStock,
		"inventoryItemId": "808950810",
		"storeId":         "store-1",
		"available":       "3",
	}, got.Data)
}

func TestInventoryLevelUpdate_CustomThreshold(t *testing.T) {
	got, err := InventoryLevelUpdate(10)(testStore, json.RawMessage(`{"available":8}`))
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = InventoryLevelUpdate(0)(testStore, json.RawMessage(`{"available":6}`))
	require.NoError(t, err)
	assert.Nil(t, got, "non-positive threshold falls back to the default")
}

func TestProductUpdate(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantNil     bool
		wantBody    string
		wantChanges string
		wantImage   string
	}{
		{
			name:    "draft product",
			payload: `{"id":1,"title":"Polera","status":"draft","published_at":null,"variants":[{"inventory_quantity":4}]}`,
			wantNil: true,
		},
		{
			name:    "active but unpublished",
			payload: `{"id":1,"title":"Polera","status":"active","variants":[{"inventory_quantity":4}]}`,
			wantNil: true,
		},
		{
			name:        "available",
			payload:     `{"id":632910392,"title":"Polera","status":"active","published_at":"2026-01-01T00:00:00Z","variants":[{"inventory_quantity":4}],"image":{"src":"https://cdn.example/p.png"}}`,
			wantBody:    "¡Polera ya está disponible!",
			wantChanges: "available",
			wantImage:   "https://cdn.example/p.png",
		},
		{
			name:        "sold out variant",
			payload:     `{"id":"632910392","title":"Polera","status":"draft","variants":[{"inventory_quantity":2},{"inventory_quantity":0}]}`,
			wantBody:    "Stock limitado de Polera",
			wantChanges: "low_stock",
		},
		{
			name:        "both",
			payload:     `{"id":632910392,"title":"Polera","status":"active","published_at":"2026-01-01T00:00:00Z","variants":[{"inventory_quantity":0},{"inventory_quantity":0}]}`,
			wantBody:    "¡Polera ya está disponible!",
			wantChanges: "available,low_stock",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProductUpdate(testStore, json.RawMessage(tt.payload))
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, "📦 Actualización de producto - Tienda Sur", got.Title)
			assert.Equal(t, tt.wantBody, got.Body)
			assert.Equal(t, tt.wantChanges, got.Data["changes"])
			assert.Equal(t, "632910392", got.Data["productId"])
			assert.Equal(t, DataTypeProductUpdate, got.Data["type"])
			assert.Equal(t, tt.wantImage, got.ImageURL)
		})
	}
}

func TestSilentInterpreters(t *testing.T) {
	got, err := ProductDelete(testStore, json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = OrderCreate(testStore, json.RawMessage(`{"id":1,"order_number":1001,"total_price":"19990.00"}`))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInterpreters_DecodeError(t *testing.T) {
	_, err := ProductUpdate(testStore, json.RawMessage(`{"variants":"nope"}`))
	assert.Error(t, err)
	_, err = InventoryLevelUpdate(5)(testStore, json.RawMessage(`{"available":"three"}`))
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(5)
	assert.Equal(t, []domain.Topic{
		domain.TopicInventoryLevelsUpdate,
		domain.TopicOrdersCreate,
		domain.TopicProductsDelete,
		domain.TopicProductsUpdate,
	}, r.Topics())

	_, ok := r.Lookup("customers/create")
	assert.False(t, ok)

	r.Register("customers/create", OrderCreate)
	_, ok = r.Lookup("customers/create")
	assert.True(t, ok)
}
