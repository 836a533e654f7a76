package webhook

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/imc400/shopify-market-place/internal/domain"
)

// Interpreter decides whether an event is notification-worthy. A nil payload
// with a nil error means "nothing to send".
type Interpreter func(store domain.Store, payload json.RawMessage) (*domain.NotificationPayload, error)

// Registry maps topics to interpreters. Topics without an entry are no-ops
// on ingestion.
type Registry struct {
	interpreters map[domain.Topic]Interpreter
	mu           sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		interpreters: make(map[domain.Topic]Interpreter),
	}
}

// Register sets the interpreter for topic, replacing any previous one.
func (r *Registry) Register(topic domain.Topic, fn Interpreter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interpreters[topic] = fn
}

// Lookup returns the interpreter registered for topic.
func (r *Registry) Lookup(topic domain.Topic) (Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.interpreters[topic]
	return fn, ok
}

// Topics lists the registered topics in lexical order.
func (r *Registry) Topics() []domain.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]domain.Topic, 0, len(r.interpreters))
	for t := range r.interpreters {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// DefaultRegistry wires the built-in storefront topics.
func DefaultRegistry(lowStockThreshold int) *Registry {
	r := NewRegistry()
	r.Register(domain.TopicProductsUpdate, ProductUpdate)
	r.Register(domain.TopicProductsDelete, ProductDelete)
	r.Register(domain.TopicInventoryLevelsUpdate, InventoryLevelUpdate(lowStockThreshold))
	r.Register(domain.TopicOrdersCreate, OrderCreate)
	return r
}
