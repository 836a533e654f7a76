package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/imc400/shopify-market-place/internal/api/handlers"
	"github.com/imc400/shopify-market-place/internal/jobs"
	"github.com/imc400/shopify-market-place/internal/notification"
)

// NotificationModule owns the dispatcher and the user-facing notification
// surface: subscriptions, device tokens, promotions and retention.
type NotificationModule struct {
	infra      *Infrastructure
	dispatcher *notification.Dispatcher
}

// NewNotificationModule wires the dispatcher onto the push pool.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	dispatcher := notification.NewDispatcher(
		infra.Queries,
		infra.Queries,
		infra.Gateway,
		infra.Pools.Push,
		notification.Config{
			BatchSize:   infra.Config.Firebase.BatchSize,
			SendTimeout: infra.Config.Firebase.SendTimeout,
		},
		infra.Metrics,
	)
	dispatcher.OnStaleTokens(notification.PruneStaleTokens(infra.Pools, infra.Pools.General.Name(), infra.Queries))
	return &NotificationModule{infra: infra, dispatcher: dispatcher}
}

// Dispatcher returns the fan-out component shared with the webhook module.
func (m *NotificationModule) Dispatcher() *notification.Dispatcher { return m.dispatcher }

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Notifier = m.dispatcher
	deps.Subscriptions = m.infra.Queries
	deps.Devices = m.infra.Queries
	deps.Promotions = m.infra.Queries
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewRetentionCleanupWorker(
		m.infra.Queries,
		m.infra.Config.Retention.EventLog,
		m.infra.Config.Retention.DeliveryRecords,
	))
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
