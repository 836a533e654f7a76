package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/imc400/shopify-market-place/internal/api/handlers"
	"github.com/imc400/shopify-market-place/internal/jobs"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

// WebhookModule owns the ingestion pipeline and event replay.
type WebhookModule struct {
	infra    *Infrastructure
	pipeline *webhook.Pipeline
}

// NewWebhookModule wires the pipeline to the event log and notifier.
func NewWebhookModule(infra *Infrastructure, notifier webhook.Notifier) *WebhookModule {
	pipeline := webhook.NewPipeline(
		webhook.NewVerifier(infra.Config.Shopify.APISecret),
		infra.Queries,
		infra.Queries,
		webhook.DefaultRegistry(infra.Config.Shopify.LowStockThreshold),
		notifier,
		infra.Metrics,
	)
	return &WebhookModule{infra: infra, pipeline: pipeline}
}

func (m *WebhookModule) Name() string { return "webhook" }

// ContributeServerDeps must run after River is initialized; the bulk replay
// scheduler inserts through the River client.
func (m *WebhookModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Pipeline = m.pipeline
	deps.Events = m.infra.Queries
	deps.Stores = m.infra.Queries
	if m.infra.RiverClient != nil {
		deps.Replays = jobs.NewReplayScheduler(m.infra.Queries, m.infra.RiverClient)
	}
}

func (m *WebhookModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewEventReplayWorker(m.pipeline))
}

func (m *WebhookModule) Shutdown(context.Context) error { return nil }
