package modules

import (
	"github.com/imc400/shopify-market-place/internal/api/handlers"
	"github.com/imc400/shopify-market-place/internal/config"
)

// NewServerDeps builds base server deps then lets each module contribute its wiring.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		DB:           infra.Pool,
		MaxBodyBytes: cfg.Server.MaxWebhookBodyBytes,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
