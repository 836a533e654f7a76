// Package app is the composition root. Bootstrap only orchestrates; the
// wiring of each slice lives in internal/app/modules.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"github.com/imc400/shopify-market-place/internal/api/handlers"
	"github.com/imc400/shopify-market-place/internal/app/modules"
	"github.com/imc400/shopify-market-place/internal/config"
	"github.com/imc400/shopify-market-place/internal/infrastructure"
	"github.com/imc400/shopify-market-place/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notificationModule := modules.NewNotificationModule(infra)
	allModules := []modules.Module{
		notificationModule,
		modules.NewWebhookModule(infra, notificationModule.Dispatcher()),
	}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	server := handlers.NewServer(modules.NewServerDeps(cfg, infra, allModules))

	return &Application{
		Config: cfg,
		Router: newRouter(cfg, server, routerDeps{
			metrics: infra.Registry,
			users:   infra.Queries,
		}),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
	}, nil
}
