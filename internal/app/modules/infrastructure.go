package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/config"
	"github.com/imc400/shopify-market-place/internal/gateway"
	"github.com/imc400/shopify-market-place/internal/infrastructure"
	"github.com/imc400/shopify-market-place/internal/metrics"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
	"github.com/imc400/shopify-market-place/internal/pkg/worker"
	"github.com/imc400/shopify-market-place/internal/repository"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pool        *pgxpool.Pool
	Queries     *repository.Queries
	RiverClient *river.Client[pgx.Tx]
	Pools       *worker.Pools
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Gateway     gateway.Client
}

// NewInfrastructure initializes the database, worker pools, metrics and the
// push gateway client.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		PushPoolSize:    cfg.Worker.PushPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterPools(reg, pools)

	return &Infrastructure{
		Config:   cfg,
		DB:       db,
		Pool:     db.Pool,
		Queries:  db.Queries,
		Pools:    pools,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Gateway:  newGateway(ctx, cfg.Firebase),
	}, nil
}

// newGateway falls back to the disabled client when Firebase cannot be
// initialized, so webhook ingestion keeps working and deliveries are
// recorded as FAILED.
func newGateway(ctx context.Context, cfg config.FirebaseConfig) gateway.Client {
	if cfg.ProjectID == "" && cfg.CredentialsFile == "" && cfg.CredentialsJSON == "" {
		logger.Warn("Push gateway not configured, notifications will be recorded as failed")
		return gateway.Disabled{}
	}
	fcm, err := gateway.NewFCM(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize push gateway, notifications will be recorded as failed", zap.Error(err))
		return gateway.Disabled{}
	}
	logger.Info("Push gateway initialized", zap.String("project_id", cfg.ProjectID))
	return fcm
}

// InitRiver initializes the River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
