package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/domain"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
	"github.com/imc400/shopify-market-place/internal/pkg/worker"
)

// TokenPruner clears device tokens the gateway no longer accepts.
type TokenPruner interface {
	ClearStaleToken(ctx context.Context, r domain.Recipient) error
}

// DetachedSubmitter runs tasks outside the request lifecycle. *worker.Pools satisfies it.
type DetachedSubmitter interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// PruneStaleTokens returns an OnStaleTokens callback that clears the
// reported tokens on the named pool.
func PruneStaleTokens(pools DetachedSubmitter, poolName string, pruner TokenPruner) func([]domain.Recipient) {
	return func(stale []domain.Recipient) {
		batch := append([]domain.Recipient(nil), stale...)
		err := pools.SubmitDetached(poolName, func(ctx context.Context) {
			for _, r := range batch {
				if err := pruner.ClearStaleToken(ctx, r); err != nil {
					logger.Warn("Failed to clear stale device token",
						zap.String("user_id", r.UserID),
						zap.Error(err),
					)
					continue
				}
				logger.Info("Cleared stale device token", zap.String("user_id", r.UserID))
			}
		})
		if err != nil {
			logger.Warn("Stale token cleanup not scheduled",
				zap.Int("tokens", len(batch)),
				zap.Error(err),
			)
		}
	}
}
