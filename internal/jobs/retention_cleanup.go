package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

// RetentionCleanupArgs is a periodic maintenance job that trims the event
// log and delivery records.
type RetentionCleanupArgs struct{}

// Kind returns the job kind identifier for retention cleanup.
func (RetentionCleanupArgs) Kind() string { return "retention_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (RetentionCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// RetentionStore deletes rows older than a cutoff.
type RetentionStore interface {
	DeleteProcessedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionCleanupWorker deletes successfully processed events and delivery
// records past their retention. A zero retention disables that table.
type RetentionCleanupWorker struct {
	river.WorkerDefaults[RetentionCleanupArgs]
	store             RetentionStore
	eventRetention    time.Duration
	deliveryRetention time.Duration
	now               func() time.Time
}

// NewRetentionCleanupWorker creates a RetentionCleanupWorker.
func NewRetentionCleanupWorker(store RetentionStore, eventRetention, deliveryRetention time.Duration) *RetentionCleanupWorker {
	return &RetentionCleanupWorker{
		store:             store,
		eventRetention:    eventRetention,
		deliveryRetention: deliveryRetention,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Work removes expired rows.
func (w *RetentionCleanupWorker) Work(ctx context.Context, _ *river.Job[RetentionCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("retention cleanup worker is not initialized")
	}
	now := w.now()

	if w.eventRetention > 0 {
		cutoff := now.Add(-w.eventRetention)
		deleted, err := w.store.DeleteProcessedEventsBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete processed events before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		logger.Info("event log cleanup completed",
			zap.Int64("deleted_rows", deleted),
			zap.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}

	if w.deliveryRetention > 0 {
		cutoff := now.Add(-w.deliveryRetention)
		deleted, err := w.store.DeleteDeliveriesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete delivery records before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		logger.Info("delivery record cleanup completed",
			zap.Int64("deleted_rows", deleted),
			zap.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}
