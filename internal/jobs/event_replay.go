// Package jobs defines River Queue job types for async processing.
// Jobs carry identifiers only; workers load state from the database.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

// QueueReplay is the queue for webhook replay jobs.
const QueueReplay = "webhook_replay"

// MaxBulkReplay caps how many failed events one bulk request enqueues.
const MaxBulkReplay = 500

// EventReplayArgs re-runs the interpreter for a logged webhook event.
type EventReplayArgs struct {
	EventID string `json:"event_id"`
}

// Kind returns the job kind identifier for event replay.
func (EventReplayArgs) Kind() string { return "event_replay" }

// InsertOpts deduplicates replays of the same event within an hour.
func (EventReplayArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueReplay,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByQueue:  true,
			ByPeriod: time.Hour,
		},
	}
}

// Replayer re-processes a logged event. *webhook.Pipeline satisfies it.
type Replayer interface {
	Replay(ctx context.Context, eventID string) (*webhook.Result, error)
}

// EventReplayWorker processes EventReplayArgs.
type EventReplayWorker struct {
	river.WorkerDefaults[EventReplayArgs]
	replayer Replayer
}

// NewEventReplayWorker creates an EventReplayWorker.
func NewEventReplayWorker(replayer Replayer) *EventReplayWorker {
	return &EventReplayWorker{replayer: replayer}
}

// Work replays the event. Missing events and stores cancel the job; other
// failures are retried by River.
func (w *EventReplayWorker) Work(ctx context.Context, job *river.Job[EventReplayArgs]) error {
	eventID := job.Args.EventID
	logger.Info("Processing event replay job",
		zap.String("event_id", eventID),
		zap.Int64("attempt", int64(job.Attempt)),
	)

	res, err := w.replayer.Replay(ctx, eventID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeEventNotFound) ||
			apperrors.HasCode(err, apperrors.CodeStoreNotFound) ||
			apperrors.HasCode(err, apperrors.CodeWebhookTopicNotSupported) {
			return river.JobCancel(fmt.Errorf("replay event %s: %w", eventID, err))
		}
		return fmt.Errorf("replay event %s: %w", eventID, err)
	}

	logger.Info("Event replay completed",
		zap.String("event_id", eventID),
		zap.Bool("handled", res.Handled),
		zap.Int("notified", res.Notified),
	)
	return nil
}

// FailedEventLister lists events whose last attempt failed.
type FailedEventLister interface {
	ListFailedEventIDs(ctx context.Context, storeID string, limit int) ([]string, error)
}

// JobInserter enqueues jobs. *river.Client satisfies it.
type JobInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// ReplayScheduler enqueues replay jobs for a store's failed events.
type ReplayScheduler struct {
	events   FailedEventLister
	inserter JobInserter
}

// NewReplayScheduler creates a ReplayScheduler.
func NewReplayScheduler(events FailedEventLister, inserter JobInserter) *ReplayScheduler {
	return &ReplayScheduler{events: events, inserter: inserter}
}

// EnqueueFailed enqueues one replay job per failed event of storeID, up to
// MaxBulkReplay. Returns the number of jobs newly inserted.
func (s *ReplayScheduler) EnqueueFailed(ctx context.Context, storeID string) (int, error) {
	if s.inserter == nil {
		return 0, fmt.Errorf("replay scheduler has no job client")
	}
	ids, err := s.events.ListFailedEventIDs(ctx, storeID, MaxBulkReplay)
	if err != nil {
		return 0, fmt.Errorf("list failed events: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	params := make([]river.InsertManyParams, len(ids))
	for i, id := range ids {
		params[i] = river.InsertManyParams{Args: EventReplayArgs{EventID: id}}
	}
	results, err := s.inserter.InsertMany(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("enqueue replay jobs: %w", err)
	}

	inserted := 0
	for _, r := range results {
		if r != nil && !r.UniqueSkippedAsDuplicate {
			inserted++
		}
	}
	logger.Info("Replay jobs enqueued",
		zap.String("store_id", storeID),
		zap.Int("failed_events", len(ids)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}
