package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/imc400/shopify-market-place/internal/pkg/errors"
	"github.com/imc400/shopify-market-place/internal/webhook"
)

func TestEventReplayArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "event_replay", EventReplayArgs{}.Kind())
	opts := EventReplayArgs{}.InsertOpts()
	assert.Equal(t, QueueReplay, opts.Queue)
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, time.Hour, opts.UniqueOpts.ByPeriod)
}

type fakeReplayer struct {
	err   error
	calls []string
}

func (f *fakeReplayer) Replay(_ context.Context, id string) (*webhook.Result, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &webhook.Result{EventID: id, Handled: true, Notified: 1}, nil
}

func replayJob(id string) *river.Job[EventReplayArgs] {
	return &river.Job[EventReplayArgs]{
		JobRow: &rivertype.JobRow{Attempt: 1},
		Args:   EventReplayArgs{EventID: id},
	}
}

func TestEventReplayWorker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantErr    bool
		wantCancel bool
	}{
		{name: "success"},
		{name: "event gone", err: apperrors.ErrEventNotFound(), wantErr: true, wantCancel: true},
		{name: "store inactive", err: apperrors.ErrStoreNotFound(), wantErr: true, wantCancel: true},
		{
			name:       "unsupported topic",
			err:        apperrors.Internal(apperrors.CodeWebhookTopicNotSupported, "unsupported webhook topic: carts/update"),
			wantErr:    true,
			wantCancel: true,
		},
		{
			name:    "interpretation failed again",
			err:     apperrors.Internal(apperrors.CodeWebhookProcessingFailed, "webhook processing failed"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &fakeReplayer{err: tt.err}
			err := NewEventReplayWorker(r).Work(context.Background(), replayJob("evt-1"))

			assert.Equal(t, []string{"evt-1"}, r.calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cancelErr *rivertype.JobCancelError
			assert.Equal(t, tt.wantCancel, errors.As(err, &cancelErr))
		})
	}
}

type fakeFailedEvents struct {
	ids      []string
	err      error
	gotLimit int
}

func (f *fakeFailedEvents) ListFailedEventIDs(_ context.Context, _ string, limit int) ([]string, error) {
	f.gotLimit = limit
	return f.ids, f.err
}

type fakeInserter struct {
	params     []river.InsertManyParams
	duplicates map[string]bool
	err        error
}

func (f *fakeInserter) InsertMany(_ context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params = append(f.params, params...)
	out := make([]*rivertype.JobInsertResult, len(params))
	for i, p := range params {
		id := p.Args.(EventReplayArgs).EventID
		out[i] = &rivertype.JobInsertResult{
			Job:                      &rivertype.JobRow{},
			UniqueSkippedAsDuplicate: f.duplicates[id],
		}
	}
	return out, nil
}

func TestReplayScheduler_EnqueueFailed(t *testing.T) {
	t.Parallel()

	events := &fakeFailedEvents{ids: []string{"e1", "e2", "e3"}}
	ins := &fakeInserter{duplicates: map[string]bool{"e2": true}}

	n, err := NewReplayScheduler(events, ins).EnqueueFailed(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, MaxBulkReplay, events.gotLimit)
	require.Len(t, ins.params, 3)
	assert.Equal(t, EventReplayArgs{EventID: "e1"}, ins.params[0].Args)
}

func TestReplayScheduler_Errors(t *testing.T) {
	t.Parallel()

	n, err := NewReplayScheduler(&fakeFailedEvents{}, &fakeInserter{}).EnqueueFailed(context.Background(), "s")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = NewReplayScheduler(&fakeFailedEvents{err: errors.New("db")}, &fakeInserter{}).EnqueueFailed(context.Background(), "s")
	assert.Error(t, err)

	_, err = NewReplayScheduler(&fakeFailedEvents{ids: []string{"e1"}}, &fakeInserter{err: errors.New("queue")}).EnqueueFailed(context.Background(), "s")
	assert.Error(t, err)

	_, err = NewReplayScheduler(&fakeFailedEvents{}, nil).EnqueueFailed(context.Background(), "s")
	assert.Error(t, err)
}

func TestRetentionCleanupArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "retention_cleanup", RetentionCleanupArgs{}.Kind())
	opts := RetentionCleanupArgs{}.InsertOpts()
	assert.Equal(t, river.QueueDefault, opts.Queue)
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Equal(t, 24*time.Hour, opts.UniqueOpts.ByPeriod)
}

type fakeRetentionStore struct {
	eventCutoff    *time.Time
	deliveryCutoff *time.Time
	err            error
}

func (f *fakeRetentionStore) DeleteProcessedEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.eventCutoff = &cutoff
	return 4, f.err
}

func (f *fakeRetentionStore) DeleteDeliveriesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deliveryCutoff = &cutoff
	return 9, nil
}

func TestRetentionCleanupWorker(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

	t.Run("both tables", func(t *testing.T) {
		store := &fakeRetentionStore{}
		w := NewRetentionCleanupWorker(store, 24*time.Hour, 48*time.Hour)
		w.now = func() time.Time { return now }

		require.NoError(t, w.Work(context.Background(), &river.Job[RetentionCleanupArgs]{}))
		require.NotNil(t, store.eventCutoff)
		require.NotNil(t, store.deliveryCutoff)
		assert.Equal(t, now.Add(-24*time.Hour), *store.eventCutoff)
		assert.Equal(t, now.Add(-48*time.Hour), *store.deliveryCutoff)
	})

	t.Run("zero retention disables", func(t *testing.T) {
		store := &fakeRetentionStore{}
		w := NewRetentionCleanupWorker(store, 0, 0)
		require.NoError(t, w.Work(context.Background(), &river.Job[RetentionCleanupArgs]{}))
		assert.Nil(t, store.eventCutoff)
		assert.Nil(t, store.deliveryCutoff)
	})

	t.Run("error stops the run", func(t *testing.T) {
		store := &fakeRetentionStore{err: errors.New("lock timeout")}
		w := NewRetentionCleanupWorker(store, time.Hour, time.Hour)
		assert.Error(t, w.Work(context.Background(), &river.Job[RetentionCleanupArgs]{}))
		assert.Nil(t, store.deliveryCutoff)
	})

	t.Run("uninitialized", func(t *testing.T) {
		var w *RetentionCleanupWorker
		assert.Error(t, w.Work(context.Background(), &river.Job[RetentionCleanupArgs]{}))
	})
}
