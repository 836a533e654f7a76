// Package worker provides goroutine pool management.
//
// Naked goroutines are not used in this module. Concurrent work goes through
// a Pool so that it is bounded, recovered on panic and drained on shutdown.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// ErrTaskSkipped is reported by RunAll for a task whose context was cancelled
// before a worker picked it up.
var ErrTaskSkipped = errors.New("task skipped: context cancelled before start")

// ErrTaskPanicked is reported by RunAll for a task that panicked.
var ErrTaskPanicked = errors.New("task panicked")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// ErrTask is a task whose outcome is collected by RunAll.
type ErrTask func(ctx context.Context) error

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// General runs short-lived background work (event replays, cleanup).
	General *Pool
	// Push runs push gateway batches.
	Push *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize int
	PushPoolSize    int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize: 100,
		PushPoolSize:    16,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	pushAnts, err := ants.NewPool(cfg.PushPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Push:          &Pool{pool: pushAnts, name: "push"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string { return p.name }

// Submit submits a context-aware task.
// If ctx is already cancelled, returns ctx.Err() without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		// ctx may have been cancelled while queued
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// RunAll runs every task on the pool and blocks until all of them have
// finished or been skipped. The returned slice is index-aligned with tasks.
// A task that never ran reports ErrTaskSkipped or the submission error; a
// panicking task reports ErrTaskPanicked.
func (p *Pool) RunAll(ctx context.Context, tasks ...ErrTask) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, task := i, task
		errs[i] = ErrTaskSkipped
		wg.Add(1)

		// The wrapper always runs Done, even when ctx was cancelled while
		// the task sat in the queue.
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Worker panic recovered",
						zap.String("pool", p.name),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					errs[i] = ErrTaskPanicked
				}
			}()
			select {
			case <-ctx.Done():
				return
			default:
			}
			errs[i] = task(ctx)
		})
		if err != nil {
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPoolClosed
			}
			errs[i] = err
			wg.Done()
		}
	}

	wg.Wait()
	return errs
}

// SubmitDetached submits a background task bound to the service lifecycle
// context instead of a request context. Detached tasks survive request
// cancellation but stop on Shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool := p.General
	if poolName == p.Push.name {
		pool = p.Push
	}

	return pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", pool.name),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

// Shutdown cancels the service context, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	for _, pool := range []*Pool{p.General, p.Push} {
		if err := pool.pool.ReleaseTimeout(shutdownTimeout); err != nil {
			logger.Warn("Worker pool shutdown timeout",
				zap.String("pool", pool.name),
				zap.Error(err),
			)
		}
	}
}

// Stats is a point-in-time view of a pool's occupancy.
type Stats struct {
	Running int
	Free    int
	Cap     int
}

// Stats returns occupancy per pool name.
func (p *Pools) Stats() map[string]Stats {
	out := make(map[string]Stats, 2)
	for _, pool := range []*Pool{p.General, p.Push} {
		out[pool.name] = Stats{
			Running: pool.pool.Running(),
			Free:    pool.pool.Free(),
			Cap:     pool.pool.Cap(),
		}
	}
	return out
}
