package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/telemetry"
)

// Pool runs tasks on a fixed set of in-process workers draining a buffered
// channel. The single-node default: no external substrate, no retries.
type Pool struct {
	tasks    chan Task
	store    *jobstore.Store
	registry *agent.Registry
	log      *zap.SugaredLogger
	workers  int
	wg       sync.WaitGroup
}

func NewPool(store *jobstore.Store, registry *agent.Registry, workers, depth int, log *zap.SugaredLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 16
	}
	return &Pool{
		tasks:    make(chan Task, depth),
		store:    store,
		registry: registry,
		log:      log.With("component", "dispatch.pool"),
		workers:  workers,
	}
}

// Start launches the workers. They exit when the context is cancelled or the
// pool is shut down.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					if err := Execute(ctx, p.store, p.registry, p.log, t); err != nil {
						// Terminal state is already recorded; the pool has no
						// retry layer, so the error ends here.
						p.log.Warnw("job failed", "job_id", t.JobID, "agent", t.Agent, "error", err)
					}
				}
			}
		}()
	}
}

// Dispatch enqueues a task for the workers. Blocks only when the buffer is
// full, and gives up if the caller's context ends first.
func (p *Pool) Dispatch(ctx context.Context, t Task) error {
	select {
	case p.tasks <- t:
		telemetry.JobsDispatched.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
// Callers must not Dispatch after Shutdown.
func (p *Pool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}
