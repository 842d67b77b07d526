package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/config"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/telemetry"
)

// Queue is the Redis-list-backed dispatcher for multi-node deployments: the
// API pushes JSON task envelopes, workers consume them with BLPOP. Delivery
// retries and dead-lettering belong to the surrounding substrate, not here.
type Queue struct {
	client     *redis.Client
	key        string
	popTimeout time.Duration
	store      *jobstore.Store
	registry   *agent.Registry
	log        *zap.SugaredLogger
}

// NewQueue builds a queue dispatcher from config.
func NewQueue(cfg config.Config, store *jobstore.Store, registry *agent.Registry, log *zap.SugaredLogger) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewQueueWithClient(client, cfg.DispatchKey, cfg.PopTimeout, store, registry, log)
}

// NewQueueWithClient injects the Redis client; used by tests.
func NewQueueWithClient(client *redis.Client, key string, popTimeout time.Duration, store *jobstore.Store, registry *agent.Registry, log *zap.SugaredLogger) *Queue {
	if key == "" {
		key = "dispatch:tasks"
	}
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &Queue{
		client:     client,
		key:        key,
		popTimeout: popTimeout,
		store:      store,
		registry:   registry,
		log:        log.With("component", "dispatch.queue"),
	}
}

// Dispatch pushes the task envelope onto the list.
func (q *Queue) Dispatch(ctx context.Context, t Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return err
	}
	telemetry.JobsDispatched.Inc()
	return nil
}

// Run consumes tasks until the context is cancelled. Malformed envelopes are
// dropped with a log line; execution failures are already finalized in the
// job store by Execute, so the loop just keeps going.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := q.client.BLPop(ctx, q.popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Warnw("pop failed", "error", err)
			time.Sleep(q.popTimeout)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			q.log.Warnw("dropping malformed task envelope", "error", err)
			continue
		}
		// The producer may live in another process; make sure this
		// worker has a lifecycle record for the job.
		q.store.Adopt(t.JobID, t.Agent, "")
		if err := Execute(ctx, q.store, q.registry, q.log, t); err != nil {
			q.log.Warnw("job failed", "job_id", t.JobID, "agent", t.Agent, "error", err)
		}
	}
}
