package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/models"
	"docgen-backend/internal/telemetry"
)

// Task is the envelope handed to background execution.
type Task struct {
	JobID     string           `json:"job_id"`
	Agent     string           `json:"agent"`
	InputText string           `json:"input_text,omitempty"`
	Files     []models.FileRef `json:"files,omitempty"`
}

// Dispatcher hands a created job to background execution. Implementations
// differ only in the execution substrate; the lifecycle contract lives in
// Execute and is identical for all of them.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Task) error
}

// Execute is the worker wrapper shared by every dispatcher: it transitions
// the job to running, resolves and runs the agent, and guarantees exactly one
// terminal transition no matter how the run ends. Failures are recorded as
// the job's failure reason and also returned, so a queue-backed substrate can
// feed its own retry/alerting; the wrapper itself never retries.
func Execute(ctx context.Context, store *jobstore.Store, registry *agent.Registry, log *zap.SugaredLogger, t Task) error {
	if err := store.MarkRunning(t.JobID); err != nil {
		if errors.Is(err, jobstore.ErrInvalidTransition) {
			// Already finalized by an earlier attempt; a redelivered
			// task must not touch the record.
			log.Debugw("skipping already-finalized job", "job_id", t.JobID)
			return nil
		}
		return err
	}
	store.AppendLog(t.JobID, fmt.Sprintf("Starting agent '%s'", t.Agent))

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	rt, err := registry.Resolve(t.Agent)
	if err != nil {
		return failJob(store, t.JobID, err)
	}

	result, err := rt.Run(ctx, t.JobID, t.InputText, t.Files)
	if err != nil {
		return failJob(store, t.JobID, err)
	}

	store.AppendLog(t.JobID, "Agent completed")
	if err := store.Complete(t.JobID, result); err != nil {
		return err
	}
	telemetry.JobsCompleted.Inc()
	return nil
}

func failJob(store *jobstore.Store, jobID string, cause error) error {
	store.AppendLog(jobID, cause.Error())
	if err := store.Fail(jobID, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	telemetry.JobsFailed.Inc()
	return cause
}
