package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docgen-backend/internal/agent"
	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/logger"
	"docgen-backend/internal/models"
)

// stubRuntime is a controllable agent for exercising the worker wrapper.
type stubRuntime struct {
	name   string
	result *models.Result
	err    error
	ran    chan string
}

func (s *stubRuntime) Name() string     { return s.name }
func (s *stubRuntime) Describe() string { return "stub" }

func (s *stubRuntime) Run(_ context.Context, jobID, _ string, _ []models.FileRef) (*models.Result, error) {
	if s.ran != nil {
		s.ran <- jobID
	}
	return s.result, s.err
}

func waitTerminal(t *testing.T, store *jobstore.Store, id string) models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if models.IsTerminal(job.Status) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return models.Job{}
}

func TestExecuteSuccess(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	rt := &stubRuntime{name: "ok", result: &models.Result{Text: "answer"}}
	reg := agent.NewRegistry(rt)
	id := store.CreateJob("ok", "")

	if err := Execute(context.Background(), store, reg, logger.NewNop(), Task{JobID: id, Agent: "ok"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	job, _ := store.Get(id)
	if job.Status != models.StatusCompleted || job.Result.Text != "answer" {
		t.Fatalf("bad final state: %+v", job)
	}
	if job.Logs[0] != "Starting agent 'ok'" || job.Logs[len(job.Logs)-1] != "Agent completed" {
		t.Fatalf("lifecycle logs wrong: %v", job.Logs)
	}
}

func TestExecuteUnknownAgentFailsJob(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	reg := agent.NewRegistry()
	id := store.CreateJob("nonexistent", "")

	err := Execute(context.Background(), store, reg, logger.NewNop(), Task{JobID: id, Agent: "nonexistent"})
	if !errors.Is(err, agent.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent surfaced to substrate, got %v", err)
	}
	job, _ := store.Get(id)
	if job.Status != models.StatusFailed {
		t.Fatalf("job left unterminated: %s", job.Status)
	}
	if job.FailureReason == nil || !strings.Contains(*job.FailureReason, "unknown agent") {
		t.Fatalf("failure reason missing: %+v", job.FailureReason)
	}
}

func TestExecuteAgentErrorFailsJobAndResurfaces(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	cause := errors.New("provider melted")
	reg := agent.NewRegistry(&stubRuntime{name: "bad", err: cause})
	id := store.CreateJob("bad", "")

	err := Execute(context.Background(), store, reg, logger.NewNop(), Task{JobID: id, Agent: "bad"})
	if !errors.Is(err, cause) {
		t.Fatalf("cause not re-surfaced: %v", err)
	}
	job, _ := store.Get(id)
	if job.Status != models.StatusFailed || *job.FailureReason != "provider melted" {
		t.Fatalf("bad final state: %+v", job)
	}
	if job.Result != nil {
		t.Fatalf("failed job exposes a result")
	}
}

func TestExecuteRedeliveryOfFinalizedJobIsNoop(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	rt := &stubRuntime{name: "ok", result: &models.Result{Text: "first"}}
	reg := agent.NewRegistry(rt)
	id := store.CreateJob("ok", "")
	task := Task{JobID: id, Agent: "ok"}

	if err := Execute(context.Background(), store, reg, logger.NewNop(), task); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	before, _ := store.Get(id)

	// Simulate the substrate redelivering after an ambiguous ack.
	rt.result = &models.Result{Text: "second"}
	if err := Execute(context.Background(), store, reg, logger.NewNop(), task); err != nil {
		t.Fatalf("redelivery must be a no-op, got %v", err)
	}
	after, _ := store.Get(id)
	if after.Result.Text != "first" || len(after.Logs) != len(before.Logs) {
		t.Fatalf("redelivery mutated job: %+v", after)
	}
}

func TestPoolDispatchRunsJobs(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	reg := agent.NewRegistry(&stubRuntime{name: "ok", result: &models.Result{Text: "done"}})
	pool := NewPool(store, reg, 2, 8, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = store.CreateJob("ok", "")
		if err := pool.Dispatch(ctx, Task{JobID: ids[i], Agent: "ok"}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	for _, id := range ids {
		job := waitTerminal(t, store, id)
		if job.Status != models.StatusCompleted {
			t.Fatalf("job %s: %s", id, job.Status)
		}
	}
	pool.Shutdown()
}

func TestPoolDispatchUnknownAgent(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	pool := NewPool(store, agent.NewRegistry(), 1, 1, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	id := store.CreateJob("nonexistent", "")
	if err := pool.Dispatch(ctx, Task{JobID: id, Agent: "nonexistent"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	job := waitTerminal(t, store, id)
	if job.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}
