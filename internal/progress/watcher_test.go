package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/logger"
	"docgen-backend/internal/models"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("stream did not terminate; got %d events", len(events))
		}
	}
}

func TestWatchReplaysWithoutGapsOrDuplicates(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	id := store.CreateJob("tsd", "")
	_ = store.MarkRunning(id)
	store.AppendLog(id, "a")

	w := New(store, 5*time.Millisecond)
	ch, err := w.Watch(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	// First line is already present at attach time; it must be delivered
	// exactly once before anything appended later.
	go func() {
		time.Sleep(15 * time.Millisecond)
		store.AppendLog(id, "b")
		time.Sleep(15 * time.Millisecond)
		store.AppendLog(id, "c")
		time.Sleep(15 * time.Millisecond)
		_ = store.Complete(id, &models.Result{Text: "done"})
	}()

	events := collect(t, ch)
	if len(events) != 4 {
		t.Fatalf("expected 3 lines + terminal, got %d: %+v", len(events), events)
	}
	for i, want := range []string{"a", "b", "c"} {
		if events[i].Terminal || events[i].Line != want {
			t.Fatalf("event %d: want line %q, got %+v", i, want, events[i])
		}
	}
	final := events[3]
	if !final.Terminal || final.Status != models.StatusCompleted || final.Result == nil || final.Result.Text != "done" {
		t.Fatalf("bad terminal event: %+v", final)
	}
}

func TestLateSubscriberSeesOnlyUnseenLines(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	id := store.CreateJob("tsd", "")
	_ = store.MarkRunning(id)
	store.AppendLog(id, "a")

	w := New(store, 5*time.Millisecond)

	// First subscriber consumes "a", then detaches.
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := w.Watch(ctx, id, 0)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	first := <-ch
	if first.Line != "a" {
		t.Fatalf("want a, got %+v", first)
	}
	cancel()

	store.AppendLog(id, "b")
	store.AppendLog(id, "c")
	_ = store.Fail(id, "provider unreachable")

	// A fresh subscriber replays from the start; the terminal job still
	// yields all lines then the failure event.
	ch2, err := w.Watch(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	events := collect(t, ch2)
	if len(events) != 4 {
		t.Fatalf("expected 3 lines + terminal, got %+v", events)
	}
	if events[3].Status != models.StatusFailed || events[3].FailureReason != "provider unreachable" {
		t.Fatalf("bad terminal event: %+v", events[3])
	}
}

func TestAttachAtOffsetSkipsSeenLines(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	id := store.CreateJob("tsd", "")
	_ = store.MarkRunning(id)
	store.AppendLog(id, "a")

	// A subscriber that already consumed "a" reattaches at offset 1 and
	// must observe exactly [b, c] then the terminal event.
	w := New(store, 5*time.Millisecond)
	ch, err := w.Watch(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	go func() {
		time.Sleep(15 * time.Millisecond)
		store.AppendLog(id, "b")
		store.AppendLog(id, "c")
		_ = store.Complete(id, &models.Result{Text: "r"})
	}()

	events := collect(t, ch)
	if len(events) != 3 || events[0].Line != "b" || events[1].Line != "c" || !events[2].Terminal {
		t.Fatalf("offset replay wrong: %+v", events)
	}
}

func TestDetachDoesNotAffectJob(t *testing.T) {
	store := jobstore.New(logger.NewNop())
	id := store.CreateJob("abap", "")
	_ = store.MarkRunning(id)

	w := New(store, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := w.Watch(ctx, id, 0)
	cancel()
	for range ch {
	}

	store.AppendLog(id, "still running")
	job, _ := store.Get(id)
	if job.Status != models.StatusRunning || len(job.Logs) != 1 {
		t.Fatalf("detach disturbed the job: %+v", job)
	}
}

func TestWatchUnknownJob(t *testing.T) {
	w := New(jobstore.New(logger.NewNop()), time.Millisecond)
	if _, err := w.Watch(context.Background(), "missing", 0); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
