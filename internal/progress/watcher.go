package progress

import (
	"context"
	"time"

	"docgen-backend/internal/jobstore"
	"docgen-backend/internal/models"
	"docgen-backend/internal/telemetry"
)

// Event is one element of a job's progress stream: either a single log line,
// or the terminal event carrying the job's outcome. Exactly one shape is sent
// as the last event, after which the stream channel is closed.
type Event struct {
	Line          string
	Terminal      bool
	Status        string
	Result        *models.Result
	FailureReason string
}

// Watcher turns the job store's poll-based view into per-subscriber streams.
// Polling (rather than push) keeps the store free of notification machinery
// and lets subscribers attach or detach at any point in a job's life.
type Watcher struct {
	store    *jobstore.Store
	interval time.Duration
}

func New(store *jobstore.Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Watcher{store: store, interval: interval}
}

// Watch subscribes to a job's progress starting at log offset from (0 replays
// the whole log; a reconnecting subscriber passes the count it has already
// seen). Every line past the offset is delivered exactly once and in order;
// the stream ends with one terminal event and a channel close. Cancelling the
// context detaches the subscriber without touching the job.
func (w *Watcher) Watch(ctx context.Context, jobID string, from int) (<-chan Event, error) {
	if _, err := w.store.Get(jobID); err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		telemetry.StreamSubscribers.Inc()
		defer telemetry.StreamSubscribers.Dec()

		seen := from
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			job, err := w.store.Get(jobID)
			if err != nil {
				return
			}
			if seen > len(job.Logs) {
				seen = len(job.Logs)
			}
			// Drain new lines from the same snapshot that decides
			// termination, so the terminal event never races ahead
			// of the log it belongs to.
			for _, line := range job.Logs[seen:] {
				if !send(ctx, ch, Event{Line: line}) {
					return
				}
			}
			seen = len(job.Logs)
			if models.IsTerminal(job.Status) {
				var reason string
				if job.FailureReason != nil {
					reason = *job.FailureReason
				}
				send(ctx, ch, Event{
					Terminal:      true,
					Status:        job.Status,
					Result:        job.Result,
					FailureReason: reason,
				})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}
