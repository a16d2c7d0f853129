package download

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/reelfetch/backend/internal/logger"
	"github.com/reelfetch/backend/internal/progress"
)

// eventStatus maps a job state to the status sent to viewers.
func eventStatus(s State) string {
	switch s {
	case StateMerging, StateConverting, StateFinalizing:
		return progress.StatusProcessing
	case StateCompleted:
		return progress.StatusCompleted
	case StateFailed:
		return progress.StatusError
	default:
		return progress.StatusDownloading
	}
}

// reporter is the only writer of a job's progress. It serializes
// concurrent fetch callbacks, keeps the percentage non-decreasing and
// stops after the terminal event.
type reporter struct {
	mu       sync.Mutex
	job      *Job
	notifier Notifier
	store    SnapshotStore
	log      *logger.Logger

	last  int
	stage string
	done  bool
}

func newReporter(job *Job, notifier Notifier, store SnapshotStore, log *logger.Logger) *reporter {
	return &reporter{job: job, notifier: notifier, store: store, log: log, last: -1}
}

// advance moves the job to state and reports percent. Events are sent
// on state changes, stage changes and whole-percent changes.
func (r *reporter) advance(state State, percent float64, stage string) error {
	r.mu.Lock()

	if r.done {
		r.mu.Unlock()
		return nil
	}

	changed := r.job.State() != state
	if changed {
		if err := r.job.transition(state); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	p := clampPercent(percent)
	if p < r.last {
		p = r.last
	}
	if !changed && p == r.last && (stage == "" || stage == r.stage) {
		r.mu.Unlock()
		return nil
	}
	r.last = p
	if stage != "" {
		r.stage = stage
	}
	r.job.setProgress(p, stage)
	r.notifier.Publish(r.job.ID(), progress.Event{
		Status:   eventStatus(state),
		Progress: progress.Percent(p),
		Stage:    r.stage,
	})
	r.mu.Unlock()

	if changed {
		r.save()
	}
	return nil
}

// complete sends the single success event.
func (r *reporter) complete(filename string) {
	r.finish(StateCompleted, nil, progress.Event{
		Status:     progress.StatusCompleted,
		Filename:   filename,
		DownloadID: r.job.ID(),
	})
}

// fail sends the single failure event.
func (r *reporter) fail(jerr *JobError) {
	r.finish(StateFailed, jerr, progress.Event{
		Status:     progress.StatusError,
		Message:    jerr.Message,
		DownloadID: r.job.ID(),
	})
}

func (r *reporter) finish(state State, jerr *JobError, ev progress.Event) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	if jerr != nil {
		r.job.fail(jerr)
	}
	if err := r.job.transition(state); err != nil {
		r.log.Warn(context.Background(), "unexpected terminal transition", map[string]interface{}{
			"download_id": r.job.ID(),
			"error":       err.Error(),
		})
	}
	r.mu.Unlock()

	if !r.notifier.Publish(r.job.ID(), ev) {
		r.log.Info(context.Background(), "terminal event not delivered", map[string]interface{}{
			"download_id": r.job.ID(),
			"status":      ev.Status,
			"kind":        string(KindConnectionLost),
		})
	}
	r.save()
}

func (r *reporter) save() {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, r.job.Snapshot()); err != nil {
		r.log.Warn(ctx, "failed to save job snapshot", map[string]interface{}{
			"download_id": r.job.ID(),
			"error":       err.Error(),
		})
	}
}

func clampPercent(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Floor(p))
}
