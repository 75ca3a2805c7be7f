package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a point-in-time view of the runner for the API.
type Status struct {
	Running     bool       `json:"running"`
	Pending     bool       `json:"pending"`
	IntervalMin int        `json:"interval_min"`
	LastRun     *Summary   `json:"last_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
}

// Runner drives the orchestrator on a fixed interval and accepts on-demand
// triggers. A single loop goroutine consumes both the ticker and the trigger
// channel, so runs never overlap; the trigger channel is buffered with
// capacity one, so triggers arriving mid-run coalesce into a single
// follow-up run.
type Runner struct {
	orch     *Orchestrator
	interval time.Duration
	log      *zap.SugaredLogger

	trigger chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	running   bool
	lastRun   *Summary
	lastError string
	nextRunAt time.Time
}

func NewRunner(orch *Orchestrator, interval time.Duration, log *zap.SugaredLogger) *Runner {
	return &Runner{
		orch:     orch,
		interval: interval,
		log:      log,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The first run happens immediately; subsequent
// runs fire on the interval or on demand. Returns when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.execute(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.execute(ctx)
			case <-r.trigger:
				r.execute(ctx)
				ticker.Reset(r.interval)
			}
		}
	}()
}

// Wait blocks until the loop goroutine has exited.
func (r *Runner) Wait() { <-r.done }

// TriggerAsync requests a run without blocking. Returns false when a
// follow-up run is already pending; the request is then a no-op because
// that pending run will observe the same site state.
func (r *Runner) TriggerAsync() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Running:     r.running,
		Pending:     len(r.trigger) > 0,
		IntervalMin: int(r.interval / time.Minute),
		LastRun:     r.lastRun,
		LastError:   r.lastError,
	}
	if !r.nextRunAt.IsZero() {
		t := r.nextRunAt
		st.NextRunAt = &t
	}
	return st
}

func (r *Runner) execute(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	sum, err := r.orch.RunOnce(ctx)

	r.mu.Lock()
	r.running = false
	r.lastRun = &sum
	r.nextRunAt = time.Now().Add(r.interval).UTC()
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
	}
	r.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		r.log.Errorw("run failed", "err", err)
	}
}
