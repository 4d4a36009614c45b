package dashboard

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

var (
	// ErrTaskStopped is returned by Fire and Trigger after Stop.
	ErrTaskStopped = errors.New("task stopped")
	// ErrNotRunning is returned by Trigger while the dashboard is not started.
	ErrNotRunning = errors.New("dashboard not running")
)

// Task runs one widget's job. It is bound to that widget for its lifetime.
type Task struct {
	d     *Dashboard
	w     *widget.Instance
	job   *widget.Job
	every time.Duration
	emit  widget.EmitFunc
	log   logx.Logger

	runMu   sync.Mutex // ticks of one task never overlap
	entry   atomic.Int64
	stopped atomic.Bool

	runs       atomic.Uint64
	failures   atomic.Uint64
	suppressed atomic.Uint64
	limiter    *rate.Limiter

	stateMu sync.Mutex
	lastRun time.Time
	lastErr string
}

var _ cron.Job = (*Task)(nil)

func newTask(d *Dashboard, w *widget.Instance) *Task {
	id := w.ID()
	return &Task{
		d:     d,
		w:     w,
		job:   w.Job(),
		every: w.Job().Schedule,
		emit:  func(data any) { d.emit(id, data) },
		log:   d.log.With(logx.Widget(w.Name(), id)),
		// At most a few failure logs per minute per task.
		limiter: rate.NewLimiter(rate.Every(20*time.Second), 3),
	}
}

func (t *Task) Widget() *widget.Instance { return t.w }
func (t *Task) WidgetID() string         { return t.w.ID() }
func (t *Task) Every() time.Duration     { return t.every }
func (t *Task) Stopped() bool            { return t.stopped.Load() }
func (t *Task) Runs() uint64             { return t.runs.Load() }
func (t *Task) Failures() uint64         { return t.failures.Load() }

// Stop unschedules the task. Later Fire calls return ErrTaskStopped.
func (t *Task) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.d.unschedule(cron.EntryID(t.entry.Load()))
}

// Run implements cron.Job.
func (t *Task) Run() {
	ctx := t.d.runContext()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_ = t.Fire(ctx)
}

// Trigger starts one tick in the background under the dashboard's context and
// returns at once. It waits behind a tick already in flight; Stop waits for it.
func (t *Task) Trigger() error {
	if t.stopped.Load() {
		return ErrTaskStopped
	}
	ctx := t.d.track()
	if ctx == nil {
		return ErrNotRunning
	}
	go func() {
		defer t.d.manual.Done()
		_ = t.Fire(ctx)
	}()
	return nil
}

// Fire runs one tick synchronously. Errors and panics from the job are
// logged, counted and returned.
func (t *Task) Fire(ctx context.Context) (err error) {
	if t.stopped.Load() {
		return ErrTaskStopped
	}
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.d.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	var stack []byte
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				stack = debug.Stack()
			}
		}()
		err = t.job.Script(ctx, t.emit)
	}()
	t.record(start, err, stack)
	return err
}

func (t *Task) record(start time.Time, err error, stack []byte) {
	took := time.Since(start)
	t.runs.Add(1)

	t.stateMu.Lock()
	t.lastRun = start
	if err != nil {
		t.lastErr = err.Error()
	} else {
		t.lastErr = ""
	}
	t.stateMu.Unlock()

	result := "ok"
	switch {
	case stack != nil:
		result = "panic"
	case err != nil:
		result = "error"
	}
	t.d.metrics.observeRun(t.d.id, t.w.Name(), result, took)
	if err == nil {
		t.log.Trace("job ok", logx.Duration("took", took))
		return
	}

	t.failures.Add(1)
	if !t.limiter.Allow() {
		t.suppressed.Add(1)
		return
	}
	fs := []logx.Field{logx.Err(err), logx.Duration("took", took)}
	if n := t.suppressed.Swap(0); n > 0 {
		fs = append(fs, logx.Uint64("suppressed", n))
	}
	if stack != nil {
		t.log.Error("job panicked", append(fs, logx.Stack(string(stack)))...)
		return
	}
	t.log.Warn("job failed", fs...)
}

func (t *Task) setEntry(id cron.EntryID) { t.entry.Store(int64(id)) }

// TaskInfo is a point-in-time view of a task.
type TaskInfo struct {
	WidgetID  string    `json:"widget_id"`
	Widget    string    `json:"widget"`
	Every     string    `json:"every"`
	Stopped   bool      `json:"stopped"`
	Runs      uint64    `json:"runs"`
	Failures  uint64    `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
}

func (t *Task) Info() TaskInfo {
	t.stateMu.Lock()
	info := TaskInfo{
		WidgetID:  t.w.ID(),
		Widget:    t.w.Name(),
		Every:     t.every.String(),
		Stopped:   t.stopped.Load(),
		Runs:      t.runs.Load(),
		Failures:  t.failures.Load(),
		LastRun:   t.lastRun,
		LastError: t.lastErr,
	}
	t.stateMu.Unlock()
	if !info.Stopped {
		if e, ok := t.d.entry(cron.EntryID(t.entry.Load())); ok {
			info.Next, info.Prev = e.Next, e.Prev
		}
	}
	return info
}
