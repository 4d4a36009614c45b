package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

// Cell is one widget placement: a registry reference plus its options.
type Cell struct {
	Widget  string         `json:"widget"`
	Options widget.Options `json:"options,omitempty"`
}

// Descriptor is the static definition a Dashboard is built from.
type Descriptor struct {
	Name    string
	Title   string
	Widgets [][]Cell
}

type Option func(*Dashboard)

func WithLogger(log logx.Logger) Option { return func(d *Dashboard) { d.log = log } }

func WithMetrics(m *Metrics) Option { return func(d *Dashboard) { d.metrics = m } }

// WithJobTimeout bounds every job tick. Zero means no deadline beyond Stop.
func WithJobTimeout(t time.Duration) Option { return func(d *Dashboard) { d.jobTimeout = t } }

// Dashboard is a named widget layout bound to one pub/sub room.
type Dashboard struct {
	id         string
	title      string
	ps         PubSub
	log        logx.Logger
	metrics    *Metrics
	jobTimeout time.Duration

	widgets [][]*widget.Instance
	tasks   []*Task
	byID    map[string]*widget.Instance

	mu     sync.Mutex
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	manual sync.WaitGroup // ticks started by Task.Trigger
}

// New builds every widget of desc, in layout order, and derives one task per
// widget that declares a job. Construction is all-or-nothing: the first
// failing cell aborts the dashboard and nothing is registered on ps.
func New(desc Descriptor, reg *widget.Registry, ps PubSub, opts ...Option) (*Dashboard, error) {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return nil, errors.New("dashboard name required")
	}
	if reg == nil {
		return nil, fmt.Errorf("dashboard %q: widget registry is nil", name)
	}
	if ps == nil {
		return nil, fmt.Errorf("dashboard %q: pubsub is nil", name)
	}

	d := &Dashboard{
		id:    name,
		title: desc.Title,
		ps:    ps,
		byID:  map[string]*widget.Instance{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.Dashboard(d.id))
	if d.title == "" {
		d.title = d.id
	}

	d.widgets = make([][]*widget.Instance, 0, len(desc.Widgets))
	for r, row := range desc.Widgets {
		built := make([]*widget.Instance, 0, len(row))
		for c, cell := range row {
			w, err := widget.New(reg, cell.Widget, cell.Options)
			if err != nil {
				return nil, fmt.Errorf("dashboard %q: row %d cell %d (%s): %w", d.id, r, c, cell.Widget, err)
			}
			built = append(built, w)
			d.byID[w.ID()] = w
		}
		d.widgets = append(d.widgets, built)
	}

	for _, row := range d.widgets {
		for _, w := range row {
			if w.Job() != nil {
				d.tasks = append(d.tasks, newTask(d, w))
			}
		}
	}

	ps.OnConnect(func(conn string) {
		ps.Join(conn, d.id)
		d.log.Debug("client joined", logx.Conn(conn))
	})
	return d, nil
}

func (d *Dashboard) ID() string    { return d.id }
func (d *Dashboard) Title() string { return d.title }

// Widgets returns the layout, row-major.
func (d *Dashboard) Widgets() [][]*widget.Instance {
	out := make([][]*widget.Instance, len(d.widgets))
	for i, row := range d.widgets {
		out[i] = append([]*widget.Instance(nil), row...)
	}
	return out
}

// Jobs returns one task per widget with a job, in flattened layout order.
func (d *Dashboard) Jobs() []*Task { return append([]*Task(nil), d.tasks...) }

// Widget looks up an instance by id.
func (d *Dashboard) Widget(id string) (*widget.Instance, bool) {
	w, ok := d.byID[id]
	return w, ok
}

// Task returns the task bound to widget id.
func (d *Dashboard) Task(widgetID string) (*Task, bool) {
	for _, t := range d.tasks {
		if t.w.ID() == widgetID {
			return t, true
		}
	}
	return nil, false
}

// emit is the only path from a job to the dashboard's clients.
func (d *Dashboard) emit(widgetID string, data any) {
	d.ps.Emit(d.id, widget.UpdateEvent(widgetID), data)
	d.metrics.emitted(d.id)
}

// Start schedules every task that has not been stopped. Each fires once
// immediately, then every period. Calling Start on a running dashboard is a no-op.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return
	}
	clog := cronLogger{log: d.log.With(logx.Component("cron"))}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.c = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	scheduled := 0
	for _, t := range d.tasks {
		if t.Stopped() {
			continue
		}
		t.setEntry(d.c.Schedule(&immediateEvery{every: t.every}, t))
		scheduled++
	}
	d.c.Start()
	d.log.Info("dashboard started", logx.Int("widgets", len(d.byID)), logx.Int("jobs", scheduled))
}

// Stop cancels in-flight ticks and stops scheduling. It waits for running
// ticks to return or for ctx to end, whichever comes first.
func (d *Dashboard) Stop(ctx context.Context) {
	d.mu.Lock()
	c, cancel := d.c, d.cancel
	d.c, d.cancel, d.ctx = nil, nil, nil
	d.mu.Unlock()
	if c == nil {
		return
	}

	start := time.Now()
	cancel()
	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		d.manual.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("stop timed out waiting for jobs", logx.Err(ctx.Err()))
	}
	d.log.Info("dashboard stopped", logx.Duration("took", time.Since(start)))
}

// Running reports whether the dashboard is scheduling jobs.
func (d *Dashboard) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.c != nil
}

func (d *Dashboard) runContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// track registers a manual tick and returns the context it runs under, or nil
// when the dashboard is not running.
func (d *Dashboard) track() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c == nil || d.ctx.Err() != nil {
		return nil
	}
	d.manual.Add(1)
	return d.ctx
}

func (d *Dashboard) unschedule(id cron.EntryID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil && id != 0 {
		d.c.Remove(id)
	}
}

func (d *Dashboard) entry(id cron.EntryID) (cron.Entry, bool) {
	d.mu.Lock()
	c := d.c
	d.mu.Unlock()
	if c == nil || id == 0 {
		return cron.Entry{}, false
	}
	e := c.Entry(id)
	return e, e.Valid()
}
