package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileboard/internal/pubsub"
	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

type emitted struct {
	Room, Event string
	Data        any
}

type fakePubSub struct {
	mu       sync.Mutex
	handlers []func(string)
	joins    map[string][]string
	emits    []emitted
}

func newFakePubSub() *fakePubSub { return &fakePubSub{joins: map[string][]string{}} }

func (f *fakePubSub) OnConnect(fn func(conn string)) {
	f.mu.Lock()
	f.handlers = append(f.handlers, fn)
	f.mu.Unlock()
}

func (f *fakePubSub) Join(conn, room string) {
	f.mu.Lock()
	f.joins[conn] = append(f.joins[conn], room)
	f.mu.Unlock()
}

func (f *fakePubSub) Emit(room, event string, data any) {
	f.mu.Lock()
	f.emits = append(f.emits, emitted{room, event, data})
	f.mu.Unlock()
}

func (f *fakePubSub) connect(conn string) {
	f.mu.Lock()
	hs := append([]func(string){}, f.handlers...)
	f.mu.Unlock()
	for _, h := range hs {
		h(conn)
	}
}

func (f *fakePubSub) snapshot() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emits...)
}

func testRegistry(t *testing.T, every time.Duration) *widget.Registry {
	t.Helper()
	reg := widget.NewRegistry(t.TempDir())
	var n atomic.Int64
	reg.Register(
		widget.Define("plain", func(widget.Options) (*widget.Module, error) {
			return &widget.Module{}, nil
		}),
		widget.Define("ticker", func(widget.Options) (*widget.Module, error) {
			return &widget.Module{Job: &widget.Job{
				Schedule: every,
				Script: func(_ context.Context, emit widget.EmitFunc) error {
					emit(n.Add(1))
					return nil
				},
			}}, nil
		}),
		widget.Define("failing", func(widget.Options) (*widget.Module, error) {
			return &widget.Module{Job: &widget.Job{
				Schedule: every,
				Script: func(context.Context, widget.EmitFunc) error {
					return errors.New("upstream down")
				},
			}}, nil
		}),
		widget.Define("panicky", func(widget.Options) (*widget.Module, error) {
			return &widget.Module{Job: &widget.Job{
				Schedule: every,
				Script: func(context.Context, widget.EmitFunc) error {
					panic("nil map")
				},
			}}, nil
		}),
	)
	return reg
}

func cells(refs ...string) []Cell {
	out := make([]Cell, len(refs))
	for i, r := range refs {
		out[i] = Cell{Widget: r}
	}
	return out
}

func TestNew_LayoutAndJobs(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{
		Name:    "main",
		Widgets: [][]Cell{cells("plain", "ticker"), cells("ticker"), cells()},
	}, testRegistry(t, time.Second), ps, WithLogger(logx.Nop()))
	require.NoError(t, err)

	ws := d.Widgets()
	require.Len(t, ws, 3)
	require.Len(t, ws[0], 2)
	require.Len(t, ws[1], 1)
	assert.Empty(t, ws[2])
	assert.Equal(t, "plain", ws[0][0].Name())
	assert.Equal(t, "ticker", ws[0][1].Name())

	jobs := d.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, ws[0][1].ID(), jobs[0].WidgetID())
	assert.Equal(t, ws[1][0].ID(), jobs[1].WidgetID())
	assert.Equal(t, time.Second, jobs[0].Every())

	rm := d.RenderModel()
	assert.Equal(t, "main", rm.Name)
	assert.Equal(t, "main", rm.Title)
	require.Len(t, rm.Widgets, 3)
	assert.Equal(t, ws[0][1].ID(), rm.Widgets[0][1].ID)
	assert.Equal(t, ws[1][0].ID(), rm.Widgets[1][0].ID)
}

func TestNew_AllOrNothing(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	_, err := New(Descriptor{
		Name:    "main",
		Widgets: [][]Cell{cells("plain", "nope")},
	}, testRegistry(t, time.Second), ps)
	require.Error(t, err)

	var re *widget.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "row 0 cell 1 (nope)")
	assert.Empty(t, ps.handlers, "failed dashboard must not register on pubsub")
}

func TestNew_FactoryErrorNamesCell(t *testing.T) {
	t.Parallel()
	boom := errors.New("token missing")
	reg := widget.NewRegistry(t.TempDir())
	reg.Register(widget.Define("needs-token", func(widget.Options) (*widget.Module, error) {
		return nil, boom
	}))

	_, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("needs-token")}}, reg, newFakePubSub())
	require.ErrorIs(t, err, boom)
	assert.EqualError(t, err, `dashboard "main": row 0 cell 0 (needs-token): token missing`)
}

func TestNew_RequiresName(t *testing.T) {
	t.Parallel()
	_, err := New(Descriptor{}, testRegistry(t, time.Second), newFakePubSub())
	assert.Error(t, err)
}

func TestConnectJoinsDashboardRoom(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{Name: "ops"}, testRegistry(t, time.Second), ps)
	require.NoError(t, err)

	ps.connect("c1")
	ps.connect("c2")
	assert.Equal(t, []string{d.ID()}, ps.joins["c1"])
	assert.Equal(t, []string{d.ID()}, ps.joins["c2"])
}

func TestTask_FireEmitsToRoom(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker")}},
		testRegistry(t, time.Second), ps)
	require.NoError(t, err)

	task := d.Jobs()[0]
	require.NoError(t, task.Fire(context.Background()))

	got := ps.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "main", got[0].Room)
	assert.Equal(t, task.WidgetID()+":update", got[0].Event)
	assert.Equal(t, int64(1), got[0].Data)
	assert.Equal(t, uint64(1), task.Runs())
}

func TestTask_FailuresAreContained(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("failing", "panicky")}},
		testRegistry(t, time.Second), newFakePubSub(), WithMetrics(m))
	require.NoError(t, err)

	failing, panicky := d.Jobs()[0], d.Jobs()[1]

	err = failing.Fire(context.Background())
	assert.EqualError(t, err, "upstream down")
	err = panicky.Fire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil map")

	// Still usable after a panic.
	assert.Error(t, panicky.Fire(context.Background()))
	assert.Equal(t, uint64(2), panicky.Failures())

	info := failing.Info()
	assert.Equal(t, "upstream down", info.LastError)
	assert.Equal(t, uint64(1), info.Runs)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("main", "failing", "error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("main", "panicky", "panic")))
}

func TestStart_FiresImmediatelyThenEveryPeriod(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker")}},
		testRegistry(t, time.Second), ps)
	require.NoError(t, err)

	d.Start(context.Background())
	t.Cleanup(func() { d.Stop(context.Background()) })

	// The first tick must not wait out the one second period.
	require.Eventually(t, func() bool { return len(ps.snapshot()) >= 1 }, 800*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, ps.snapshot(), 1)

	require.Eventually(t, func() bool { return len(ps.snapshot()) >= 2 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, d.Jobs()[0].WidgetID()+":update", ps.snapshot()[1].Event)
}

func TestStart_FailingTaskStaysScheduled(t *testing.T) {
	t.Parallel()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("failing")}},
		testRegistry(t, 30*time.Millisecond), newFakePubSub())
	require.NoError(t, err)

	d.Start(context.Background())
	task := d.Jobs()[0]
	require.Eventually(t, func() bool { return task.Runs() >= 3 }, 2*time.Second, 10*time.Millisecond)

	d.Stop(context.Background())
	assert.False(t, d.Running())
	n := task.Runs()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, task.Runs(), "no ticks after Stop")
}

func TestTask_Stop(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker", "ticker")}},
		testRegistry(t, 20*time.Millisecond), ps)
	require.NoError(t, err)

	stopped, live := d.Jobs()[0], d.Jobs()[1]
	stopped.Stop()
	assert.ErrorIs(t, stopped.Fire(context.Background()), ErrTaskStopped)

	d.Start(context.Background())
	require.Eventually(t, func() bool { return live.Runs() >= 2 }, 2*time.Second, 10*time.Millisecond)
	d.Stop(context.Background())

	assert.Equal(t, uint64(0), stopped.Runs())
	for _, e := range ps.snapshot() {
		assert.Equal(t, live.WidgetID()+":update", e.Event)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker", "plain")}},
		testRegistry(t, time.Hour), newFakePubSub())
	require.NoError(t, err)

	s := d.Snapshot()
	assert.False(t, s.Running)
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, "1h0m0s", s.Tasks[0].Every)
	assert.True(t, s.Tasks[0].Next.IsZero())

	d.Start(context.Background())
	defer d.Stop(context.Background())
	require.Eventually(t, func() bool { return d.Jobs()[0].Runs() == 1 }, time.Second, 10*time.Millisecond)

	s = d.Snapshot()
	assert.True(t, s.Running)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Tasks[0].Next, 5*time.Second)
}

func TestDashboards_AreIsolatedPerNamespace(t *testing.T) {
	t.Parallel()
	br := pubsub.NewBroker(logx.Nop(), nil)
	reg := testRegistry(t, time.Hour)

	// Same dashboard name on purpose: rooms collide, namespaces do not.
	nsA, nsB := br.Namespace("a"), br.Namespace("b")
	da, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker")}}, reg, nsA)
	require.NoError(t, err)
	_, err = New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker")}}, reg, nsB)
	require.NoError(t, err)

	ca := nsA.Connect(8)
	cb := nsB.Connect(8)
	assert.Equal(t, 1, nsA.Members("main"))

	require.NoError(t, da.Jobs()[0].Fire(context.Background()))

	select {
	case m := <-ca.Messages():
		assert.Equal(t, da.Jobs()[0].WidgetID()+":update", m.Event)
	default:
		t.Fatalf("client of dashboard a got nothing")
	}
	select {
	case m := <-cb.Messages():
		t.Fatalf("client of dashboard b got %q", m.Event)
	default:
	}
}

// slowRegistry holds a "slow" widget whose ticks outlast their period and
// record how many ran at once.
func slowRegistry(t *testing.T, every, work time.Duration, cur, peak *atomic.Int64) *widget.Registry {
	t.Helper()
	reg := widget.NewRegistry(t.TempDir())
	reg.Register(widget.Define("slow", func(widget.Options) (*widget.Module, error) {
		return &widget.Module{Job: &widget.Job{
			Schedule: every,
			Script: func(_ context.Context, emit widget.EmitFunc) error {
				n := cur.Add(1)
				defer cur.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(work)
				emit(n)
				return nil
			},
		}}, nil
	}))
	return reg
}

func TestTask_TicksNeverOverlap(t *testing.T) {
	t.Parallel()
	var cur, peak atomic.Int64
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("slow")}},
		slowRegistry(t, 20*time.Millisecond, 100*time.Millisecond, &cur, &peak), newFakePubSub())
	require.NoError(t, err)
	task := d.Jobs()[0]

	d.Start(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = task.Fire(context.Background())
		}()
		require.NoError(t, task.Trigger())
	}
	wg.Wait()
	require.Eventually(t, func() bool { return task.Runs() >= 6 }, 5*time.Second, 10*time.Millisecond)
	d.Stop(context.Background())

	assert.Equal(t, int64(1), peak.Load())
	assert.Equal(t, int64(0), cur.Load())
}

func TestTask_JobTimeout(t *testing.T) {
	t.Parallel()
	reg := widget.NewRegistry(t.TempDir())
	reg.Register(widget.Define("hang", func(widget.Options) (*widget.Module, error) {
		return &widget.Module{Job: &widget.Job{
			Schedule: time.Hour,
			Script: func(ctx context.Context, _ widget.EmitFunc) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}}, nil
	}))
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("hang")}}, reg, newFakePubSub(),
		WithJobTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = d.Jobs()[0].Fire(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), d.Jobs()[0].Failures())
}

func TestTask_TriggerLifecycle(t *testing.T) {
	t.Parallel()
	ps := newFakePubSub()
	d, err := New(Descriptor{Name: "main", Widgets: [][]Cell{cells("ticker")}},
		testRegistry(t, time.Hour), ps)
	require.NoError(t, err)
	task := d.Jobs()[0]

	assert.ErrorIs(t, task.Trigger(), ErrNotRunning)

	d.Start(context.Background())
	require.Eventually(t, func() bool { return task.Runs() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, task.Trigger())
	require.Eventually(t, func() bool { return task.Runs() == 2 }, time.Second, 10*time.Millisecond)
	assert.Len(t, ps.snapshot(), 2)

	d.Stop(context.Background())
	assert.ErrorIs(t, task.Trigger(), ErrNotRunning)
	task.Stop()
	assert.ErrorIs(t, task.Trigger(), ErrTaskStopped)
}
