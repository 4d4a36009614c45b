// Package app wires configuration, logging, widgets, dashboards and the HTTP
// server into one process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tileboard/internal/config"
	"tileboard/internal/dashboard"
	"tileboard/internal/pubsub"
	"tileboard/internal/runtime/supervisor"
	"tileboard/internal/server"
	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service

	metrics    *prometheus.Registry
	widgets    *widget.Registry
	broker     *pubsub.Broker
	dashboards []*dashboard.Dashboard
	srv        *server.Server

	sup *supervisor.Supervisor
}

type Option func(*options)

type options struct {
	addr      string
	factories []widget.Factory
}

// WithAddr overrides server.addr from the config file.
func WithAddr(addr string) Option { return func(o *options) { o.addr = addr } }

// WithWidgets registers widget factories. Resources of factory <name> are
// read from <widgets.dir>/<name>.
func WithWidgets(fs ...widget.Factory) Option {
	return func(o *options) { o.factories = append(o.factories, fs...) }
}

// New loads the config at cfgPath and builds every dashboard. Any widget
// that fails to build fails New.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if o.addr != "" {
		c := *cfg
		c.Server.Addr = o.addr
		cfg = &c
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{
		cfgm: cfgm,
		cfg:  cfg,
		log:  log.With(logx.Component("app")),
		logs: logSvc,
	}
	if err := a.build(cfg, log, o.factories); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger, factories []widget.Factory) error {
	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return err
	}
	timeout, err := jobTimeout(cfg)
	if err != nil {
		return err
	}

	var reg prometheus.Registerer
	if cfg.Metrics.Enabled {
		a.metrics = prometheus.NewRegistry()
		a.metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = a.metrics
	}

	a.widgets = widget.NewRegistry(widgetsDir(cfg))
	a.widgets.Register(factories...)

	a.broker = pubsub.NewBroker(log.With(logx.Component("pubsub")), pubsub.NewMetrics(reg))
	dm := dashboard.NewMetrics(reg)

	for _, dc := range cfg.Dashboards {
		d, err := dashboard.New(descriptor(dc), a.widgets, a.broker.Namespace(dc.Name),
			dashboard.WithLogger(log.With(logx.Component("dashboard"))),
			dashboard.WithMetrics(dm),
			dashboard.WithJobTimeout(timeout),
		)
		if err != nil {
			return err
		}
		a.dashboards = append(a.dashboards, d)
		a.log.Info("dashboard built",
			logx.Dashboard(d.ID()),
			logx.Int("widgets", countWidgets(d)),
			logx.Int("jobs", len(d.Jobs())),
		)
	}

	srvOpts := []server.Option{server.WithHealth(a.health), server.WithStatus(a.routines)}
	if a.metrics != nil {
		srvOpts = append(srvOpts, server.WithGatherer(a.metrics))
	}
	a.srv, err = server.New(srvCfg, a.dashboards, a.broker, log.With(logx.Component("http")), srvOpts...)
	return err
}

func countWidgets(d *dashboard.Dashboard) int {
	n := 0
	for _, row := range d.Widgets() {
		n += len(row)
	}
	return n
}

// Handler exposes the HTTP handler without starting the listener.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

func (a *App) Dashboards() []*dashboard.Dashboard {
	return append([]*dashboard.Dashboard(nil), a.dashboards...)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// routines reports the supervised goroutines, or nil before Start.
func (a *App) routines() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	for _, d := range a.dashboards {
		if !d.Running() {
			return fmt.Errorf("dashboard %q is not running", d.ID())
		}
	}
	return nil
}

// Start launches dashboard jobs, the HTTP server and the config watcher.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.Component("supervisor"))), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(a.validate)

	for _, d := range a.dashboards {
		d.Start(a.sup.Context())
	}

	a.sup.Go("http", a.srv.Run)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", time.Second, 30*time.Second, a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", a.watchdog)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("dashboards", len(a.dashboards)), logx.String("addr", a.cfg.Server.Addr))
	return nil
}

// validate rejects reloads whose widget references no longer resolve.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	var errs []error
	for _, d := range cfg.Dashboards {
		for r, row := range d.Widgets {
			for c, cell := range row {
				if _, _, err := a.widgets.Resolve(strings.TrimSpace(cell.Widget)); err != nil {
					errs = append(errs, fmt.Errorf("dashboard %q: row %d cell %d: %w", d.Name, r, c, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)

	a.sup.Cancel()

	// Each step gets its own bound so one component can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(stepCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("dashboards", 5*time.Second, func(c context.Context) error {
		for _, d := range a.dashboards {
			d.Stop(c)
		}
		return c.Err()
	})
	var err error
	step("supervisor", 10*time.Second, func(c context.Context) error {
		err = a.sup.Wait(c)
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
