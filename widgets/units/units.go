// Package units is a widget showing the state of a list of systemd units.
package units

import (
	"context"
	"errors"
	"sync"
	"time"

	"tileboard/internal/widget"
	"tileboard/pkg/systemdmanager"
)

const Name = "units"

// Report is the payload pushed on every run.
type Report struct {
	Units   []Unit `json:"units"`
	Healthy int    `json:"healthy"`
	Total   int    `json:"total"`
}

// Unit is one row of the report.
type Unit struct {
	systemdmanager.UnitStatus
	Uptime string `json:"uptime,omitempty"`
}

type config struct {
	Units        []string `json:"units"`
	FailingFirst bool     `json:"failing_first"`
}

// statusSource is the part of systemdmanager.Reader the widget needs.
type statusSource interface {
	Statuses(ctx context.Context, names []string) ([]systemdmanager.UnitStatus, error)
	Close() error
}

// dial opens a status source; replaced in tests.
var dial = func(ctx context.Context) (statusSource, error) {
	return systemdmanager.NewReader(ctx)
}

var errNoUnits = errors.New("units: option \"units\" must list at least one unit")

// Factory returns the units widget definition.
func Factory() widget.Factory { return widget.Define(Name, register) }

func register(opts widget.Options) (*widget.Module, error) {
	cfg, err := widget.DecodeOptions[config](opts)
	if err != nil {
		return nil, err
	}
	if len(cfg.Units) == 0 {
		return nil, errNoUnits
	}
	every, err := widget.ScheduleOption(opts, "every", 30*time.Second)
	if err != nil {
		return nil, err
	}

	p := &prober{names: cfg.Units, failingFirst: cfg.FailingFirst}
	return &widget.Module{
		Markup: widget.Paths{"markup.html"},
		CSS:    widget.Paths{"style.css"},
		Update: "update.js",
		Job:    &widget.Job{Schedule: every, Script: p.run},
	}, nil
}

// prober keeps one bus connection per widget and reconnects after errors.
type prober struct {
	names        []string
	failingFirst bool

	mu  sync.Mutex
	src statusSource
}

func (p *prober) run(ctx context.Context, emit widget.EmitFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil {
		src, err := dial(ctx)
		if err != nil {
			return err
		}
		p.src = src
	}
	sts, err := p.src.Statuses(ctx, p.names)
	if err != nil {
		_ = p.src.Close()
		p.src = nil
		return err
	}
	if p.failingFirst {
		systemdmanager.Sort(sts)
	}
	emit(report(sts, time.Now()))
	return nil
}

func report(sts []systemdmanager.UnitStatus, now time.Time) Report {
	r := Report{Units: make([]Unit, 0, len(sts)), Total: len(sts)}
	for _, st := range sts {
		u := Unit{UnitStatus: st}
		if st.Healthy() {
			r.Healthy++
			if !st.ActiveSince.IsZero() {
				u.Uptime = now.Sub(st.ActiveSince).Truncate(time.Second).String()
			}
		}
		r.Units = append(r.Units, u)
	}
	return r
}
