// Package clock is a widget that shows the server's wall clock.
package clock

import (
	"context"
	"fmt"
	"time"

	"tileboard/internal/widget"
)

// Name is the registry name of the widget.
const Name = "clock"

// Tick is the payload pushed on every run.
type Tick struct {
	Time string `json:"time"`
	Date string `json:"date"`
	Zone string `json:"zone"`
	Unix int64  `json:"unix"`
}

type config struct {
	Format     string `json:"format"`
	DateFormat string `json:"date_format"`
	Location   string `json:"location"`
}

var defaults = widget.Options{
	"title":       "Clock",
	"format":      "15:04:05",
	"date_format": "Mon, 02 Jan 2006",
	"every":       "1s",
}

// now is swapped in tests.
var now = time.Now

// Factory returns the clock widget definition.
func Factory() widget.Factory { return widget.Define(Name, register) }

func register(opts widget.Options) (*widget.Module, error) {
	opts = widget.MergeOptions(defaults, opts)

	cfg, err := widget.DecodeOptions[config](opts)
	if err != nil {
		return nil, fmt.Errorf("clock options: %w", err)
	}
	loc := time.Local
	if cfg.Location != "" {
		loc, err = time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("clock location: %w", err)
		}
	}
	every, err := widget.ScheduleOption(opts, "every", time.Second)
	if err != nil {
		return nil, err
	}

	return &widget.Module{
		Markup: widget.Paths{"markup.html"},
		CSS:    widget.Paths{"style.css"},
		Update: "update.js",
		Job: &widget.Job{
			Schedule: every,
			Script: func(_ context.Context, emit widget.EmitFunc) error {
				emit(tick(now().In(loc), cfg))
				return nil
			},
		},
	}, nil
}

func tick(t time.Time, cfg config) Tick {
	zone, _ := t.Zone()
	return Tick{
		Time: t.Format(cfg.Format),
		Date: t.Format(cfg.DateFormat),
		Zone: zone,
		Unix: t.Unix(),
	}
}
