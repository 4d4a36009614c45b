// Package speedtest is a widget that periodically measures link throughput.
package speedtest

import (
	"context"
	"fmt"
	"time"

	"tileboard/internal/widget"
	"tileboard/pkg/speedtest"
)

const Name = "speedtest"

// minEvery keeps the widget from hammering public test servers.
const minEvery = 10 * time.Minute

// Report is the payload pushed after every completed run.
type Report struct {
	Latest  speedtest.Result   `json:"latest"`
	Recent  []speedtest.Result `json:"recent"`
	Summary *speedtest.Summary `json:"summary,omitempty"`
}

type config struct {
	ServerCount     int  `json:"server_count"`
	FullTestServers int  `json:"full_test_servers"`
	MaxConnections  int  `json:"max_connections"`
	SavingMode      bool `json:"saving_mode"`
	PacketLoss      bool `json:"packet_loss"`
	History         int  `json:"history"`
}

type measurer interface {
	Run(ctx context.Context) (*speedtest.Result, error)
}

var newMeasurer = func(cfg speedtest.RunConfig) measurer { return speedtest.NewRunner(cfg) }

// Factory returns the speedtest widget definition.
func Factory() widget.Factory { return widget.Define(Name, register) }

func register(opts widget.Options) (*widget.Module, error) {
	cfg, err := widget.DecodeOptions[config](opts)
	if err != nil {
		return nil, err
	}
	every, err := widget.ScheduleOption(opts, "every", time.Hour)
	if err != nil {
		return nil, err
	}
	if every < minEvery {
		return nil, fmt.Errorf("speedtest: every must be at least %s (got %s)", minEvery, every)
	}

	m := newMeasurer(speedtest.RunConfig{
		ServerCount:       cfg.ServerCount,
		FullTestServers:   cfg.FullTestServers,
		MaxConnections:    cfg.MaxConnections,
		SavingMode:        cfg.SavingMode,
		PacketLossEnabled: cfg.PacketLoss,
	})
	hist := speedtest.NewHistory(cfg.History)

	return &widget.Module{
		Markup:   widget.Paths{"markup.html"},
		ClientJS: widget.Paths{"client.js"},
		CSS:      widget.Paths{"style.css"},
		Update:   "update.js",
		Job: &widget.Job{
			Schedule: every,
			Script: func(ctx context.Context, emit widget.EmitFunc) error {
				res, err := m.Run(ctx)
				if err != nil {
					return fmt.Errorf("speedtest: %w", err)
				}
				hist.Add(*res)
				emit(Report{
					Latest:  *res,
					Recent:  hist.Recent(0),
					Summary: hist.Summarize(24*time.Hour, res.Timestamp),
				})
				return nil
			},
		},
	}, nil
}
