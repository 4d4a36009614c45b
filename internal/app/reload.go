package app

import (
	"context"
	"strings"

	"tileboard/internal/config"
	"tileboard/pkg/logx"
)

// reloadLoop applies logging changes from the config watcher. Everything
// else is only read at startup and is reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			cfg = latest(sub, cfg)
			a.apply(last, cfg)
			last = cfg
		}
	}
}

// latest drains queued configs so a burst of writes is applied once.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)

	a.logs.Apply(mapLogConfig(next))

	if ch.RestartRequired {
		a.log.Warn("config changed; restart required for changes to take effect", fields...)
		return
	}
	a.log.Info("config reloaded", fields...)
}
