package config

import (
	"reflect"
	"strings"

	"tileboard/pkg/logx"
)

// Change describes what differs between two configs.
type Change struct {
	Sections []string
	Fields   []logx.Field
	// RestartRequired is set when a section that is only read at startup changed.
	RestartRequired bool
}

// SummarizeChange compares two configs section by section.
//
// Only logging is applied at runtime. Widgets are built once at startup, so
// any change to dashboards, widgets, jobs or the server needs a restart.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		ch.Sections = append(ch.Sections, "server")
		ch.Fields = append(ch.Fields, logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)))
		ch.RestartRequired = true
	}
	if oldCfg.Metrics != newCfg.Metrics {
		ch.Sections = append(ch.Sections, "metrics")
		ch.RestartRequired = true
	}
	if oldCfg.Widgets != newCfg.Widgets {
		ch.Sections = append(ch.Sections, "widgets")
		ch.RestartRequired = true
	}
	if oldCfg.Jobs != newCfg.Jobs {
		ch.Sections = append(ch.Sections, "jobs")
		ch.RestartRequired = true
	}
	if !reflect.DeepEqual(oldCfg.Dashboards, newCfg.Dashboards) {
		ch.Sections = append(ch.Sections, "dashboards")
		ch.Fields = append(ch.Fields, logx.Strings("dashboards.changed", changedDashboards(oldCfg, newCfg)))
		ch.RestartRequired = true
	}
	return ch
}

func changedDashboards(oldCfg, newCfg *Config) []string {
	var out []string
	for _, d := range newCfg.Dashboards {
		prev, ok := oldCfg.Dashboard(d.Name)
		if !ok || !reflect.DeepEqual(prev, d) {
			out = append(out, d.Name)
		}
	}
	for _, d := range oldCfg.Dashboards {
		if _, ok := newCfg.Dashboard(d.Name); !ok {
			out = append(out, d.Name)
		}
	}
	return out
}
