package app

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"tileboard/internal/config"
	"tileboard/internal/dashboard"
	"tileboard/internal/server"
	"tileboard/internal/transport/ws"
	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

const (
	defaultAddr        = ":8080"
	defaultMetricsPath = "/metrics"
	defaultWidgetsDir  = "./widgets"
	defaultJobTimeout  = 30 * time.Second
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := cfg.Server
	out := server.Config{
		Addr:  strings.TrimSpace(sc.Addr),
		Pprof: sc.Pprof,
	}
	if out.Addr == "" {
		out.Addr = defaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 10*time.Second); err != nil {
		return server.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 10*time.Second); err != nil {
		return server.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, 60*time.Second); err != nil {
		return server.Config{}, err
	}
	if out.ShutdownTimeout, err = config.ParseDurationOrDefault("server.shutdown_timeout", sc.ShutdownTimeout, 10*time.Second); err != nil {
		return server.Config{}, err
	}
	if cfg.Metrics.Enabled {
		out.MetricsPath = strings.TrimSpace(cfg.Metrics.Path)
		if out.MetricsPath == "" {
			out.MetricsPath = defaultMetricsPath
		}
	}

	out.WS = ws.Config{
		Buffer:      sc.WS.Buffer,
		CheckOrigin: originChecker(sc.WS.AllowedOrigins),
	}
	if out.WS.PongWait, err = config.ParseDurationField("server.ws.pong_wait", sc.WS.PongWait); err != nil {
		return server.Config{}, err
	}
	if out.WS.WriteWait, err = config.ParseDurationField("server.ws.write_wait", sc.WS.WriteWait); err != nil {
		return server.Config{}, err
	}
	return out, nil
}

// originChecker allows requests whose Origin host matches one of allowed.
// An empty list allows every origin. Requests without an Origin header are
// not from a browser and are allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	hosts := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		hosts[strings.ToLower(a)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return hosts[strings.ToLower(u.Host)]
	}
}

func jobTimeout(cfg *config.Config) (time.Duration, error) {
	if strings.TrimSpace(cfg.Jobs.Timeout) == "" {
		return defaultJobTimeout, nil
	}
	return config.ParseDurationField("jobs.timeout", cfg.Jobs.Timeout)
}

func widgetsDir(cfg *config.Config) string {
	if d := strings.TrimSpace(cfg.Widgets.Dir); d != "" {
		return d
	}
	return defaultWidgetsDir
}

func descriptor(dc config.DashboardConfig) dashboard.Descriptor {
	rows := make([][]dashboard.Cell, 0, len(dc.Widgets))
	for _, row := range dc.Widgets {
		cells := make([]dashboard.Cell, 0, len(row))
		for _, c := range row {
			cells = append(cells, dashboard.Cell{Widget: strings.TrimSpace(c.Widget), Options: widget.Options(c.Options)})
		}
		rows = append(rows, cells)
	}
	return dashboard.Descriptor{Name: strings.TrimSpace(dc.Name), Title: dc.Title, Widgets: rows}
}
