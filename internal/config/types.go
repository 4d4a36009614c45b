package config

// Config is the on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig     `json:"logging"`
	Server     ServerConfig      `json:"server"`
	Metrics    MetricsConfig     `json:"metrics"`
	Widgets    WidgetsConfig     `json:"widgets"`
	Jobs       JobsConfig        `json:"jobs"`
	Dashboards []DashboardConfig `json:"dashboards"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig controls the HTTP listener.
//
// Defaults (when fields are omitted/zero):
//   - addr: ":8080"
//   - read_timeout: "10s", write_timeout: "10s", idle_timeout: "60s"
//   - shutdown_timeout: "10s"
type ServerConfig struct {
	Addr            string   `json:"addr"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	IdleTimeout     string   `json:"idle_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	Pprof           bool     `json:"pprof,omitempty"`
	WS              WSConfig `json:"ws,omitempty"`
}

// WSConfig tunes websocket clients.
type WSConfig struct {
	Buffer    int    `json:"buffer,omitempty"`
	PongWait  string `json:"pong_wait,omitempty"`
	WriteWait string `json:"write_wait,omitempty"`
	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WidgetsConfig locates widget resources. Built-in widget <name> reads its
// files from <dir>/<name>.
type WidgetsConfig struct {
	Dir string `json:"dir"`
}

// JobsConfig applies to every widget job. Timeout "0s" disables the per-tick deadline.
type JobsConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

type DashboardConfig struct {
	Name    string         `json:"name"`
	Title   string         `json:"title,omitempty"`
	Widgets [][]CellConfig `json:"widgets"`
}

// CellConfig places one widget. Widget is a registered name or a widget
// directory path relative to the working directory.
type CellConfig struct {
	Widget  string         `json:"widget"`
	Options map[string]any `json:"options,omitempty"`
}

// Dashboard returns the dashboard called name.
func (c *Config) Dashboard(name string) (DashboardConfig, bool) {
	for _, d := range c.Dashboards {
		if d.Name == name {
			return d, true
		}
	}
	return DashboardConfig{}, false
}
