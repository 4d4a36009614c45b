package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var reName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Validate checks the parts of the config that can be checked without
// building widgets.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"server.ws.pong_wait":     c.Server.WS.PongWait,
		"server.ws.write_wait":    c.Server.WS.WriteWait,
		"jobs.timeout":            c.Jobs.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Server.WS.Buffer < 0 {
		add("server.ws.buffer must be >= 0")
	}
	if p := strings.TrimSpace(c.Metrics.Path); p != "" && !strings.HasPrefix(p, "/") {
		add("metrics.path must start with '/' (got %q)", p)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path required when file logging is enabled")
	}

	if len(c.Dashboards) == 0 {
		add("at least one dashboard required")
	}
	seen := map[string]bool{}
	for i, d := range c.Dashboards {
		name := strings.TrimSpace(d.Name)
		switch {
		case name == "":
			add("dashboards[%d].name required", i)
		case !reName.MatchString(name):
			add("dashboards[%d].name %q: use letters, digits, '.', '_' or '-'", i, name)
		case seen[name]:
			add("dashboards[%d].name %q is duplicated", i, name)
		}
		seen[name] = true
		for r, row := range d.Widgets {
			for col, cell := range row {
				if strings.TrimSpace(cell.Widget) == "" {
					add("dashboards[%d].widgets[%d][%d].widget required", i, r, col)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// ParseDurationField parses a duration-valued field. Empty means zero and
// negative values are rejected. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0 (got %s)", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
