package widget

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a job period.
//
// Supported forms:
//   - Go duration: "500ms", "55m", "2h30m"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - cron-style "@every 30s"
//
// "interval:" and "every:" prefixes are accepted and ignored.
func ParseSchedule(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("interval required")
	}
	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:", "@every "} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	if s == "" {
		return 0, fmt.Errorf("interval required after prefix in %q", raw)
	}

	var d time.Duration
	if m := reHHMM.FindStringSubmatch(s); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", raw)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", raw)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// ScheduleOption reads a period from options[key], accepting either a
// string understood by ParseSchedule or a number of seconds.
// def is returned when the key is absent.
func ScheduleOption(opts Options, key string, def time.Duration) (time.Duration, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case string:
		return ParseSchedule(x)
	case time.Duration:
		if x <= 0 {
			return 0, fmt.Errorf("%s: interval must be > 0", key)
		}
		return x, nil
	case int:
		return secondsOption(key, float64(x))
	case int64:
		return secondsOption(key, float64(x))
	case float64:
		return secondsOption(key, x)
	default:
		return 0, fmt.Errorf("%s: unsupported interval type %T", key, v)
	}
}

func secondsOption(key string, sec float64) (time.Duration, error) {
	if sec <= 0 {
		return 0, fmt.Errorf("%s: interval must be > 0", key)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
