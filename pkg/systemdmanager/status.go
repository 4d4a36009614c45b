// Package systemdmanager reads systemd unit state over D-Bus.
//
// Only read access is exposed. On non-linux builds NewReader returns
// ErrUnsupported.
package systemdmanager

import (
	"sort"
	"strings"
	"time"
)

// UnitStatus is the state of one unit.
type UnitStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      string    `json:"active"`     // active, inactive, failed, ...
	SubState    string    `json:"sub_state"`  // running, dead, exited, ...
	LoadState   string    `json:"load_state"` // loaded, not-found, masked, ...
	ActiveSince time.Time `json:"active_since,omitempty"`
}

// Found reports whether systemd knows the unit.
func (s UnitStatus) Found() bool {
	return s.LoadState != "not-found" && s.SubState != "not-found"
}

// Healthy reports whether the unit is active.
func (s UnitStatus) Healthy() bool { return s.Active == "active" }

// UnitName returns name with a ".service" suffix unless it already carries
// a unit type suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		switch name[i+1:] {
		case "service", "socket", "timer", "mount", "target", "path", "slice", "scope", "device", "swap", "automount":
			return name
		}
	}
	return name + ".service"
}

// ShortName strips the ".service" suffix for display.
func ShortName(unit string) string { return strings.TrimSuffix(unit, ".service") }

func notFound(unit string) UnitStatus {
	return UnitStatus{
		Name:      ShortName(unit),
		Active:    "unknown",
		SubState:  "not-found",
		LoadState: "not-found",
	}
}

// order returns statuses in the order of the requested names.
func order(names []string, byUnit map[string]UnitStatus) []UnitStatus {
	out := make([]UnitStatus, 0, len(names))
	for _, n := range names {
		u := UnitName(n)
		if st, ok := byUnit[u]; ok {
			out = append(out, st)
			continue
		}
		out = append(out, notFound(u))
	}
	return out
}

// Sort orders statuses with unhealthy units first, then by name.
func Sort(sts []UnitStatus) {
	sort.SliceStable(sts, func(i, j int) bool {
		if sts[i].Healthy() != sts[j].Healthy() {
			return !sts[i].Healthy()
		}
		return sts[i].Name < sts[j].Name
	})
}

// parseTimestamp converts a systemd timestamp (microseconds since the Unix
// epoch) into a time.Time. Zero and non-numeric values yield the zero time.
func parseTimestamp(v any) time.Time {
	if ts, ok := v.(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}
