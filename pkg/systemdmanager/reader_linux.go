//go:build linux

package systemdmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Reader queries unit state over the system bus.
type Reader struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewReader connects to the systemd system bus.
func NewReader(ctx context.Context) (*Reader, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Reader{conn: conn}, nil
}

// Statuses returns the state of each named unit, in request order. Units
// systemd does not know are reported as not-found rather than as an error.
func (r *Reader) Statuses(ctx context.Context, names []string) ([]UnitStatus, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || !conn.Connected() {
		return nil, errors.New("systemd connection is closed")
	}

	units := make([]string, 0, len(names))
	for _, n := range names {
		if u := UnitName(n); u != "" {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return nil, nil
	}

	listed, err := conn.ListUnitsByNamesContext(ctx, units)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	byUnit := make(map[string]UnitStatus, len(listed))
	for _, u := range listed {
		st := UnitStatus{
			Name:        ShortName(u.Name),
			Description: u.Description,
			Active:      u.ActiveState,
			SubState:    u.SubState,
			LoadState:   u.LoadState,
		}
		if !st.Found() {
			st = notFound(u.Name)
		} else if st.Healthy() {
			if p, err := conn.GetUnitPropertyContext(ctx, u.Name, "ActiveEnterTimestamp"); err == nil {
				st.ActiveSince = parseTimestamp(p.Value.Value())
			}
		}
		byUnit[u.Name] = st
	}
	return order(units, byUnit), nil
}

// Close releases the bus connection. It is safe to call more than once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	return nil
}
