package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Options are the free-form per-cell settings handed to a factory.
type Options map[string]any

// Paths is an ordered list of fragment files, relative to the widget directory.
// Multiple files are concatenated with a newline in declaration order.
type Paths []string

// EmitFunc publishes one job result. Where it goes is decided by the caller.
type EmitFunc func(data any)

// Script is the server-side body of a job. It may call emit any number of times.
type Script func(ctx context.Context, emit EmitFunc) error

// Job is a periodic server-side task.
type Job struct {
	Script   Script
	Schedule time.Duration
}

// Module is what a factory returns: the declarative shape of one widget.
// Every field is optional.
type Module struct {
	Markup   Paths
	ClientJS Paths
	CSS      Paths
	// Update is a fragment run on the client for every "<id>:update" event.
	Update string
	Job    *Job
}

func (m *Module) validate() error {
	if m == nil {
		return errors.New("factory returned nil module")
	}
	if m.Job == nil {
		return nil
	}
	if m.Job.Script == nil {
		return errors.New("job script is nil")
	}
	if m.Job.Schedule <= 0 {
		return fmt.Errorf("job schedule must be > 0 (got %s)", m.Job.Schedule)
	}
	return nil
}

// MergeOptions overlays overrides on defaults.
//
// Explicit overrides replace matching keys, keys only present in defaults are
// kept, keys only present in overrides are added. Neither input is modified.
func MergeOptions(defaults, overrides Options) Options {
	out := make(Options, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// DecodeOptions converts options into a typed config struct using json tags.
func DecodeOptions[T any](opts Options) (T, error) {
	var out T
	if len(opts) == 0 {
		return out, nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}
