package widget

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Factory is a statically registered widget definition.
type Factory interface {
	Name() string
	Register(opts Options) (*Module, error)
}

type funcFactory struct {
	name string
	fn   func(Options) (*Module, error)
}

func (f funcFactory) Name() string                           { return f.name }
func (f funcFactory) Register(opts Options) (*Module, error) { return f.fn(opts) }

// Define adapts a plain function into a Factory.
func Define(name string, fn func(Options) (*Module, error)) Factory {
	return funcFactory{name: name, fn: fn}
}

type definition struct {
	factory Factory
	dir     string
}

// Registry maps widget names (and resource directories) to factories.
type Registry struct {
	mu       sync.RWMutex
	root     string
	workDir  string
	renderer Renderer
	defs     map[string]definition
}

type RegistryOption func(*Registry)

// WithWorkDir sets the directory path references are resolved against
// (default: the process working directory).
func WithWorkDir(dir string) RegistryOption {
	return func(reg *Registry) { reg.workDir = dir }
}

// NewRegistry creates a registry whose widgets keep their resources under
// root/<name>.
func NewRegistry(root string, opts ...RegistryOption) *Registry {
	r := &Registry{
		root:     root,
		renderer: TemplateRenderer{Funcs: markupFuncs},
		defs:     map[string]definition{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds factories with their resource directory at root/<name>.
// A later registration under the same name replaces the earlier one.
func (r *Registry) Register(fs ...Factory) {
	for _, f := range fs {
		if f == nil {
			continue
		}
		r.RegisterDir(f, filepath.Join(r.root, f.Name()))
	}
}

// RegisterDir adds a factory whose resources live in dir.
func (r *Registry) RegisterDir(f Factory, dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	r.mu.Lock()
	r.defs[f.Name()] = definition{factory: f, dir: filepath.Clean(dir)}
	r.mu.Unlock()
}

// Names returns the registered widget names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Renderer returns the markup renderer instances are built with.
func (r *Registry) Renderer() Renderer { return r.renderer }

// Resolve finds the factory for ref and its resource directory.
//
// ref is first looked up as a registered name, then as a directory path
// (relative paths are taken from the working directory) matched against the
// registered resource directories.
func (r *Registry) Resolve(ref string) (Factory, string, error) {
	ref = strings.TrimSpace(ref)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.defs[ref]; ok && ref != "" {
		return d.factory, d.dir, nil
	}

	p := r.lookupPath(ref)
	for _, d := range r.defs {
		if d.dir == p {
			return d.factory, d.dir, nil
		}
	}
	return nil, "", &ResolutionError{Ref: ref, Path: p}
}

func (r *Registry) lookupPath(ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	wd := r.workDir
	if wd == "" {
		wd, _ = os.Getwd()
	}
	p := filepath.Join(wd, ref)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p
}
