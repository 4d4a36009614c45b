package widget

import "fmt"

// Instance is a built widget. It is immutable after New returns.
type Instance struct {
	id   string
	name string
	base string
	opts Options

	markup    string
	css       string
	clientJS  string
	update    string
	hasUpdate bool
	js        string

	job *Job
}

// RenderModel is the plain-data view of an instance handed to the page renderer.
type RenderModel struct {
	ID     string `json:"id"`
	Markup string `json:"markup"`
	CSS    string `json:"css"`
	JS     string `json:"js"`
}

// New resolves ref through reg, runs its factory with opts and loads every
// declared fragment. A factory's own error is returned unchanged; otherwise
// errors are *ResolutionError, *InitializationError (an invalid module),
// *MissingResourceError or *TemplateError.
func New(reg *Registry, ref string, opts Options) (*Instance, error) {
	f, dir, err := reg.Resolve(ref)
	if err != nil {
		return nil, err
	}
	name := f.Name()
	if opts == nil {
		opts = Options{}
	}

	mod, err := f.Register(opts)
	if err != nil {
		return nil, err
	}
	if err := mod.validate(); err != nil {
		return nil, &InitializationError{Widget: name, Err: err}
	}

	in := &Instance{
		id:   NewID(),
		name: name,
		base: dir,
		opts: opts,
		job:  mod.Job,
	}
	// Markup and its context never change, so it is rendered once here.
	mctx := markupContext(in.id, opts)
	in.markup, err = renderMarkup(dir, mod.Markup, func(src string) (string, error) {
		html, err := reg.Renderer().Render(in.id, src, mctx)
		if err != nil {
			return "", &TemplateError{Widget: name, Err: err}
		}
		return html, nil
	})
	if err != nil {
		return nil, err
	}
	if in.clientJS, err = loadFragments(dir, mod.ClientJS); err != nil {
		return nil, err
	}
	if in.css, err = loadFragments(dir, mod.CSS); err != nil {
		return nil, err
	}
	if mod.Update != "" {
		if in.update, err = loadFragment(dir, mod.Update); err != nil {
			return nil, err
		}
		in.hasUpdate = true
	}

	in.js = wrapScript(in.id, in.clientJS, in.update, in.hasUpdate)
	return in, nil
}

func (w *Instance) ID() string   { return w.id }
func (w *Instance) Name() string { return w.name }

// Base is the directory fragment paths were resolved against.
func (w *Instance) Base() string { return w.base }

// Options returns a copy of the options the widget was built with.
func (w *Instance) Options() Options { return MergeOptions(nil, w.opts) }

func (w *Instance) Markup() string   { return w.markup }
func (w *Instance) CSS() string      { return w.css }
func (w *Instance) ClientJS() string { return w.clientJS }
func (w *Instance) JS() string       { return w.js }

// Update returns the raw update fragment and whether one was declared.
// A declared but empty file yields ("", true).
func (w *Instance) Update() (string, bool) { return w.update, w.hasUpdate }

// Job returns the widget's job, or nil when none was declared.
func (w *Instance) Job() *Job { return w.job }

func (w *Instance) RenderModel() RenderModel {
	return RenderModel{ID: w.id, Markup: w.markup, CSS: w.css, JS: w.js}
}

func (w *Instance) String() string { return fmt.Sprintf("%s(%s)", w.name, w.id) }
