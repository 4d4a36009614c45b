package widget

import (
	"errors"
	"fmt"
)

// ErrNotFound matches any *ResolutionError via errors.Is.
var ErrNotFound = errors.New("widget not found")

// ResolutionError reports a widget reference that no lookup strategy could locate.
type ResolutionError struct {
	Ref  string
	Path string // last attempted location (working-dir relative lookup)
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve widget %q (tried registry and %s)", e.Ref, e.Path)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrNotFound }

// InitializationError reports a module a factory returned that cannot be
// built, such as a job without a script. Factories may return it too.
type InitializationError struct {
	Widget string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("widget %q: register: %v", e.Widget, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// MissingResourceError reports a declared fragment that does not exist on disk.
type MissingResourceError struct {
	Path string // resolved absolute path
}

func (e *MissingResourceError) Error() string {
	return "could not load widget component from " + e.Path
}

// TemplateError reports markup that failed to parse or execute.
type TemplateError struct {
	Widget string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("widget %q: markup template: %v", e.Widget, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }
