// Package widget resolves widget definitions into immutable runtime instances.
//
// A widget is registered once at startup as a Factory under a name and a
// resource directory. Building an Instance:
//   - resolves the reference (registry name, or directory relative to the working dir)
//   - calls the factory with the per-cell options to obtain a Module
//   - reads the declared markup/client script/css/update fragments from disk
//   - assigns a process-unique id that is safe inside script identifiers and CSS ids
//
// Instances never change after construction. Their job (if any) knows nothing
// about channels or event names; the dashboard supplies the emit function.
package widget
