package widget

import (
	"fmt"
	"strings"
)

// UpdateEvent is the event name a widget's job results are emitted under.
func UpdateEvent(id string) string { return id + ":update" }

// wrapScript builds the client script for one widget.
//
// The result declares a per-widget state object "widget_<id>", registers the
// update fragment (when declared) as the handler for "<id>:update" with
// ($id, $widget, $data) in scope, then runs the client script once with
// ($id, $widget). A widget with neither fragment produces "".
func wrapScript(id, clientJS, update string, hasUpdate bool) string {
	if !hasUpdate && clientJS == "" {
		return ""
	}
	state := "widget_" + id
	var b strings.Builder
	fmt.Fprintf(&b, "var %s = {};\n", state)
	if hasUpdate {
		fmt.Fprintf(&b, "socket.on('%s', function($id, $widget, $data) {\n%s\n}.bind(this, '%s', %s));\n",
			UpdateEvent(id), update, id, state)
	}
	if clientJS != "" {
		fmt.Fprintf(&b, "(function($id, $widget) {\n%s\n}('%s', %s));\n", clientJS, id, state)
	}
	return strings.TrimRight(b.String(), "\n")
}
