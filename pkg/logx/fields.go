package logx

// Keys shared by every component, so log queries can filter on one name.
const (
	KeyComponent = "comp"
	KeyDashboard = "dashboard"
	KeyWidget    = "widget"
	KeyWidgetID  = "widget_id"
	KeyConn      = "conn"
	KeyNamespace = "ns"
)

// Component tags a logger with the subsystem that owns it.
func Component(name string) Field { return String(KeyComponent, name) }

func Dashboard(id string) Field { return String(KeyDashboard, id) }

func Conn(id string) Field { return String(KeyConn, id) }

func Namespace(name string) Field { return String(KeyNamespace, name) }

// Widget tags a log line with a widget's registry name and instance id.
func Widget(name, id string) Field {
	return func(e *Event) {
		e.Str(KeyWidget, name).Str(KeyWidgetID, id)
	}
}
