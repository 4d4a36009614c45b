// Package builtin lists the widgets compiled into tileboard.
package builtin

import (
	"tileboard/internal/widget"
	"tileboard/widgets/clock"
	"tileboard/widgets/dial"
	"tileboard/widgets/heading"
	"tileboard/widgets/speedtest"
	"tileboard/widgets/sysstat"
	"tileboard/widgets/units"
)

// All returns a fresh list of every built-in widget factory.
func All() []widget.Factory {
	return []widget.Factory{
		clock.Factory(),
		dial.Factory(),
		heading.Factory(),
		speedtest.Factory(),
		sysstat.Factory(),
		units.Factory(),
	}
}
