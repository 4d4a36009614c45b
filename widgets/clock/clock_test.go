package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileboard/internal/widget"
)

func TestClock_Build(t *testing.T) {
	reg := widget.NewRegistry("..")
	reg.Register(Factory())

	w, err := widget.New(reg, Name, widget.Options{"title": "UTC", "every": "2s"})
	require.NoError(t, err)

	assert.Contains(t, w.Markup(), `id="`+w.ID()+`"`)
	assert.Contains(t, w.Markup(), "<h2>UTC</h2>")
	assert.Contains(t, w.CSS(), ".tb-clock")
	assert.Contains(t, w.JS(), "socket.on('"+w.ID()+":update'")
	require.NotNil(t, w.Job())
	assert.Equal(t, 2*time.Second, w.Job().Schedule)
}

func TestClock_EmitsFormattedTime(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	old := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = old })

	mod, err := register(widget.Options{"format": "15:04", "location": "UTC"})
	require.NoError(t, err)

	var got []any
	require.NoError(t, mod.Job.Script(context.Background(), func(v any) { got = append(got, v) }))
	require.Len(t, got, 1)
	assert.Equal(t, Tick{Time: "14:05", Date: "Sat, 09 Mar 2024", Zone: "UTC", Unix: fixed.Unix()}, got[0])
	assert.Equal(t, time.Second, mod.Job.Schedule)
}

func TestClock_BadOptions(t *testing.T) {
	t.Parallel()
	_, err := register(widget.Options{"location": "Nowhere/Invalid"})
	require.Error(t, err)

	_, err = register(widget.Options{"every": "soon"})
	require.Error(t, err)
}
