package heading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileboard/internal/widget"
)

func TestHeading_RendersMarkdown(t *testing.T) {
	reg := widget.NewRegistry("..")
	reg.Register(Factory())

	w, err := widget.New(reg, Name, widget.Options{"title": "Ops & Infra", "subtitle": "night shift"})
	require.NoError(t, err)

	assert.Contains(t, w.Markup(), "<h1>Ops &amp; Infra</h1>")
	assert.Contains(t, w.Markup(), "<p>night shift</p>")
	assert.Equal(t, "", w.JS())
	assert.Nil(t, w.Job())
}

func TestHeading_TitleRequired(t *testing.T) {
	reg := widget.NewRegistry("..")
	reg.Register(Factory())

	_, err := widget.New(reg, Name, nil)
	assert.Equal(t, errNoTitle, err)
}
