package dial

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileboard/internal/widget"
)

func TestDial_StaticHasNoJob(t *testing.T) {
	reg := widget.NewRegistry("..")
	reg.Register(Factory())

	w, err := widget.New(reg, Name, widget.Options{"min": -50, "max": 60, "value": 12, "unit": "°C", "label": "Outside"})
	require.NoError(t, err)
	assert.Nil(t, w.Job())
	assert.Contains(t, w.Markup(), `data-min="-50"`)
	assert.Contains(t, w.Markup(), `data-value="12"`)
	assert.Contains(t, w.Markup(), "Outside")
	assert.Contains(t, w.JS(), "$widget.set = function")
	assert.Contains(t, w.JS(), "socket.on('"+w.ID()+":update'")
}

func TestDial_InvalidOptions(t *testing.T) {
	t.Parallel()
	cases := []widget.Options{
		{"min": 10, "max": 10},
		{"url": "not a url", "field": "x"},
		{"url": "http://example.test"},
		{"url": "http://example.test", "field": "a", "selector": "b"},
		{"url": "http://example.test", "field": "a", "timeout": "-1s"},
		{"url": "http://example.test", "field": "a", "every": "never"},
	}
	for _, opts := range cases {
		_, err := register(opts)
		assert.Error(t, err, "options %v", opts)
	}
}

func TestDial_PollsJSONField(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sensors":[{"temp":21.5},{"temp":"150"}]}`))
	}))
	defer srv.Close()

	mod, err := register(widget.Options{"url": srv.URL, "field": "sensors.0.temp", "min": 0, "max": 50, "every": "5s"})
	require.NoError(t, err)
	require.NotNil(t, mod.Job)

	var got []any
	require.NoError(t, mod.Job.Script(context.Background(), func(v any) { got = append(got, v) }))
	require.Len(t, got, 1)
	assert.Equal(t, Reading{Value: 21.5, Min: 0, Max: 50, Ratio: 0.43}, got[0])

	mod, err = register(widget.Options{"url": srv.URL, "field": "sensors.1.temp", "max": 100})
	require.NoError(t, err)
	got = nil
	require.NoError(t, mod.Job.Script(context.Background(), func(v any) { got = append(got, v) }))
	assert.Equal(t, 1.0, got[0].(Reading).Ratio)
}

func TestDial_PollsHTMLSelector(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="stat"><span id="cpu"> 73% </span></div></body></html>`))
	}))
	defer srv.Close()

	mod, err := register(widget.Options{"url": srv.URL, "selector": "#cpu"})
	require.NoError(t, err)

	var got Reading
	require.NoError(t, mod.Job.Script(context.Background(), func(v any) { got = v.(Reading) }))
	assert.Equal(t, 73.0, got.Value)
	assert.InDelta(t, 0.73, got.Ratio, 1e-9)
}

func TestDial_SourceErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "nope", http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`{"a":{"b":"x"}}`))
		}
	}))
	defer srv.Close()

	cases := []struct {
		opts widget.Options
		want string
	}{
		{widget.Options{"url": srv.URL + "/down", "field": "a"}, "status code 503"},
		{widget.Options{"url": srv.URL, "field": "a.c"}, "not found"},
		{widget.Options{"url": srv.URL, "field": "a.b"}, "not a number"},
		{widget.Options{"url": srv.URL, "selector": "#missing"}, "no elements"},
	}
	for _, tc := range cases {
		mod, err := register(tc.opts)
		require.NoError(t, err)
		err = mod.Job.Script(context.Background(), func(any) { t.Fatal("unexpected emit") })
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), tc.want), "%v: %v", tc.opts, err)
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]float64{" 42.5 ": 42.5, "1,024": 1024, "73%": 73, "-3": -3} {
		got, err := parseNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseNumber("n/a")
	assert.Error(t, err)
}
