package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tileboard/internal/config"
	"tileboard/internal/runtime/supervisor"
	"tileboard/internal/widget"
	"tileboard/pkg/logx"
	"tileboard/widgets/builtin"
)

const testConfig = `
logging:
  level: error
  console: false
server:
  addr: "127.0.0.1:0"
  ws:
    allowed_origins: ["http://dash.example"]
metrics:
  enabled: true
widgets:
  dir: ../../widgets
jobs:
  timeout: 5s
dashboards:
  - name: main
    title: Main board
    widgets:
      - - widget: heading
          options: {title: Welcome}
        - widget: clock
          options: {every: 1h}
  - name: ops
    widgets:
      - - widget: dial
          options: {min: 0, max: 10, value: 3}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tileboard.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func stubNotify(t *testing.T) *[]string {
	t.Helper()
	var states []string
	old := sdNotify
	sdNotify = func(state string) (bool, error) {
		states = append(states, state)
		return false, nil
	}
	t.Cleanup(func() { sdNotify = old })
	return &states
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestNew_BuildsDashboards(t *testing.T) {
	a, err := New(writeConfig(t, testConfig), WithWidgets(builtin.All()...))
	require.NoError(t, err)

	ds := a.Dashboards()
	require.Len(t, ds, 2)
	assert.Equal(t, "main", ds[0].ID())
	assert.Equal(t, "Main board", ds[0].Title())
	assert.Len(t, ds[0].Jobs(), 1)
	assert.Empty(t, ds[1].Jobs())

	code, body := get(t, a.Handler(), "/d/main")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<h1>Welcome</h1>")
	assert.Contains(t, body, "tb-clock")

	code, body = get(t, a.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_UnknownWidgetFails(t *testing.T) {
	cfg := strings.Replace(testConfig, "widget: clock", "widget: nope", 1)
	_, err := New(writeConfig(t, cfg), WithWidgets(builtin.All()...))
	require.Error(t, err)
	var re *widget.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.Ref)
	assert.Contains(t, err.Error(), `dashboard "main"`)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(writeConfig(t, "dashboards: []\n"))
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	states := stubNotify(t)
	a, err := New(writeConfig(t, testConfig), WithWidgets(builtin.All()...), WithAddr("127.0.0.1:0"))
	require.NoError(t, err)
	assert.Nil(t, a.routines())

	require.NoError(t, a.Start(context.Background()))
	require.Error(t, a.Start(context.Background()))

	require.Eventually(t, func() bool { return a.health() == nil }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		names := map[string]bool{}
		for _, st := range a.routines().([]supervisor.Stats) {
			names[st.Name] = st.Active == 1
		}
		return names["http"] && names["config.reload"] && names["config.watch"]
	}, 2*time.Second, 10*time.Millisecond)
	for _, d := range a.Dashboards() {
		assert.True(t, d.Running(), d.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))

	select {
	case <-a.Done():
	default:
		t.Fatal("app context not canceled after Stop")
	}
	assert.NoError(t, a.Err())
	for _, d := range a.Dashboards() {
		assert.False(t, d.Running(), d.ID())
	}
	assert.Equal(t, []string{"READY=1", "STOPPING=1"}, *states)
}

func TestValidate_RejectsUnresolvableWidgets(t *testing.T) {
	a, err := New(writeConfig(t, testConfig), WithWidgets(builtin.All()...))
	require.NoError(t, err)

	cfg, err := config.Decode("x.yaml", []byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, a.validate(context.Background(), cfg))

	cfg.Dashboards[1].Widgets[0][0].Widget = "gone"
	err = a.validate(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `dashboard "ops": row 0 cell 0`)
}

func TestApply_ReportsRestartRequired(t *testing.T) {
	a, err := New(writeConfig(t, testConfig), WithWidgets(builtin.All()...))
	require.NoError(t, err)
	var buf bytes.Buffer
	a.log = logx.NewWriter(&buf, "debug")

	prev := a.cfgm.Get()
	next := *prev
	next.Logging.Level = "warn"
	a.apply(prev, &next)
	assert.Contains(t, buf.String(), "config reloaded")
	assert.NotContains(t, buf.String(), "restart required")

	buf.Reset()
	later := next
	later.Jobs.Timeout = "1m"
	a.apply(&next, &later)
	assert.Contains(t, buf.String(), "restart required")
	assert.Contains(t, buf.String(), "jobs")

	buf.Reset()
	a.apply(&later, &later)
	assert.Contains(t, buf.String(), "no changes")
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()
	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://dash.example", "localhost:8080"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/main", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("")))
	assert.True(t, check(req("http://dash.example")))
	assert.True(t, check(req("http://LOCALHOST:8080")))
	assert.False(t, check(req("http://evil.example")))
}

func TestMapServerConfig_Defaults(t *testing.T) {
	t.Parallel()
	sc, err := mapServerConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, ":8080", sc.Addr)
	assert.Equal(t, 10*time.Second, sc.ReadTimeout)
	assert.Equal(t, 60*time.Second, sc.IdleTimeout)
	assert.Empty(t, sc.MetricsPath)

	sc, err = mapServerConfig(&config.Config{Metrics: config.MetricsConfig{Enabled: true}})
	require.NoError(t, err)
	assert.Equal(t, "/metrics", sc.MetricsPath)

	_, err = mapServerConfig(&config.Config{Server: config.ServerConfig{ReadTimeout: "soon"}})
	assert.Error(t, err)
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	d, err := jobTimeout(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = jobTimeout(&config.Config{Jobs: config.JobsConfig{Timeout: "0s"}})
	require.NoError(t, err)
	assert.Zero(t, d)
}
