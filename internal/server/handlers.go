package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tileboard/internal/dashboard"
	"tileboard/internal/widget"
	"tileboard/pkg/logx"
)

type cellView struct {
	ID     string
	Markup template.HTML
	CSS    template.CSS
	JS     template.JS
}

type pageView struct {
	Name   string
	Title  string
	Socket string
	Rows   [][]cellView
}

type widgetView struct {
	ID      string              `json:"id"`
	Widget  string              `json:"widget"`
	Options widget.Options      `json:"options"`
	Job     *dashboard.TaskInfo `json:"job,omitempty"`
}

type summary struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Widgets int    `json:"widgets"`
	Jobs    int    `json:"jobs"`
	Running bool   `json:"running"`
}

// Widget content is trusted: it comes from the widget's own files and markup
// is rendered (and its options escaped) when the widget is built.
func pageFor(d *dashboard.Dashboard) pageView {
	rm := d.RenderModel()
	pv := pageView{Name: rm.Name, Title: rm.Title, Socket: "/ws/" + rm.Name}
	pv.Rows = make([][]cellView, len(rm.Widgets))
	for i, row := range rm.Widgets {
		cells := make([]cellView, len(row))
		for j, w := range row {
			cells[j] = cellView{
				ID:     w.ID,
				Markup: template.HTML(w.Markup),
				CSS:    template.CSS(w.CSS),
				JS:     template.JS(w.JS),
			}
		}
		pv.Rows[i] = cells
	}
	return pv
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, bool) {
	d, ok := s.dashboards[chi.URLParam(r, "name")]
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("dashboard not found"))
	}
	return d, ok
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", s.summaries())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboards[chi.URLParam(r, "name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.render(w, "dashboard.html", pageFor(d))
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("page render failed", logx.String("page", name), logx.Err(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) summaries() []summary {
	out := make([]summary, 0, len(s.order))
	for _, d := range s.order {
		n := 0
		for _, row := range d.Widgets() {
			n += len(row)
		}
		out = append(out, summary{
			Name:    d.ID(),
			Title:   d.Title(),
			Widgets: n,
			Jobs:    len(d.Jobs()),
			Running: d.Running(),
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	body := map[string]any{"status": "ok", "dashboards": len(s.order)}
	if s.status != nil {
		body["routines"] = s.status()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.summaries())
}

func (s *Server) handleDashboardModel(w http.ResponseWriter, r *http.Request) {
	if d, ok := s.dashboard(w, r); ok {
		respondJSON(w, http.StatusOK, d.RenderModel())
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if d, ok := s.dashboard(w, r); ok {
		respondJSON(w, http.StatusOK, d.Snapshot())
	}
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	inst, ok := d.Widget(chi.URLParam(r, "widget"))
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("widget not found"))
		return
	}
	view := widgetView{ID: inst.ID(), Widget: inst.Name(), Options: inst.Options()}
	if t, ok := d.Task(inst.ID()); ok {
		info := t.Info()
		view.Job = &info
	}
	respondJSON(w, http.StatusOK, view)
}

// handleFire starts one tick of a widget's job and answers 202 without
// waiting for it. The result reaches clients through the normal update event.
func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	d, ok := s.dashboard(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "widget")
	if _, ok := d.Widget(id); !ok {
		respondError(w, http.StatusNotFound, errors.New("widget not found"))
		return
	}
	t, ok := d.Task(id)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("widget has no job"))
		return
	}
	if err := t.Trigger(); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusAccepted, t.Info())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{Error: err.Error(), Status: status})
}
