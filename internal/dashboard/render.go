package dashboard

import "tileboard/internal/widget"

// RenderModel is the page renderer's view of a dashboard.
type RenderModel struct {
	Name    string                 `json:"name"`
	Title   string                 `json:"title"`
	Widgets [][]widget.RenderModel `json:"widgets"`
}

func (d *Dashboard) RenderModel() RenderModel {
	rows := make([][]widget.RenderModel, len(d.widgets))
	for i, row := range d.widgets {
		cells := make([]widget.RenderModel, len(row))
		for j, w := range row {
			cells[j] = w.RenderModel()
		}
		rows[i] = cells
	}
	return RenderModel{Name: d.id, Title: d.title, Widgets: rows}
}

// Snapshot is a diagnostic view of a dashboard's scheduling state.
type Snapshot struct {
	Name    string     `json:"name"`
	Running bool       `json:"running"`
	Tasks   []TaskInfo `json:"tasks"`
}

func (d *Dashboard) Snapshot() Snapshot {
	s := Snapshot{Name: d.id, Running: d.Running(), Tasks: make([]TaskInfo, 0, len(d.tasks))}
	for _, t := range d.tasks {
		s.Tasks = append(s.Tasks, t.Info())
	}
	return s
}
