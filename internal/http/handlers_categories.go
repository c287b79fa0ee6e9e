package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"conto/internal/category"
)

// pickerRow is one visible line of the category picker.
type pickerRow struct {
	ID       int64
	Label    string
	Depth    int
	Leaf     bool
	Expanded bool
	Selected bool
}

// pickerData is the template payload for the category picker partial.
type pickerData struct {
	Rows     []pickerRow
	Selected string
	Path     string
}

// withView runs fn while holding the view of the current account. Views
// persist across requests, so access is serialized here.
func (s *Server) withView(email string, fn func(*category.View) error) (pickerData, error) {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()

	v, ok := s.views[email]
	if !ok {
		v = category.NewView(s.tree)
		s.views[email] = v
	}

	if err := fn(v); err != nil {
		return pickerData{}, err
	}
	return s.renderRows(v), nil
}

// renderRows flattens the visible part of the tree: roots always show,
// deeper nodes only when every ancestor is expanded.
func (s *Server) renderRows(v *category.View) pickerData {
	selectedID, hasSelection := v.Selected()

	var data pickerData
	var walk func(nodes []*category.Node, depth int)
	walk = func(nodes []*category.Node, depth int) {
		for _, n := range nodes {
			data.Rows = append(data.Rows, pickerRow{
				ID:       n.ID,
				Label:    n.Label,
				Depth:    depth,
				Leaf:     n.Leaf(),
				Expanded: v.Expanded(n.ID),
				Selected: hasSelection && n.ID == selectedID,
			})
			if v.Expanded(n.ID) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(s.tree.Roots(), 0)

	if hasSelection {
		if path, err := s.tree.Path(selectedID); err == nil {
			data.Path = strings.Join(path, " / ")
			data.Selected = path[len(path)-1]
		}
	}
	return data
}

// handleCategoryView renders the picker in its current state.
func (s *Server) handleCategoryView(w http.ResponseWriter, r *http.Request) {
	data, err := s.withView(sessionEmail(r.Context()), func(*category.View) error { return nil })
	if err != nil {
		s.categoryViewError(w, r, err)
		return
	}
	s.renderPicker(w, r, data)
}

func (s *Server) handleCategoryExpand(w http.ResponseWriter, r *http.Request) {
	s.handleCategoryToggle(w, r, (*category.View).Expand)
}

func (s *Server) handleCategoryCollapse(w http.ResponseWriter, r *http.Request) {
	s.handleCategoryToggle(w, r, (*category.View).Collapse)
}

func (s *Server) handleCategoryToggle(w http.ResponseWriter, r *http.Request, op func(*category.View, int64) error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid request format</div>`))
		return
	}
	id, ok := formID(r, "id")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Missing node id</div>`))
		return
	}

	data, err := s.withView(sessionEmail(r.Context()), func(v *category.View) error {
		return op(v, id)
	})
	if err != nil {
		s.categoryViewError(w, r, err)
		return
	}
	s.renderPicker(w, r, data)
}

// handleCategorySelect confirms a leaf as the expense category. Selecting
// a node with children is rejected and the previous selection stays.
func (s *Server) handleCategorySelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid request format</div>`))
		return
	}
	id, ok := formID(r, "id")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Missing node id</div>`))
		return
	}

	data, err := s.withView(sessionEmail(r.Context()), func(v *category.View) error {
		_, err := v.Select(id)
		return err
	})
	if err != nil {
		s.categoryViewError(w, r, err)
		return
	}
	s.renderPicker(w, r, data)
}

func (s *Server) categoryViewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, category.ErrNotALeaf):
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Pick a leaf category, not a group</div>`))
	case errors.Is(err, category.ErrUnknownNode):
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
	default:
		slog.ErrorContext(r.Context(), "Category picker error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<div class="error">Category picker failed</div>`))
	}
}

func (s *Server) renderPicker(w http.ResponseWriter, r *http.Request, data pickerData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.templates == nil {
		_, _ = w.Write([]byte(`<div id="category-picker">` + template.HTMLEscapeString(data.Path) + `</div>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "categories.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "categories.html")
	}
}
