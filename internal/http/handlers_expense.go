package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"conto/internal/core"
	"conto/internal/expense"
	"conto/internal/storage"
)

// handleCreateExpense validates the expense form and records the entry.
// Validation failures answer 422 with an HTML fragment naming the field.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid request format</div>`))
		return
	}

	amountStr := sanitizeInput(r.Form.Get("amount"))
	dateStr := sanitizeInput(r.Form.Get("date"))
	desc := sanitizeInput(r.Form.Get("description"))
	categoryID, _ := formID(r, "category_id")

	validator := expense.NewValidator(s.currentTree(), core.SystemClock{})
	rec, err := validator.Validate(amountStr, categoryID, dateStr, desc)
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(validationMessage(err)) + `</div>`))
		return
	}

	id, err := s.expenses.Record(r.Context(), rec)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense record error", "error", err, "amount_cents", rec.Amount.Cents)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<div class="error">Could not save the expense</div>`))
		return
	}

	// Invalidate cached aggregates for the affected month and trigger a
	// client refresh.
	s.invalidateMonth(rec.Date.Year(), rec.Date.Month())
	w.Header().Set("HX-Trigger", `{"expense:created": {"year": `+strconv.Itoa(rec.Date.Year())+`, "month": `+strconv.Itoa(rec.Date.Month())+`}}`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Expense recorded (#` + strconv.FormatInt(id, 10) + `): ` +
		template.HTMLEscapeString(rec.Description) +
		` — €` + template.HTMLEscapeString(amountStr) +
		` on ` + template.HTMLEscapeString(rec.Date.String()) + `</div>`))
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrBadAmount):
		return "Amount must be a positive number like 12.50"
	case errors.Is(err, core.ErrBadCategory):
		return "Please pick a category leaf"
	case errors.Is(err, core.ErrBadDate):
		return "Date must be YYYY-MM-DD"
	default:
		return "Invalid expense data"
	}
}

// handleCreateCategory adds a taxonomy node under an optional parent.
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
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

	name := r.Form.Get("name")
	parentID, _ := formID(r, "parent_id")

	id, err := s.categories.CreateCategory(r.Context(), name, parentID)
	if err != nil {
		status, msg := categoryErrorResponse(err)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
		return
	}

	if err := s.reloadTree(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Tree reload failed after category create", "error", err)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Category created (#` + strconv.FormatInt(id, 10) + `)</div>`))
}

// handleDeleteCategory removes a childless taxonomy node.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
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
		_, _ = w.Write([]byte(`<div class="error">Missing category id</div>`))
		return
	}

	if err := s.categories.DeleteCategory(r.Context(), id); err != nil {
		status, msg := categoryErrorResponse(err)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`<div class="error">` + template.HTMLEscapeString(msg) + `</div>`))
		return
	}

	if err := s.reloadTree(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Tree reload failed after category delete", "error", err)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Category deleted</div>`))
}

func categoryErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrMissingData):
		return http.StatusUnprocessableEntity, "Category name cannot be empty"
	case errors.Is(err, storage.ErrCategoryExists):
		return http.StatusConflict, "A category with this name already exists here"
	case errors.Is(err, storage.ErrHasChildren):
		return http.StatusConflict, "Remove child categories first"
	case errors.Is(err, storage.ErrCategoryNotFound):
		return http.StatusNotFound, "Category not found"
	default:
		return http.StatusInternalServerError, "Category operation failed"
	}
}

func (s *Server) invalidateMonth(year, month int) {
	key := s.cacheKey(year, month)
	s.overviewCache.Delete(key)
	s.itemsCache.Delete(key)
}

func (s *Server) cacheKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}
