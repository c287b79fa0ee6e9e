package http

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"conto/internal/storage"
)

func (s *Server) getOverview(ctx context.Context, year, month int) (storage.MonthOverview, error) {
	key := s.cacheKey(year, month)

	if data, found := s.overviewCache.Get(key); found {
		slog.DebugContext(ctx, "Overview cache hit", "year", year, "month", month)
		return data, nil
	}

	// Small timeout so a slow query cannot hang the partial.
	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	data, err := s.dashboard.ReadMonthOverview(cctx, year, month)
	if err != nil {
		return storage.MonthOverview{}, fmt.Errorf("read month overview (year=%d, month=%d): %w", year, month, err)
	}

	s.overviewCache.Set(key, data)
	slog.DebugContext(ctx, "Overview cached", "year", year, "month", month,
		"total_cents", data.Total.Cents, "categories", len(data.ByCategory))
	return data, nil
}

func (s *Server) getExpenses(ctx context.Context, year, month int) ([]storage.ExpenseRow, error) {
	key := s.cacheKey(year, month)

	if items, found := s.itemsCache.Get(key); found {
		slog.DebugContext(ctx, "Expenses cache hit", "year", year, "month", month, "count", len(items))
		// Return a copy to prevent external mutation.
		result := make([]storage.ExpenseRow, len(items))
		copy(result, items)
		return result, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	items, err := s.dashboard.ListExpenses(cctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list month expenses (year=%d, month=%d): %w", year, month, err)
	}

	s.itemsCache.Set(key, items)
	return items, nil
}

// handleMonthOverview renders the monthly overview partial.
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		slog.WarnContext(r.Context(), "Invalid month parameter", "year", year, "month", month)
		month = int(time.Now().Month())
	}

	ov, err := s.getOverview(r.Context(), year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Month overview error", "error", err, "year", year, "month", month)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Could not load overview</div></section>`))
		return
	}

	// Scale the per-category bars against the largest category.
	var maxCents int64
	var maxName string
	for _, c := range ov.ByCategory {
		if c.Amount.Cents > maxCents {
			maxCents = c.Amount.Cents
			maxName = c.Name
		}
	}

	type row struct {
		Name, Amount string
		Width        int
	}
	type item struct {
		Date string
		Desc string
		Amt  string
		Cat  string
	}
	data := struct {
		Year    int
		Month   int
		Total   string
		MaxName string
		Rows    []row
		Items   []item
	}{Year: ov.Year, Month: ov.Month, Total: formatEuros(ov.Total.Cents), MaxName: maxName}

	for _, c := range ov.ByCategory {
		width := 0
		if maxCents > 0 && c.Amount.Cents > 0 {
			width = int((c.Amount.Cents*100 + maxCents/2) / maxCents) // rounded percent
			if width > 0 && width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Rows = append(data.Rows, row{Name: c.Name, Amount: formatEuros(c.Amount.Cents), Width: width})
	}

	items, err := s.getExpenses(r.Context(), year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "List expenses error", "error", err, "year", year, "month", month)
	} else {
		for _, e := range items {
			data.Items = append(data.Items, item{
				Date: e.Record.Date.String(),
				Desc: template.HTMLEscapeString(e.Record.Description),
				Amt:  formatEuros(e.Record.Amount.Cents),
				Cat:  e.CategoryName,
			})
		}
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Total: ` + data.Total + `</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "month_overview.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "month_overview.html")
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Could not render overview</div></section>`))
	}
}
