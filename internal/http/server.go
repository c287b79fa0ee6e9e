// Package http serves the web UI: account entry, the category picker,
// expense entry and the monthly dashboard.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"conto/internal/account"
	"conto/internal/cache"
	"conto/internal/category"
	"conto/internal/expense"
	"conto/internal/storage"
	appweb "conto/web"
)

// Dashboard is the read side of the storage layer used by the overview
// partial.
type Dashboard interface {
	ReadMonthOverview(ctx context.Context, year, month int) (storage.MonthOverview, error)
	ListExpenses(ctx context.Context, year, month int) ([]storage.ExpenseRow, error)
}

// CategorySource loads the taxonomy and applies admin changes to it.
type CategorySource interface {
	CategoryRows(ctx context.Context) ([]category.Row, error)
	CreateCategory(ctx context.Context, name string, parentID int64) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// Deps collects everything the server needs.
type Deps struct {
	Engine     *account.Engine
	Sessions   *account.JWTIssuer
	Expenses   *expense.Service
	Dashboard  Dashboard
	Categories CategorySource
}

type Server struct {
	http.Server
	templates *template.Template

	engine     *account.Engine
	sessions   *account.JWTIssuer
	expenses   *expense.Service
	dashboard  Dashboard
	categories CategorySource

	rateLimiter *rateLimiter

	// Taxonomy snapshot plus per-account picker state. Both reset when an
	// admin changes the taxonomy.
	treeMu sync.RWMutex
	tree   *category.Tree
	views  map[string]*category.View

	overviewCache *cache.LRUCache[storage.MonthOverview]
	itemsCache    *cache.LRUCache[[]storage.ExpenseRow]

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// server. The category tree is loaded once at startup.
func NewServer(ctx context.Context, addr string, deps Deps) (*Server, error) {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		engine:        deps.Engine,
		sessions:      deps.Sessions,
		expenses:      deps.Expenses,
		dashboard:     deps.Dashboard,
		categories:    deps.Categories,
		rateLimiter:   newRateLimiter(),
		views:         make(map[string]*category.View),
		overviewCache: cache.NewLRUCache[storage.MonthOverview](100, 5*time.Minute),
		itemsCache:    cache.NewLRUCache[[]storage.ExpenseRow](200, 5*time.Minute),
	}

	if err := s.reloadTree(ctx); err != nil {
		return nil, err
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/", s.withSecurityHeaders(s.requireSession(s.handleIndex)))
	mux.HandleFunc("/user/register", s.withSecurityHeaders(s.handleRegister))
	mux.HandleFunc("/user/login", s.withSecurityHeaders(s.handleLogin))
	mux.HandleFunc("/user/logout", s.withSecurityHeaders(s.handleLogout))

	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.requireSessionPartial(s.handleCreateExpense)))
	mux.HandleFunc("/categories", s.withSecurityHeaders(s.requireSessionPartial(s.handleCreateCategory)))
	mux.HandleFunc("/categories/delete", s.withSecurityHeaders(s.requireSessionPartial(s.handleDeleteCategory)))

	// UI partials
	mux.HandleFunc("/ui/month-overview", s.withSecurityHeaders(s.requireSessionPartial(s.handleMonthOverview)))
	mux.HandleFunc("/ui/categories", s.withSecurityHeaders(s.requireSessionPartial(s.handleCategoryView)))
	mux.HandleFunc("/ui/categories/expand", s.withSecurityHeaders(s.requireSessionPartial(s.handleCategoryExpand)))
	mux.HandleFunc("/ui/categories/collapse", s.withSecurityHeaders(s.requireSessionPartial(s.handleCategoryCollapse)))
	mux.HandleFunc("/ui/categories/select", s.withSecurityHeaders(s.requireSessionPartial(s.handleCategorySelect)))

	return s, nil
}

// reloadTree rebuilds the taxonomy snapshot and drops every picker view,
// which restarts them collapsed with no selection.
func (s *Server) reloadTree(ctx context.Context) error {
	rows, err := s.categories.CategoryRows(ctx)
	if err != nil {
		return err
	}
	tree, err := category.BuildTree(rows)
	if err != nil {
		return err
	}

	s.treeMu.Lock()
	s.tree = tree
	s.views = make(map[string]*category.View)
	s.treeMu.Unlock()
	return nil
}

func (s *Server) currentTree() *category.Tree {
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	return s.tree
}

// StartJanitor sweeps expired dashboard cache entries until ctx is
// cancelled.
func (s *Server) StartJanitor(ctx context.Context, interval time.Duration) {
	go cache.NewJanitor(interval, s.overviewCache, s.itemsCache).Run(ctx)
}

// Shutdown stops the HTTP server and background cleanup exactly once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
