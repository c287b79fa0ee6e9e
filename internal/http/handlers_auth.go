package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"conto/internal/account"
	"conto/internal/core"
)

const sessionCookie = "conto_session"

type sessionKeyType struct{}

var sessionKey sessionKeyType

// sessionEmail returns the authenticated account email, or "" when the
// request carries no valid session.
func sessionEmail(ctx context.Context) string {
	if email, ok := ctx.Value(sessionKey).(string); ok {
		return email
	}
	return ""
}

func (s *Server) authenticate(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	subject, err := s.sessions.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return subject
}

// requireSession guards full pages, redirecting anonymous visitors to the
// login form.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := s.authenticate(r)
		if email == "" {
			http.Redirect(w, r, "/user/login", http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey, email)))
	}
}

// requireSessionPartial guards form posts and HTMX partials, which get a
// 401 instead of a redirect.
func (s *Server) requireSessionPartial(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := s.authenticate(r)
		if email == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`<div class="error">Session expired, please log in again</div>`))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey, email)))
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session core.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleRegister serves the registration form and handles its submission.
// Registration and login run through the same entry engine, so submitting
// existing credentials here simply logs the account in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleEntry(w, r, "register.html")
}

// handleLogin serves the login form and handles its submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleEntry(w, r, "login.html")
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request, page string) {
	switch r.Method {
	case http.MethodGet:
		s.renderPage(w, r, page, entryForm{})
	case http.MethodPost:
		s.handleEntrySubmit(w, r, page)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// entryForm is the template payload for the register and login pages.
type entryForm struct {
	Email string
	Error string
}

func (s *Server) handleEntrySubmit(w http.ResponseWriter, r *http.Request, page string) {
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		s.renderPage(w, r, page, entryForm{Error: "Invalid request"})
		return
	}

	emailAddr := sanitizeInput(r.Form.Get("email"))
	password := r.Form.Get("password")

	outcome, err := s.engine.Submit(r.Context(), emailAddr, password)
	if err != nil {
		slog.ErrorContext(r.Context(), "Account entry failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		s.renderPage(w, r, page, entryForm{Email: emailAddr, Error: "Something went wrong, please retry"})
		return
	}

	if outcome.Rejected() {
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderPage(w, r, page, entryForm{Email: emailAddr, Error: rejectionMessage(outcome)})
		return
	}

	s.setSessionCookie(w, outcome.Session)
	slog.InfoContext(r.Context(), "Account entry succeeded",
		"email", emailAddr,
		"status", string(outcome.Status))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func rejectionMessage(outcome account.Outcome) string {
	switch outcome.Reason {
	case account.ReasonMissingPassword:
		return "Please enter a password"
	case account.ReasonInvalidEmail:
		return "Please enter a valid email address"
	case account.ReasonCredentialMismatch:
		return "Email and password do not match"
	default:
		return "Submission rejected"
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/user/login", http.StatusSeeOther)
}

// handleIndex renders the main expense entry page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	now := time.Now()
	data := struct {
		Email string
		Today string
	}{
		Email: sessionEmail(r.Context()),
		Today: now.Format("2006-01-02"),
	}
	s.renderPage(w, r, "index.html", data)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, page string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, page, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", page)
	}
}
