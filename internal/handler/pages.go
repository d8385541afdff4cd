// Package handler contains the HTTP handlers of the admin server.
//
// Handlers parse the request, call a service and write the response. They
// hold no business rules: access decisions, publishing and file staging live
// in internal/service.
package handler

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// recentPublications is how many rows the dashboard shows.
const recentPublications = 10

// loginErrors maps the login page's ?error= values to the text shown.
var loginErrors = map[string]string{
	"unauthorized":        "Your GitHub account does not have write access to the content repository.",
	"verification-failed": "Your access could not be verified. Please try again.",
	"access-denied":       "GitHub authorization was cancelled.",
	"auth-failed":         "Sign-in failed. Please try again.",
}

// PagesHandler renders the server-side admin pages. Templates are parsed
// once at startup; each page is its own set so every page can define
// "content".
type PagesHandler struct {
	pages        map[string]*template.Template
	mode         config.RuntimeMode
	operator     OperatorLookup
	publications PublicationLister
	logger       *slog.Logger
}

// OperatorLookup returns the login of the operator behind a request, or "".
type OperatorLookup func(r *http.Request) string

// NewPagesHandler parses the embedded templates.
func NewPagesHandler(mode config.RuntimeMode, operator OperatorLookup, publications PublicationLister, logger *slog.Logger) (*PagesHandler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"login", "dashboard"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	if operator == nil {
		operator = func(*http.Request) string { return "" }
	}
	return &PagesHandler{
		pages:        pages,
		mode:         mode,
		operator:     operator,
		publications: publications,
		logger:       logger,
	}, nil
}

type pageData struct {
	Title        string
	Login        string
	Error        string
	DevMode      bool
	Publications []model.Publication
}

// HandleLogin renders the sign-in page.
//
// HTTP: GET /admin/login?error=unauthorized
func (h *PagesHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Sign in · Portfolio Admin"}
	if code := r.URL.Query().Get("error"); code != "" {
		msg, ok := loginErrors[code]
		if !ok {
			msg = "Sign-in failed. Please try again."
		}
		data.Error = msg
	}
	h.render(w, "login", data)
}

// HandleDashboard renders the admin landing page for every guarded path.
//
// HTTP: GET /admin, /admin/*
func (h *PagesHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:   "Portfolio Admin",
		Login:   h.operator(r),
		DevMode: !h.mode.IsProduction(),
	}
	if h.publications != nil {
		pubs, err := h.publications.List(r.Context(), recentPublications, 0)
		if err != nil {
			// The page is still useful without the history.
			h.logger.Warn("dashboard: listing publications", slog.String("error", err.Error()))
		}
		data.Publications = pubs
	}
	h.render(w, "dashboard", data)
}

func (h *PagesHandler) render(w http.ResponseWriter, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[page].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
