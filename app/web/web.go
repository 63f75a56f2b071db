// Package web implements the web server for jobtrack: HTML pages with the navigation bar
// and a JSON API, both working on top of the job store
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/jobtrack/app/jobs"
	"github.com/umputun/jobtrack/app/resumes"
)

//go:embed templates/*.html templates/partials/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// pages rendered with the base layout, each defines "content" block
var pages = []string{"home", "jobs", "edit", "upload"}

// JobStore is the job store consumed by handlers, implemented by jobs.Store
type JobStore interface {
	Jobs() []jobs.Application
	Get(id string) (jobs.Application, bool)
	Loading() bool
	Err() error
	ClearError()
	Load(ctx context.Context) error
	Add(ctx context.Context, data jobs.FormData) (jobs.Application, error)
	Update(ctx context.Context, id string, data jobs.FormData) (jobs.Application, error)
	Delete(ctx context.Context, id string) error
}

// ResumeStore keeps uploaded resumes, implemented by resumes.Store
type ResumeStore interface {
	Save(ctx context.Context, fileName, contentType string, data []byte) (resumes.Resume, error)
	List(ctx context.Context) ([]resumes.Resume, error)
	Get(ctx context.Context, id string) (resumes.Resume, error)
	Delete(ctx context.Context, id string) error
}

// Server represents the web server
type Server struct {
	jobs           JobStore
	resumes        ResumeStore
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /jobtrack), empty for root
	hostname       string
	version        string
	passwordHash   string        // bcrypt hash for auth, empty to disable
	loginTTL       time.Duration // auth cookie lifetime
	csrfProtection *http.CrossOriginProtection
	loginLimiter   *limiter.Limiter
}

// Config holds server configuration
type Config struct {
	Jobs         JobStore
	Resumes      ResumeStore
	BaseURL      string // base URL path for reverse proxy, empty for root
	Hostname     string // hostname to display in UI
	Version      string
	PasswordHash string        // bcrypt hash for auth (empty to disable)
	LoginTTL     time.Duration // auth cookie lifetime, defaults to 7 days
}

// TemplateData holds data for page templates
type TemplateData struct {
	Title       string
	Nav         []navItem
	BaseURL     string
	Hostname    string
	Version     string
	CurrentYear int
	AuthEnabled bool
	Error       string // store error or form validation error
	Loading     bool

	Jobs     []jobs.Application
	Job      jobs.Application
	Statuses []jobs.Status
	Filter   jobs.Status
	Counts   []statusCount
	Total    int
	Resumes  []resumes.Resume
}

type statusCount struct {
	Status jobs.Status
	Count  int
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("web server initialization failed: job store is required")
	}
	if cfg.Resumes == nil {
		return nil, fmt.Errorf("web server initialization failed: resume store is required")
	}

	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = 7 * 24 * time.Hour
	}

	lmt := tollbooth.NewLimiter(5, nil) // 5 login attempts per second per ip
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr", IndexFromRight: 0})
	lmt.SetMessage("Too many login attempts, try again later")

	s := &Server{
		jobs:           cfg.Jobs,
		resumes:        cfg.Resumes,
		baseURL:        cfg.BaseURL,
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		passwordHash:   cfg.PasswordHash,
		loginTTL:       loginTTL,
		csrfProtection: http.NewCrossOriginProtection(),
		loginLimiter:   lmt,
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server, blocks until ctx canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	// base URL without trailing slash redirects to the one with slash
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("jobtrack", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
		s.csrfProtection.Handler,
	)

	// must be set before any routes are defined
	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled for web UI")
		router.Use(s.authMiddleware)
	}

	if s.passwordHash != "" {
		router.HandleFunc("GET /login", s.handleLoginForm)
		router.With(tollbooth.HTTPMiddleware(s.loginLimiter), rest.SizeLimit(16*1024)).HandleFunc("POST /login", s.handleLogin)
		router.HandleFunc("GET /logout", s.handleLogout)
	}

	// html pages
	router.Group().Route(func(web *routegroup.Bundle) {
		web.Use(rest.SizeLimit(64 * 1024))
		web.HandleFunc("GET /{$}", s.handleHome)
		web.HandleFunc("GET /jobs", s.handleJobs)
		web.HandleFunc("POST /jobs", s.handleAddJob)
		web.HandleFunc("POST /jobs/reload", s.handleReload)
		web.HandleFunc("GET /jobs/{id}/edit", s.handleEditJob)
		web.HandleFunc("POST /jobs/{id}", s.handleUpdateJob)
		web.HandleFunc("POST /jobs/{id}/delete", s.handleDeleteJob)
		web.HandleFunc("POST /errors/clear", s.handleClearError)
		web.HandleFunc("GET /upload", s.handleUploadForm)
		web.HandleFunc("GET /upload/{id}", s.handleDownloadResume)
		web.HandleFunc("POST /upload/{id}/delete", s.handleDeleteResume)
	})
	router.With(rest.SizeLimit(resumes.MaxSize+64*1024)).HandleFunc("POST /upload", s.handleUpload)

	// JSON API for programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache, rest.SizeLimit(64*1024))
		api.HandleFunc("GET /status", s.handleAPIStatus)
		api.HandleFunc("GET /jobs", s.handleAPIListJobs)
		api.HandleFunc("POST /jobs", s.handleAPIAddJob)
		api.HandleFunc("POST /jobs/reload", s.handleAPIReload)
		api.HandleFunc("GET /jobs/{id}", s.handleAPIGetJob)
		api.HandleFunc("PUT /jobs/{id}", s.handleAPIUpdateJob)
		api.HandleFunc("DELETE /jobs/{id}", s.handleAPIDeleteJob)
		api.HandleFunc("POST /errors/clear", s.handleAPIClearError)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a page with the base layout
func (s *Server) render(w http.ResponseWriter, status int, page string, data TemplateData) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		log.Printf("[WARN] failed to execute template %s: %v", page, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses base layout with partials for every page, and standalone login
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime": s.humanTime,
		"humanSize": humanSize,
		"truncate":  s.truncate,
		"url":       s.url,
	}

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html", "templates/partials/*.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = tmpl
	}

	login, err := template.New("login.html").Funcs(funcMap).ParseFS(templatesFS, "templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse login template: %w", err)
	}
	templates["login"] = login

	return templates, nil
}

// newTemplateData makes TemplateData with layout fields and the store state populated
func (s *Server) newTemplateData(r *http.Request, title string) TemplateData {
	data := TemplateData{
		Title:       title,
		Nav:         s.navItems(r.URL.Path),
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		Version:     shortVersion(s.version),
		CurrentYear: time.Now().Year(),
		AuthEnabled: s.passwordHash != "",
		Loading:     s.jobs.Loading(),
		Statuses:    jobs.Statuses(),
	}
	if err := s.jobs.Err(); err != nil {
		data.Error = errorText(err)
	}
	return data
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 2 2006, 15:04")
}

func (s *Server) truncate(str string, n int) string {
	if len(str) <= n {
		return str
	}
	return str[:n] + "..."
}

func humanSize(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

// shortVersion extracts a short version string from full version,
// "v1.7.0-abc1234-20241225" becomes "v1.7.0"
func shortVersion(fullVer string) string {
	if fullVer == "" || fullVer == "unknown" {
		return fullVer
	}
	if idx := strings.Index(fullVer, "-"); idx > 0 {
		return fullVer[:idx]
	}
	return fullVer
}
