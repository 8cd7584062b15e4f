// Package handlers is the HTTP surface of the portal: the chi router,
// the route table with each route's access requirement, and the page
// handlers that decode forms and render templates.
package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/logging"
	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/internal/session"
	"github.com/petermazzocco/construction-portal/models"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Portal   *portal.Service
	Sessions *session.Manager
	Cookies  *auth.Cookies
	Logger   *logrus.Logger
	// OAuth enables the /auth/{provider} routes. auth.ConfigureGoogle
	// must have been called.
	OAuth bool
	// LoginRatePerMinute limits POST /login per client IP. Zero
	// disables the limit.
	LoginRatePerMinute int
}

type Handler struct {
	portal    *portal.Service
	sessions  *session.Manager
	cookies   *auth.Cookies
	guard     *auth.Guard
	templates map[string]*template.Template
	log       *logrus.Entry
	logger    *logrus.Logger
	oauth     bool
	loginRate int
}

func New(d Deps) (*Handler, error) {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		portal:    d.Portal,
		sessions:  d.Sessions,
		cookies:   d.Cookies,
		guard:     auth.NewGuard(d.Sessions, d.Cookies, logger),
		templates: tmpl,
		log:       logger.WithField("component", "http"),
		logger:    logger,
		oauth:     d.OAuth,
		loginRate: d.LoginRatePerMinute,
	}, nil
}

type route struct {
	method  string
	pattern string
	req     auth.Requirement
	handler http.HandlerFunc
	// limited routes go through the login rate limiter.
	limited bool
}

var (
	admin = auth.RequireRole(models.RoleAdmin)
	staff = auth.RequireRole(models.RoleStaff)
	user  = auth.RequireRole(models.RoleUser)
)

func (h *Handler) routes() []route {
	rt := []route{
		{method: http.MethodGet, pattern: "/", req: auth.Public, handler: h.index},
		{method: http.MethodGet, pattern: "/login", req: auth.Public, handler: h.loginForm},
		{method: http.MethodPost, pattern: "/login", req: auth.Public, handler: h.login, limited: true},
		{method: http.MethodGet, pattern: "/logout", req: auth.Authenticated, handler: h.logout},
		{method: http.MethodGet, pattern: "/dashboard", req: auth.Authenticated, handler: h.dashboard},

		{method: http.MethodGet, pattern: "/admin/sites", req: admin, handler: h.adminSites},
		{method: http.MethodGet, pattern: "/admin/sites/add", req: admin, handler: h.addSiteForm},
		{method: http.MethodPost, pattern: "/admin/sites/add", req: admin, handler: h.addSite},
		{method: http.MethodPost, pattern: "/admin/sites/{siteID}/deactivate", req: admin, handler: h.deactivateSite},
		{method: http.MethodGet, pattern: "/admin/sites/{siteID}/projects", req: admin, handler: h.adminSiteProjects},
		{method: http.MethodGet, pattern: "/admin/projects/add/{siteID}", req: admin, handler: h.addProjectForm},
		{method: http.MethodPost, pattern: "/admin/projects/add/{siteID}", req: admin, handler: h.addProject},
		{method: http.MethodPost, pattern: "/admin/projects/{projectID}/deactivate", req: admin, handler: h.deactivateProject},
		{method: http.MethodGet, pattern: "/admin/projects/{projectID}/assign", req: admin, handler: h.assignForm},
		{method: http.MethodPost, pattern: "/admin/projects/{projectID}/assign", req: admin, handler: h.assign},
		{method: http.MethodGet, pattern: "/admin/staff", req: admin, handler: h.adminStaff},
		{method: http.MethodGet, pattern: "/admin/staff/add", req: admin, handler: h.accountForm("/admin/staff/add", "Add staff")},
		{method: http.MethodPost, pattern: "/admin/staff/add", req: admin, handler: h.addAccount(models.RoleStaff)},
		{method: http.MethodGet, pattern: "/admin/users/add", req: admin, handler: h.accountForm("/admin/users/add", "Add user")},
		{method: http.MethodPost, pattern: "/admin/users/add", req: admin, handler: h.addAccount(models.RoleUser)},
		{method: http.MethodPost, pattern: "/admin/users/{userID}/active", req: admin, handler: h.setUserActive},
		{method: http.MethodGet, pattern: "/admin/documents", req: admin, handler: h.adminDocuments},

		{method: http.MethodGet, pattern: "/staff/projects", req: staff, handler: h.staffProjects},
		{method: http.MethodGet, pattern: "/staff/projects/{projectID}/documents", req: staff, handler: h.staffProjectDocuments},
		{method: http.MethodGet, pattern: "/staff/upload/{projectID}", req: staff, handler: h.uploadForm},
		{method: http.MethodPost, pattern: "/staff/upload/{projectID}", req: staff, handler: h.upload},
		{method: http.MethodPost, pattern: "/staff/documents/{docID}/delete", req: staff, handler: h.deleteDocument},

		{method: http.MethodGet, pattern: "/user/sites", req: user, handler: h.userSites},
		{method: http.MethodGet, pattern: "/user/sites/{siteID}/projects", req: user, handler: h.userSiteProjects},
		{method: http.MethodGet, pattern: "/user/projects/{projectID}/documents", req: user, handler: h.userProjectDocuments},

		{method: http.MethodGet, pattern: "/uploads/{filename}", req: auth.Authenticated, handler: h.download},
	}
	if h.oauth {
		rt = append(rt,
			route{method: http.MethodGet, pattern: "/auth/{provider}", req: auth.Public, handler: h.oauthBegin},
			route{method: http.MethodGet, pattern: "/auth/{provider}/callback", req: auth.Public, handler: h.oauthCallback},
		)
	}
	return rt
}

// Router builds the chi router. Every route passes the guard with its
// declared requirement before its handler runs.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.logger))
	r.Use(middleware.Recoverer)

	var limiter func(http.Handler) http.Handler
	if h.loginRate > 0 {
		limiter = httprate.Limit(
			h.loginRate,
			1*time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		)
	}

	for _, rt := range h.routes() {
		mws := chi.Middlewares{}
		if rt.limited && limiter != nil {
			mws = append(mws, limiter)
		}
		mws = append(mws, h.guard.Middleware(rt.req))
		r.With(mws...).Method(rt.method, rt.pattern, rt.handler)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})
	return r
}

// identity is only called behind an authenticated requirement.
func identity(r *http.Request) session.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

func urlID(r *http.Request, key string) (uint, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, key), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	if message != "" {
		if err := h.cookies.AddFlash(w, r, kind, message); err != nil {
			h.log.WithError(err).Warn("failed to save flash")
		}
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) notFound(w http.ResponseWriter) {
	http.Error(w, "Not found", http.StatusNotFound)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithError(err).WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// userMessage returns the flash text for error kinds a user can act on.
func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		return "Access denied", true
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return "Invalid credentials", true
	case errors.Is(err, apperr.ErrDuplicateUsername):
		return "Username already exists", true
	case errors.Is(err, apperr.ErrInvalidFileType):
		return "Invalid file type", true
	case errors.Is(err, apperr.ErrUploadFailed):
		return "Upload failed, please try again", true
	case errors.Is(err, apperr.ErrInvalidInput):
		detail := strings.TrimSuffix(err.Error(), ": "+apperr.ErrInvalidInput.Error())
		return "Invalid input: " + detail, true
	}
	return "", false
}

// fail maps err onto a response: 404 for missing rows, a flash and a
// redirect to back for user errors, 500 otherwise.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, back string) {
	if errors.Is(err, apperr.ErrNotFound) {
		h.notFound(w)
		return
	}
	if msg, ok := userMessage(err); ok {
		h.redirect(w, r, back, auth.FlashError, msg)
		return
	}
	h.serverError(w, r, err)
}

// referrer returns the same-origin path of the Referer header, or
// fallback.
func referrer(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || !strings.HasPrefix(ref.Path, "/") {
		return fallback
	}
	if ref.Host != "" && ref.Host != r.Host {
		return fallback
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
