package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/session"
	"github.com/petermazzocco/construction-portal/models"
)

// Requirement is the access rule a route declares.
type Requirement struct {
	authenticated bool
	role          models.Role
}

var (
	Public        = Requirement{}
	Authenticated = Requirement{authenticated: true}
)

// RequireRole admits only sessions with exactly this role.
func RequireRole(role models.Role) Requirement {
	return Requirement{authenticated: true, role: role}
}

func (q Requirement) String() string {
	switch {
	case !q.authenticated:
		return "public"
	case q.role == "":
		return "authenticated"
	default:
		return "role:" + string(q.role)
	}
}

// Decision is the outcome of Guard.Check. Err is nil,
// apperr.ErrUnauthenticated or apperr.ErrForbidden (or a session
// backend failure).
type Decision struct {
	Identity *session.Identity
	Err      error
}

func (d Decision) Allowed() bool { return d.Err == nil }

type Guard struct {
	sessions *session.Manager
	cookies  *Cookies
	log      *logrus.Entry
}

func NewGuard(sessions *session.Manager, cookies *Cookies, log *logrus.Logger) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{sessions: sessions, cookies: cookies, log: log.WithField("component", "guard")}
}

// Check resolves the request's session and tests it against req.
// Public routes still get the identity when one is present.
func (g *Guard) Check(r *http.Request, req Requirement) Decision {
	id, err := g.sessions.Resolve(r.Context(), g.cookies.Token(r))
	if err != nil {
		if !req.authenticated && errors.Is(err, apperr.ErrUnauthenticated) {
			return Decision{}
		}
		return Decision{Err: err}
	}
	if req.role != "" && id.Role != req.role {
		return Decision{Identity: &id, Err: fmt.Errorf("%s route: %w", req.role, apperr.ErrForbidden)}
	}
	return Decision{Identity: &id}
}

// Middleware enforces req before next runs. Failed checks never reach
// the handler.
func (g *Guard) Middleware(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r, req)
			switch {
			case d.Err == nil:
				if d.Identity != nil {
					r = r.WithContext(WithIdentity(r.Context(), *d.Identity))
				}
				next.ServeHTTP(w, r)
			case errors.Is(d.Err, apperr.ErrUnauthenticated):
				g.flash(w, r, "Please login first")
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			case errors.Is(d.Err, apperr.ErrForbidden):
				g.log.WithFields(logrus.Fields{
					"user_id": d.Identity.UserID,
					"role":    d.Identity.Role,
					"path":    r.URL.Path,
				}).Info("access denied")
				g.flash(w, r, "Access denied")
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			default:
				g.log.WithError(d.Err).Error("session lookup failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})
	}
}

func (g *Guard) flash(w http.ResponseWriter, r *http.Request, message string) {
	if err := g.cookies.AddFlash(w, r, FlashError, message); err != nil {
		g.log.WithError(err).Warn("failed to save flash")
	}
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id session.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity the guard attached, if any.
func IdentityFrom(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(session.Identity)
	return id, ok
}
