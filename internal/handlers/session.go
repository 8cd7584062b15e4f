package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/session"
	"github.com/petermazzocco/construction-portal/models"
)

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, "login", "Login", nil)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	user, err := h.portal.Authenticate(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		h.redirect(w, r, "/login", auth.FlashError, "Invalid credentials")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.startSession(w, r, user)
}

// startSession replaces any previous token with a fresh one for user.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	cs := h.cookies.Load(r)
	if old := cs.Token(); old != "" {
		if err := h.sessions.Revoke(r.Context(), old); err != nil {
			h.log.WithError(err).Warn("failed to revoke previous session")
		}
	}

	token, err := h.sessions.Issue(r.Context(), session.Identity{
		UserID:   user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	cs.SetToken(token)
	cs.AddFlash(auth.FlashSuccess, "Welcome "+user.FullName+"!")
	if err := cs.Save(w); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	cs := h.cookies.Load(r)
	if err := h.sessions.Revoke(r.Context(), cs.Token()); err != nil {
		h.log.WithError(err).Warn("failed to revoke session")
	}
	cs.ClearToken()
	cs.AddFlash(auth.FlashSuccess, "Logged out successfully")
	if err := cs.Save(w); err != nil {
		h.log.WithError(err).Warn("failed to clear session cookie")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) oauthBegin(w http.ResponseWriter, r *http.Request) {
	auth.BeginOAuth(w, r, chi.URLParam(r, "provider"))
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	email, err := auth.CompleteOAuth(w, r, provider)
	if err != nil {
		h.log.WithError(err).WithField("provider", provider).Warn("oauth login failed")
		h.redirect(w, r, "/login", auth.FlashError, "Invalid credentials")
		return
	}
	user, err := h.portal.AuthenticateExternal(r.Context(), email)
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		h.redirect(w, r, "/login", auth.FlashError, "Invalid credentials")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": user.ID, "provider": provider}).Info("oauth login succeeded")
	h.startSession(w, r, user)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	d, err := h.portal.Dashboard(r.Context(), id.Role, id.UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "dashboard", "Dashboard", d)
}
