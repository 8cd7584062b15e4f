package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petermazzocco/construction-portal/internal/apperr"
)

// download streams a stored upload to any logged-in account. Documents
// carry their upload checksum as a strong ETag.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	f, err := h.portal.OpenFile(r.Context(), chi.URLParam(r, "filename"))
	if errors.Is(err, apperr.ErrNotFound) {
		h.notFound(w)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if f.Checksum != "" {
		etag := `"` + f.Checksum + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if _, err := io.Copy(w, f); err != nil {
		h.log.WithError(err).Warn("download interrupted")
	}
}
