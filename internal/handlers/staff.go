package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/models"
)

// multipartOverhead is allowed on top of the file limit for the other
// form fields and part headers.
const multipartOverhead = 1 << 20

func (h *Handler) staffProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.portal.MyProjects(r.Context(), identity(r).UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "staff_projects", "My projects", projects)
}

type staffDocumentsData struct {
	Project   *models.ProjectSummary
	Documents []models.DocumentSummary
}

func (h *Handler) staffProjectDocuments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	project, docs, err := h.portal.MyProjectDocuments(r.Context(), identity(r).UserID, projectID)
	if err != nil {
		h.fail(w, r, err, "/staff/projects")
		return
	}
	h.render(w, r, "staff_documents", project.Name, staffDocumentsData{Project: project, Documents: docs})
}

type uploadData struct {
	Project *models.ProjectSummary
	Types   []models.DocumentType
}

func (h *Handler) uploadForm(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	project, err := h.portal.ProjectForUpload(r.Context(), identity(r).UserID, projectID)
	if err != nil {
		h.fail(w, r, err, "/staff/projects")
		return
	}
	h.render(w, r, "staff_upload", "Upload document", uploadData{Project: project, Types: models.DocumentTypes})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	back := fmt.Sprintf("/staff/upload/%d", projectID)

	limit := h.portal.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.redirect(w, r, back, auth.FlashError, fmt.Sprintf("Invalid input: file exceeds %d MiB", limit>>20))
			return
		}
		h.redirect(w, r, back, auth.FlashError, "Invalid input: malformed upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		h.redirect(w, r, back, auth.FlashError, "No file selected")
		return
	}
	if err != nil {
		h.redirect(w, r, back, auth.FlashError, "Invalid input: malformed upload")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.redirect(w, r, back, auth.FlashError, "No file selected")
		return
	}

	_, err = h.portal.UploadDocument(r.Context(), portal.Upload{
		StaffID:     identity(r).UserID,
		ProjectID:   projectID,
		Type:        models.DocumentType(r.FormValue("document_type")),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		ReportDate:  r.FormValue("report_date"),
		Filename:    header.Filename,
		Content:     file,
	})
	if errors.Is(err, apperr.ErrForbidden) {
		h.redirect(w, r, "/staff/projects", auth.FlashError, "Access denied")
		return
	}
	if err != nil {
		h.fail(w, r, err, back)
		return
	}
	h.redirect(w, r, fmt.Sprintf("/staff/projects/%d/documents", projectID), auth.FlashSuccess, "Document uploaded successfully")
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, ok := urlID(r, "docID")
	if !ok {
		h.notFound(w)
		return
	}
	back := referrer(r, "/staff/projects")
	if err := h.portal.DeleteDocument(r.Context(), identity(r).UserID, docID); err != nil {
		h.fail(w, r, err, back)
		return
	}
	h.redirect(w, r, back, auth.FlashSuccess, "Document deleted successfully")
}
