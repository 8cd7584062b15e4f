package handlers

import (
	"net/http"

	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/models"
)

func (h *Handler) userSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.portal.ActiveSites(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "user_sites", "Sites", sites)
}

func (h *Handler) userSiteProjects(w http.ResponseWriter, r *http.Request) {
	siteID, ok := urlID(r, "siteID")
	if !ok {
		h.notFound(w)
		return
	}
	site, projects, err := h.portal.ActiveProjectsForSite(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err, "/user/sites")
		return
	}
	h.render(w, r, "user_projects", site.Name, siteProjectsData{Site: site, Projects: projects})
}

type groupedDocumentsData struct {
	Project *models.ProjectSummary
	Groups  *portal.GroupedDocuments
}

func (h *Handler) userProjectDocuments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	project, groups, err := h.portal.ProjectDocumentsGrouped(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err, "/user/sites")
		return
	}
	h.render(w, r, "user_documents", project.Name, groupedDocumentsData{Project: project, Groups: groups})
}
