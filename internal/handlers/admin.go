package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/models"
)

func (h *Handler) adminSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.portal.ListSites(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "admin_sites", "Sites", sites)
}

func (h *Handler) addSiteForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "admin_site_form", "Add site", nil)
}

func (h *Handler) addSite(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	_, err := h.portal.AddSite(r.Context(), identity(r).UserID, portal.NewSite{
		Name:        r.PostForm.Get("site_name"),
		Location:    r.PostForm.Get("location"),
		Description: r.PostForm.Get("description"),
	})
	if err != nil {
		h.fail(w, r, err, "/admin/sites/add")
		return
	}
	h.redirect(w, r, "/admin/sites", auth.FlashSuccess, "Site added successfully")
}

func (h *Handler) deactivateSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := urlID(r, "siteID")
	if !ok {
		h.notFound(w)
		return
	}
	if err := h.portal.DeactivateSite(r.Context(), identity(r).UserID, siteID); err != nil {
		h.fail(w, r, err, "/admin/sites")
		return
	}
	h.redirect(w, r, "/admin/sites", auth.FlashSuccess, "Site deactivated")
}

type siteProjectsData struct {
	Site     *models.Site
	Projects []models.ProjectSummary
}

func (h *Handler) adminSiteProjects(w http.ResponseWriter, r *http.Request) {
	siteID, ok := urlID(r, "siteID")
	if !ok {
		h.notFound(w)
		return
	}
	site, projects, err := h.portal.SiteProjects(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err, "/admin/sites")
		return
	}
	h.render(w, r, "admin_projects", site.Name, siteProjectsData{Site: site, Projects: projects})
}

func (h *Handler) addProjectForm(w http.ResponseWriter, r *http.Request) {
	siteID, ok := urlID(r, "siteID")
	if !ok {
		h.notFound(w)
		return
	}
	site, _, err := h.portal.SiteProjects(r.Context(), siteID)
	if err != nil {
		h.fail(w, r, err, "/admin/sites")
		return
	}
	h.render(w, r, "admin_project_form", "Add project", site)
}

func (h *Handler) addProject(w http.ResponseWriter, r *http.Request) {
	siteID, ok := urlID(r, "siteID")
	if !ok {
		h.notFound(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	_, err := h.portal.AddProject(r.Context(), identity(r).UserID, siteID, portal.NewProject{
		Name:        r.PostForm.Get("project_name"),
		Description: r.PostForm.Get("description"),
		StartDate:   r.PostForm.Get("start_date"),
	})
	if err != nil {
		h.fail(w, r, err, fmt.Sprintf("/admin/projects/add/%d", siteID))
		return
	}
	h.redirect(w, r, fmt.Sprintf("/admin/sites/%d/projects", siteID), auth.FlashSuccess, "Project added successfully")
}

func (h *Handler) deactivateProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	project, err := h.portal.DeactivateProject(r.Context(), identity(r).UserID, projectID)
	if err != nil {
		h.fail(w, r, err, "/admin/sites")
		return
	}
	h.redirect(w, r, fmt.Sprintf("/admin/sites/%d/projects", project.SiteID), auth.FlashSuccess, "Project deactivated")
}

func (h *Handler) assignForm(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	a, err := h.portal.AssignableStaff(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err, "/admin/sites")
		return
	}
	h.render(w, r, "admin_assign", "Assign staff", a)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(r, "projectID")
	if !ok {
		h.notFound(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	var ids []uint
	for _, v := range r.PostForm["staff_ids"] {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.log.WithField("staff_id", v).Warn("ignoring malformed staff id")
			continue
		}
		ids = append(ids, uint(id))
	}

	added, project, err := h.portal.AssignStaff(r.Context(), identity(r).UserID, projectID, ids)
	if err != nil {
		h.fail(w, r, err, fmt.Sprintf("/admin/projects/%d/assign", projectID))
		return
	}
	msg := "Staff assigned successfully"
	if added == 0 {
		msg = "No new staff assigned"
	}
	h.redirect(w, r, fmt.Sprintf("/admin/sites/%d/projects", project.SiteID), auth.FlashSuccess, msg)
}

func (h *Handler) adminStaff(w http.ResponseWriter, r *http.Request) {
	users, err := h.portal.ListStaffAndUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "admin_staff", "Staff & users", users)
}

func (h *Handler) accountForm(action, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, "admin_account_form", title, action)
	}
}

func (h *Handler) addAccount(role models.Role) http.HandlerFunc {
	back, success := "/admin/staff/add", "Staff member added successfully"
	if role == models.RoleUser {
		back, success = "/admin/users/add", "User added successfully"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		in := portal.NewAccount{
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
			FullName: r.PostForm.Get("full_name"),
		}
		adminID := identity(r).UserID
		var err error
		if role == models.RoleUser {
			_, err = h.portal.AddUser(r.Context(), adminID, in)
		} else {
			_, err = h.portal.AddStaff(r.Context(), adminID, in)
		}
		if err != nil {
			h.fail(w, r, err, back)
			return
		}
		h.redirect(w, r, "/admin/staff", auth.FlashSuccess, success)
	}
}

func (h *Handler) setUserActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "userID")
	if !ok {
		h.notFound(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	active, err := strconv.ParseBool(r.PostForm.Get("active"))
	if err != nil {
		h.redirect(w, r, "/admin/staff", auth.FlashError, "Invalid input: active must be true or false")
		return
	}
	u, err := h.portal.SetUserActive(r.Context(), identity(r).UserID, userID, active)
	if err != nil {
		h.fail(w, r, err, "/admin/staff")
		return
	}
	state := "deactivated"
	if u.IsActive {
		state = "activated"
	}
	h.redirect(w, r, "/admin/staff", auth.FlashSuccess, fmt.Sprintf("%s %s", u.FullName, state))
}

type documentsData struct {
	Types     []models.DocumentType
	Sites     []models.SiteSummary
	DocType   string
	SiteID    uint
	Documents []models.DocumentSummary
}

func (h *Handler) adminDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := documentsData{Types: models.DocumentTypes, DocType: q.Get("doc_type")}
	if v := q.Get("site_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.redirect(w, r, "/admin/documents", auth.FlashError, "Invalid input: unknown site")
			return
		}
		data.SiteID = uint(id)
	}

	docs, err := h.portal.ListAllDocuments(r.Context(), data.DocType, data.SiteID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	sites, err := h.portal.SitesByName(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data.Documents = docs
	data.Sites = sites
	h.render(w, r, "admin_documents", "All documents", data)
}
