// Package storetest is a conformance suite every store.Store backend
// must pass. Backend packages call Run from their own tests with a
// constructor that returns an empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

// Factory returns an empty store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes the whole suite against newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"DuplicateUsername", testDuplicateUsername},
		{"ActiveUserByUsername", testActiveUserByUsername},
		{"ListStaffAndUsers", testListStaffAndUsers},
		{"SitesAndProjects", testSitesAndProjects},
		{"ProjectRequiresSite", testProjectRequiresSite},
		{"DuplicateAssignment", testDuplicateAssignment},
		{"AssignedProjects", testAssignedProjects},
		{"Documents", testDocuments},
		{"DocumentLimit", testDocumentLimit},
		{"DocumentTypeConstraint", testDocumentTypeConstraint},
		{"Counts", testCounts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func mustUser(t *testing.T, s store.Store, username string, role models.Role, at time.Time) *models.User {
	t.Helper()
	u := &models.User{
		Username:     username,
		PasswordHash: "hash-" + username,
		FullName:     "Full " + username,
		Role:         role,
		IsActive:     true,
		CreatedAt:    at,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	if u.ID == 0 {
		t.Fatalf("CreateUser(%q) did not assign an id", username)
	}
	return u
}

func mustSite(t *testing.T, s store.Store, name string, by uint, at time.Time) *models.Site {
	t.Helper()
	site := &models.Site{Name: name, Location: "loc " + name, CreatedBy: by, CreatedAt: at, IsActive: true}
	if err := s.CreateSite(context.Background(), site); err != nil {
		t.Fatalf("CreateSite(%q): %v", name, err)
	}
	return site
}

func mustProject(t *testing.T, s store.Store, name string, siteID, by uint, at time.Time) *models.Project {
	t.Helper()
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	p := &models.Project{Name: name, SiteID: siteID, StartDate: &start, CreatedBy: by, CreatedAt: at, IsActive: true}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject(%q): %v", name, err)
	}
	return p
}

func mustDocument(t *testing.T, s store.Store, projectID, by uint, typ models.DocumentType, title string, at time.Time) *models.Document {
	t.Helper()
	d := &models.Document{
		ProjectID:    projectID,
		DocumentType: typ,
		Title:        title,
		FilePath:     at.Format("20060102_150405") + "_" + title + ".pdf",
		Checksum:     "sum-" + title,
		UploadedBy:   by,
		UploadDate:   at,
	}
	if err := s.CreateDocument(context.Background(), d); err != nil {
		t.Fatalf("CreateDocument(%q): %v", title, err)
	}
	return d
}

func testDuplicateUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUser(t, s, "alice", models.RoleStaff, base)

	for _, role := range []models.Role{models.RoleStaff, models.RoleUser, models.RoleAdmin} {
		dup := &models.User{Username: "alice", PasswordHash: "x", FullName: "Other", Role: role, IsActive: true}
		err := s.CreateUser(ctx, dup)
		if !errors.Is(err, apperr.ErrDuplicateUsername) {
			t.Errorf("CreateUser duplicate with role %s: got %v, want ErrDuplicateUsername", role, err)
		}
	}

	exists, err := s.UsernameExists(ctx, "alice")
	if err != nil || !exists {
		t.Fatalf("UsernameExists(alice) = %t, %v; want true", exists, err)
	}
	exists, err = s.UsernameExists(ctx, "nobody")
	if err != nil || exists {
		t.Fatalf("UsernameExists(nobody) = %t, %v; want false", exists, err)
	}
}

func testActiveUserByUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "bob", models.RoleStaff, base)

	got, err := s.ActiveUserByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("ActiveUserByUsername: %v", err)
	}
	if got.ID != u.ID || got.Role != models.RoleStaff || got.PasswordHash != "hash-bob" {
		t.Errorf("ActiveUserByUsername = %+v, want id %d staff", got, u.ID)
	}

	if err := s.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if _, err := s.ActiveUserByUsername(ctx, "bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("inactive user lookup: got %v, want ErrNotFound", err)
	}
	if _, err := s.ActiveUserByUsername(ctx, "Bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("lookup is not exact: got %v, want ErrNotFound", err)
	}
	if err := s.SetUserActive(ctx, 9999, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetUserActive(missing): got %v, want ErrNotFound", err)
	}

	byID, err := s.User(ctx, u.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if byID.IsActive {
		t.Errorf("User(%d).IsActive = true after deactivation", u.ID)
	}
}

func testListStaffAndUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUser(t, s, "root", models.RoleAdmin, base)
	staff := mustUser(t, s, "staff1", models.RoleStaff, base.Add(time.Minute))
	viewer := mustUser(t, s, "viewer", models.RoleUser, base.Add(2*time.Minute))
	if err := s.SetUserActive(ctx, staff.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	users, err := s.ListStaffAndUsers(ctx)
	if err != nil {
		t.Fatalf("ListStaffAndUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListStaffAndUsers returned %d users, want 2", len(users))
	}
	if users[0].ID != viewer.ID || users[1].ID != staff.ID {
		t.Errorf("order = [%s %s], want newest first [viewer staff1]", users[0].Username, users[1].Username)
	}

	active, err := s.ListActiveStaff(ctx)
	if err != nil {
		t.Fatalf("ListActiveStaff: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("ListActiveStaff returned %d users, want 0", len(active))
	}
}

func testSitesAndProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	hq := mustSite(t, s, "HQ", admin.ID, base)
	yard := mustSite(t, s, "Yard", admin.ID, base.Add(time.Hour))
	tower := mustProject(t, s, "Tower A", hq.ID, admin.ID, base)
	mustProject(t, s, "Tower B", hq.ID, admin.ID, base.Add(time.Hour))

	sites, err := s.ListActiveSites(ctx)
	if err != nil {
		t.Fatalf("ListActiveSites: %v", err)
	}
	if len(sites) != 2 || sites[0].ID != yard.ID {
		t.Fatalf("ListActiveSites = %+v, want Yard then HQ", sites)
	}
	if sites[1].CreatedByName != "Full admin" {
		t.Errorf("CreatedByName = %q, want %q", sites[1].CreatedByName, "Full admin")
	}

	projects, err := s.ListActiveProjects(ctx, hq.ID)
	if err != nil {
		t.Fatalf("ListActiveProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "Tower B" {
		t.Fatalf("ListActiveProjects = %+v, want Tower B then Tower A", projects)
	}
	if projects[1].SiteName != "HQ" || projects[1].StartDate == nil || projects[1].StartDate.Day() != 15 {
		t.Errorf("project summary = %+v, want site HQ and start date on the 15th", projects[1])
	}

	if err := s.SetSiteActive(ctx, hq.ID, false); err != nil {
		t.Fatalf("SetSiteActive: %v", err)
	}
	sites, err = s.ListActiveSites(ctx)
	if err != nil {
		t.Fatalf("ListActiveSites: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != yard.ID {
		t.Errorf("after deactivation ListActiveSites = %+v, want only Yard", sites)
	}
	got, err := s.Project(ctx, tower.ID)
	if err != nil {
		t.Fatalf("Project after site deactivation: %v", err)
	}
	if got.Name != "Tower A" {
		t.Errorf("Project(%d).Name = %q, want Tower A", tower.ID, got.Name)
	}
	site, err := s.Site(ctx, hq.ID)
	if err != nil {
		t.Fatalf("Site: %v", err)
	}
	if site.IsActive {
		t.Errorf("Site(%d).IsActive = true after deactivation", hq.ID)
	}

	if err := s.SetProjectActive(ctx, tower.ID, false); err != nil {
		t.Fatalf("SetProjectActive: %v", err)
	}
	projects, err = s.ListActiveProjects(ctx, hq.ID)
	if err != nil {
		t.Fatalf("ListActiveProjects: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("ListActiveProjects after deactivation returned %d, want 1", len(projects))
	}

	if _, err := s.Site(ctx, 4242); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Site(missing): got %v, want ErrNotFound", err)
	}
	if _, err := s.Project(ctx, 4242); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Project(missing): got %v, want ErrNotFound", err)
	}
}

func testProjectRequiresSite(t *testing.T, s store.Store) {
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	p := &models.Project{Name: "Orphan", SiteID: 777, CreatedBy: admin.ID, IsActive: true}
	err := s.CreateProject(context.Background(), p)
	if !errors.Is(err, apperr.ErrConstraintViolation) {
		t.Errorf("CreateProject with missing site: got %v, want ErrConstraintViolation", err)
	}
}

func testDuplicateAssignment(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	alice := mustUser(t, s, "alice", models.RoleStaff, base)
	site := mustSite(t, s, "HQ", admin.ID, base)
	project := mustProject(t, s, "Tower A", site.ID, admin.ID, base)

	first := &models.StaffAssignment{StaffID: alice.ID, ProjectID: project.ID, AssignedBy: admin.ID}
	if err := s.CreateAssignment(ctx, first); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	second := &models.StaffAssignment{StaffID: alice.ID, ProjectID: project.ID, AssignedBy: admin.ID}
	if err := s.CreateAssignment(ctx, second); !errors.Is(err, apperr.ErrAlreadyAssigned) {
		t.Fatalf("second CreateAssignment: got %v, want ErrAlreadyAssigned", err)
	}

	ids, err := s.AssignedStaffIDs(ctx, project.ID)
	if err != nil {
		t.Fatalf("AssignedStaffIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != alice.ID {
		t.Errorf("AssignedStaffIDs = %v, want [%d]", ids, alice.ID)
	}
	ok, err := s.AssignmentExists(ctx, alice.ID, project.ID)
	if err != nil || !ok {
		t.Errorf("AssignmentExists = %t, %v; want true", ok, err)
	}
}

func testAssignedProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	alice := mustUser(t, s, "alice", models.RoleStaff, base)
	site := mustSite(t, s, "HQ", admin.ID, base)
	a := mustProject(t, s, "A", site.ID, admin.ID, base)
	b := mustProject(t, s, "B", site.ID, admin.ID, base.Add(time.Minute))
	mustProject(t, s, "C", site.ID, admin.ID, base.Add(2*time.Minute))

	for _, p := range []*models.Project{a, b} {
		if err := s.CreateAssignment(ctx, &models.StaffAssignment{StaffID: alice.ID, ProjectID: p.ID, AssignedBy: admin.ID}); err != nil {
			t.Fatalf("CreateAssignment: %v", err)
		}
	}
	if err := s.SetProjectActive(ctx, a.ID, false); err != nil {
		t.Fatalf("SetProjectActive: %v", err)
	}

	projects, err := s.ListAssignedProjects(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListAssignedProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != b.ID {
		t.Errorf("ListAssignedProjects = %+v, want only B", projects)
	}
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	alice := mustUser(t, s, "alice", models.RoleStaff, base)
	bob := mustUser(t, s, "bob", models.RoleStaff, base)
	hq := mustSite(t, s, "HQ", admin.ID, base)
	yard := mustSite(t, s, "Yard", admin.ID, base)
	tower := mustProject(t, s, "Tower", hq.ID, admin.ID, base)
	shed := mustProject(t, s, "Shed", yard.ID, admin.ID, base)

	d1 := mustDocument(t, s, tower.ID, alice.ID, models.DocumentDPR, "day1", base)
	d2 := mustDocument(t, s, tower.ID, bob.ID, models.DocumentMOM, "meeting", base.Add(time.Hour))
	d3 := mustDocument(t, s, shed.ID, alice.ID, models.DocumentDPR, "shed-day1", base.Add(2*time.Hour))

	all, err := s.ListDocuments(ctx, store.DocumentFilter{})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(all) != 3 || all[0].ID != d3.ID || all[2].ID != d1.ID {
		t.Fatalf("ListDocuments order = %+v, want newest first", all)
	}
	if all[0].SiteName != "Yard" || all[0].ProjectName != "Shed" || all[0].UploadedByName != "Full alice" {
		t.Errorf("joined columns = %+v", all[0])
	}

	byPath, err := s.DocumentByPath(ctx, d2.FilePath)
	if err != nil {
		t.Fatalf("DocumentByPath: %v", err)
	}
	if byPath.ID != d2.ID || byPath.Checksum != d2.Checksum {
		t.Errorf("DocumentByPath = %+v, want document %d", byPath, d2.ID)
	}
	if _, err := s.DocumentByPath(ctx, "missing.pdf"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("DocumentByPath(missing): got %v, want ErrNotFound", err)
	}

	cases := []struct {
		name   string
		filter store.DocumentFilter
		want   []uint
	}{
		{"by type", store.DocumentFilter{Type: models.DocumentDPR}, []uint{d3.ID, d1.ID}},
		{"by site", store.DocumentFilter{SiteID: hq.ID}, []uint{d2.ID, d1.ID}},
		{"by type and site", store.DocumentFilter{Type: models.DocumentDPR, SiteID: hq.ID}, []uint{d1.ID}},
		{"by project and uploader", store.DocumentFilter{ProjectID: tower.ID, UploadedBy: alice.ID}, []uint{d1.ID}},
		{"limit", store.DocumentFilter{Limit: 1}, []uint{d3.ID}},
		{"no match", store.DocumentFilter{Type: models.DocumentPhoto}, nil},
	}
	for _, tc := range cases {
		docs, err := s.ListDocuments(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: ListDocuments: %v", tc.name, err)
		}
		var got []uint
		for _, d := range docs {
			got = append(got, d.ID)
		}
		if len(got) != len(tc.want) {
			t.Errorf("%s: got ids %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got ids %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}

	doc, err := s.Document(ctx, d2.ID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.UploadedBy != bob.ID || doc.FilePath != d2.FilePath {
		t.Errorf("Document(%d) = %+v", d2.ID, doc)
	}
	if err := s.DeleteDocument(ctx, d2.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.Document(ctx, d2.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Document after delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument(ctx, d2.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second DeleteDocument: got %v, want ErrNotFound", err)
	}
}

func testDocumentTypeConstraint(t *testing.T, s store.Store) {
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	site := mustSite(t, s, "HQ", admin.ID, base)
	project := mustProject(t, s, "Tower", site.ID, admin.ID, base)

	d := &models.Document{
		ProjectID:    project.ID,
		DocumentType: models.DocumentType("INVOICE"),
		Title:        "bad",
		FilePath:     "bad.pdf",
		UploadedBy:   admin.ID,
	}
	if err := s.CreateDocument(context.Background(), d); !errors.Is(err, apperr.ErrConstraintViolation) {
		t.Errorf("CreateDocument with unknown type: got %v, want ErrConstraintViolation", err)
	}
}

func testCounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	alice := mustUser(t, s, "alice", models.RoleStaff, base)
	bob := mustUser(t, s, "bob", models.RoleStaff, base)
	mustUser(t, s, "viewer", models.RoleUser, base)
	if err := s.SetUserActive(ctx, bob.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	hq := mustSite(t, s, "HQ", admin.ID, base)
	old := mustSite(t, s, "Old", admin.ID, base)
	if err := s.SetSiteActive(ctx, old.ID, false); err != nil {
		t.Fatalf("SetSiteActive: %v", err)
	}
	a := mustProject(t, s, "A", hq.ID, admin.ID, base)
	b := mustProject(t, s, "B", hq.ID, admin.ID, base)
	for _, p := range []*models.Project{a, b} {
		if err := s.CreateAssignment(ctx, &models.StaffAssignment{StaffID: alice.ID, ProjectID: p.ID, AssignedBy: admin.ID}); err != nil {
			t.Fatalf("CreateAssignment: %v", err)
		}
	}
	mustDocument(t, s, a.ID, alice.ID, models.DocumentDPR, "one", base)
	mustDocument(t, s, a.ID, bob.ID, models.DocumentWPR, "two", base.Add(time.Second))

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := store.Counts{ActiveSites: 1, ActiveProjects: 2, ActiveStaff: 1, Documents: 2}
	if c != want {
		t.Errorf("Counts = %+v, want %+v", c, want)
	}

	sc, err := s.StaffCounts(ctx, alice.ID)
	if err != nil {
		t.Fatalf("StaffCounts: %v", err)
	}
	if sc != (store.StaffCounts{AssignedProjects: 2, UploadedDocuments: 1}) {
		t.Errorf("StaffCounts = %+v, want 2 projects and 1 document", sc)
	}
}

func testDocumentLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	admin := mustUser(t, s, "admin", models.RoleAdmin, base)
	alice := mustUser(t, s, "alice", models.RoleStaff, base)
	hq := mustSite(t, s, "HQ", admin.ID, base)
	tower := mustProject(t, s, "Tower", hq.ID, admin.ID, base)

	const n = store.MaxDocumentRows + 5
	for i := 0; i < n; i++ {
		mustDocument(t, s, tower.ID, alice.ID, models.DocumentDPR, fmt.Sprintf("day%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	all, err := s.ListDocuments(ctx, store.DocumentFilter{ProjectID: tower.ID})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(all) != n {
		t.Errorf("ListDocuments without limit: got %d rows, want %d", len(all), n)
	}

	capped, err := s.ListDocuments(ctx, store.DocumentFilter{Limit: store.MaxDocumentRows})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(capped) != store.MaxDocumentRows {
		t.Errorf("ListDocuments with limit: got %d rows, want %d", len(capped), store.MaxDocumentRows)
	}
}
