package portal

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/zeebo/blake3"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/blob"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/internal/store/sqlite"
	"github.com/petermazzocco/construction-portal/models"
)

var clockTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	svc     *Service
	store   store.Store
	uploads string
	admin   *models.User
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	return newEnvWithStore(t, nil, opts...)
}

// newEnvWithStore lets a test wrap the sqlite store.
func newEnvWithStore(t *testing.T, wrap func(store.Store) store.Store, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	st, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "portal.db"), Logger: logger})
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	uploads := filepath.Join(t.TempDir(), "uploads")
	dir, err := blob.NewDir(uploads, logger)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	var s store.Store = st
	if wrap != nil {
		s = wrap(st)
	}
	opts = append([]Option{WithLogger(logger), WithClock(func() time.Time { return clockTime })}, opts...)
	svc := New(s, dir, opts...)

	if created, err := svc.SeedAdmin(ctx, "admin", "admin123", "Administrator"); err != nil || !created {
		t.Fatalf("SeedAdmin = %t, %v", created, err)
	}
	admin, err := st.ActiveUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
	return &env{svc: svc, store: st, uploads: uploads, admin: admin}
}

func (e *env) site(t *testing.T, name string) *models.Site {
	t.Helper()
	site, err := e.svc.AddSite(context.Background(), e.admin.ID, NewSite{Name: name, Location: "Main St"})
	if err != nil {
		t.Fatalf("AddSite(%q): %v", name, err)
	}
	return site
}

func (e *env) project(t *testing.T, siteID uint, name string) *models.Project {
	t.Helper()
	p, err := e.svc.AddProject(context.Background(), e.admin.ID, siteID, NewProject{Name: name, StartDate: "2025-01-15"})
	if err != nil {
		t.Fatalf("AddProject(%q): %v", name, err)
	}
	return p
}

func (e *env) staff(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := e.svc.AddStaff(context.Background(), e.admin.ID, NewAccount{Username: username, Password: "pw-" + username, FullName: strings.ToUpper(username)})
	if err != nil {
		t.Fatalf("AddStaff(%q): %v", username, err)
	}
	return u
}

func (e *env) assign(t *testing.T, projectID uint, staff ...*models.User) {
	t.Helper()
	var ids []uint
	for _, u := range staff {
		ids = append(ids, u.ID)
	}
	if _, _, err := e.svc.AssignStaff(context.Background(), e.admin.ID, projectID, ids); err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
}

func (e *env) upload(staffID, projectID uint, typ models.DocumentType, title, filename, content string) (*models.Document, error) {
	return e.svc.UploadDocument(context.Background(), Upload{
		StaffID:   staffID,
		ProjectID: projectID,
		Type:      typ,
		Title:     title,
		Filename:  filename,
		Content:   strings.NewReader(content),
	})
}

func (e *env) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.uploads)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	hq := e.site(t, "HQ")
	tower := e.project(t, hq.ID, "Tower A")
	alice := e.staff(t, "alice")
	bob := e.staff(t, "bob")
	e.assign(t, tower.ID, alice)

	doc, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "Day 1", "day1.pdf", "%PDF-1.4")
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.FilePath != "20250301_090000_day1.pdf" {
		t.Errorf("FilePath = %q, want 20250301_090000_day1.pdf", doc.FilePath)
	}
	if len(doc.Checksum) != 64 {
		t.Errorf("Checksum = %q, want 64 hex characters", doc.Checksum)
	}

	project, docs, err := e.svc.MyProjectDocuments(ctx, alice.ID, tower.ID)
	if err != nil {
		t.Fatalf("MyProjectDocuments: %v", err)
	}
	if project.Name != "Tower A" || project.SiteName != "HQ" {
		t.Errorf("project = %+v", project)
	}
	if len(docs) != 1 || docs[0].Title != "Day 1" || docs[0].DocumentType != models.DocumentDPR {
		t.Fatalf("alice's documents = %+v, want exactly Day 1", docs)
	}

	if _, _, err := e.svc.MyProjectDocuments(ctx, bob.ID, tower.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("bob's request: got %v, want ErrForbidden", err)
	}
}

func TestDuplicateUsernameAnyRole(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.staff(t, "alice")

	if _, err := e.svc.AddUser(ctx, e.admin.ID, NewAccount{Username: "alice", Password: "x", FullName: "Other"}); !errors.Is(err, apperr.ErrDuplicateUsername) {
		t.Errorf("AddUser(alice): got %v, want ErrDuplicateUsername", err)
	}
	if _, err := e.svc.AddStaff(ctx, e.admin.ID, NewAccount{Username: "admin", Password: "x", FullName: "Other"}); !errors.Is(err, apperr.ErrDuplicateUsername) {
		t.Errorf("AddStaff(admin): got %v, want ErrDuplicateUsername", err)
	}
	created, err := e.svc.SeedAdmin(ctx, "admin", "admin123", "Administrator")
	if err != nil || created {
		t.Errorf("second SeedAdmin = %t, %v; want false, nil", created, err)
	}
	if _, err := e.svc.AddUser(ctx, e.admin.ID, NewAccount{Username: " ", Password: "x", FullName: "Y"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("AddUser(blank): got %v, want ErrInvalidInput", err)
	}
}

// raceStore pretends the username check ran before a concurrent
// insert of the same name.
type raceStore struct{ store.Store }

func (raceStore) UsernameExists(context.Context, string) (bool, error) { return false, nil }

func TestDuplicateUsernameRace(t *testing.T) {
	e := newEnvWithStore(t, func(s store.Store) store.Store { return raceStore{s} })
	e.staff(t, "alice")
	_, err := e.svc.AddUser(context.Background(), e.admin.ID, NewAccount{Username: "alice", Password: "x", FullName: "A"})
	if !errors.Is(err, apperr.ErrDuplicateUsername) {
		t.Errorf("racing insert: got %v, want ErrDuplicateUsername", err)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.staff(t, "alice")

	user, err := e.svc.Authenticate(ctx, "alice", "pw-alice")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != alice.ID || user.Role != models.RoleStaff {
		t.Errorf("Authenticate = %+v", user)
	}

	_, wrongPassword := e.svc.Authenticate(ctx, "alice", "nope")
	_, noSuchUser := e.svc.Authenticate(ctx, "mallory", "nope")
	if !errors.Is(wrongPassword, apperr.ErrInvalidCredentials) || !errors.Is(noSuchUser, apperr.ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v, want ErrInvalidCredentials", wrongPassword, noSuchUser)
	}
	if wrongPassword.Error() != noSuchUser.Error() {
		t.Errorf("outcomes differ: %q vs %q", wrongPassword, noSuchUser)
	}

	if _, err := e.svc.SetUserActive(ctx, e.admin.ID, alice.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if _, err := e.svc.Authenticate(ctx, "alice", "pw-alice"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Errorf("inactive login: got %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateExternal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if _, err := e.svc.AddUser(ctx, e.admin.ID, NewAccount{Username: "viewer@example.com", Password: "x", FullName: "Viewer"}); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	user, err := e.svc.AuthenticateExternal(ctx, "viewer@example.com")
	if err != nil || user.Role != models.RoleUser {
		t.Fatalf("AuthenticateExternal = %+v, %v", user, err)
	}
	for _, email := range []string{"", "stranger@example.com"} {
		if _, err := e.svc.AuthenticateExternal(ctx, email); !errors.Is(err, apperr.ErrInvalidCredentials) {
			t.Errorf("AuthenticateExternal(%q): got %v, want ErrInvalidCredentials", email, err)
		}
	}
}

func TestSetUserActiveRejectsAdmin(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.SetUserActive(context.Background(), e.admin.ID, e.admin.ID, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("SetUserActive(admin): got %v, want ErrForbidden", err)
	}
	if _, err := e.svc.SetUserActive(context.Background(), e.admin.ID, 999, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetUserActive(missing): got %v, want ErrNotFound", err)
	}
}

func TestAssignStaffIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	viewer, err := e.svc.AddUser(ctx, e.admin.ID, NewAccount{Username: "viewer", Password: "x", FullName: "V"})
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	added, project, err := e.svc.AssignStaff(ctx, e.admin.ID, tower.ID, []uint{alice.ID, alice.ID, viewer.ID, 999})
	if err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	if added != 1 || project.SiteID != site.ID {
		t.Errorf("AssignStaff = %d, site %d; want 1, site %d", added, project.SiteID, site.ID)
	}
	added, _, err = e.svc.AssignStaff(ctx, e.admin.ID, tower.ID, []uint{alice.ID})
	if err != nil || added != 0 {
		t.Errorf("second AssignStaff = %d, %v; want 0, nil", added, err)
	}

	a, err := e.svc.AssignableStaff(ctx, tower.ID)
	if err != nil {
		t.Fatalf("AssignableStaff: %v", err)
	}
	if len(a.Staff) != 1 || len(a.Assigned) != 1 || !a.Assigned[alice.ID] {
		t.Errorf("AssignableStaff = %+v", a)
	}

	if _, _, err := e.svc.AssignStaff(ctx, e.admin.ID, 4242, []uint{alice.ID}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("AssignStaff(missing project): got %v, want ErrNotFound", err)
	}
}

func TestStaffOnlySeesOwnDocuments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	carol := e.staff(t, "carol")
	e.assign(t, tower.ID, alice, carol)

	mine, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "Mine", "a.pdf", "a")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	theirs, err := e.upload(carol.ID, tower.ID, models.DocumentMOM, "Theirs", "c.pdf", "c")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, docs, err := e.svc.MyProjectDocuments(ctx, alice.ID, tower.ID)
	if err != nil {
		t.Fatalf("MyProjectDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != mine.ID {
		t.Errorf("alice sees %+v, want only her document", docs)
	}

	if err := e.svc.DeleteDocument(ctx, alice.ID, theirs.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("delete someone else's document: got %v, want ErrForbidden", err)
	}
	if err := e.svc.DeleteDocument(ctx, alice.ID, 4242); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("delete missing document: got %v, want ErrForbidden", err)
	}
	if err := e.svc.DeleteDocument(ctx, carol.ID, theirs.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if files := e.storedFiles(t); len(files) != 1 || files[0] != mine.FilePath {
		t.Errorf("stored files = %v, want only %s", files, mine.FilePath)
	}
}

// Only the admin browser is capped; staff and user listings return
// every document of the project.
func TestProjectListingsAreComplete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	const n = store.MaxDocumentRows + 5
	for i := 0; i < n; i++ {
		err := e.store.CreateDocument(ctx, &models.Document{
			ProjectID:    tower.ID,
			DocumentType: models.DocumentDPR,
			Title:        fmt.Sprintf("Day %d", i),
			FilePath:     fmt.Sprintf("day_%d.pdf", i),
			UploadedBy:   alice.ID,
			UploadDate:   clockTime.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateDocument %d: %v", i, err)
		}
	}

	_, mine, err := e.svc.MyProjectDocuments(ctx, alice.ID, tower.ID)
	if err != nil {
		t.Fatalf("MyProjectDocuments: %v", err)
	}
	if len(mine) != n {
		t.Errorf("MyProjectDocuments: got %d documents, want %d", len(mine), n)
	}

	_, grouped, err := e.svc.ProjectDocumentsGrouped(ctx, tower.ID)
	if err != nil {
		t.Fatalf("ProjectDocumentsGrouped: %v", err)
	}
	if got := len(grouped.Groups[0].Documents); got != n {
		t.Errorf("DPR group: got %d documents, want %d", got, n)
	}

	all, err := e.svc.ListAllDocuments(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListAllDocuments: %v", err)
	}
	if len(all) != store.MaxDocumentRows {
		t.Errorf("ListAllDocuments: got %d documents, want %d", len(all), store.MaxDocumentRows)
	}
}

func TestUploadValidation(t *testing.T) {
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	outsider := e.staff(t, "outsider")
	e.assign(t, tower.ID, alice)

	tests := []struct {
		name     string
		staffID  uint
		typ      models.DocumentType
		title    string
		filename string
		want     error
	}{
		{"bad extension", alice.ID, models.DocumentDPR, "x", "payload.exe", apperr.ErrInvalidFileType},
		{"no extension", alice.ID, models.DocumentDPR, "x", "README", apperr.ErrInvalidFileType},
		{"unknown type", alice.ID, models.DocumentType("INVOICE"), "x", "a.pdf", apperr.ErrInvalidInput},
		{"missing title", alice.ID, models.DocumentWPR, " ", "a.pdf", apperr.ErrInvalidInput},
		{"not assigned", outsider.ID, models.DocumentDPR, "x", "a.pdf", apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.upload(tt.staffID, tower.ID, tt.typ, tt.title, tt.filename, "data")
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	docs, err := e.svc.ListAllDocuments(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListAllDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("%d documents recorded after rejected uploads", len(docs))
	}
	if files := e.storedFiles(t); len(files) != 0 {
		t.Errorf("files written after rejected uploads: %v", files)
	}

	_, err = e.svc.UploadDocument(context.Background(), Upload{
		StaffID: alice.ID, ProjectID: tower.ID, Type: models.DocumentDPR, Title: "x",
		ReportDate: "03/01/2025", Filename: "a.pdf", Content: strings.NewReader("d"),
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("bad report date: got %v, want ErrInvalidInput", err)
	}
}

func TestUploadTooLarge(t *testing.T) {
	e := newEnv(t, WithMaxUploadBytes(4))
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	if _, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "big", "big.pdf", "12345"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if _, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "ok", "ok.pdf", "1234"); err != nil {
		t.Fatalf("upload at the limit: %v", err)
	}
	if files := e.storedFiles(t); len(files) != 1 {
		t.Errorf("stored files = %v, want one", files)
	}
}

func TestUploadNameCollision(t *testing.T) {
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	first, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "one", "report.pdf", "first")
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := e.upload(alice.ID, tower.ID, models.DocumentDPR, "two", "report.pdf", "second")
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first.FilePath == second.FilePath {
		t.Fatalf("both uploads stored as %s", first.FilePath)
	}
	if !strings.HasPrefix(second.FilePath, "20250301_090000_report_") || !strings.HasSuffix(second.FilePath, ".pdf") {
		t.Errorf("second FilePath = %q", second.FilePath)
	}

	for doc, want := range map[*models.Document]string{first: "first", second: "second"} {
		f, err := e.svc.OpenFile(context.Background(), doc.FilePath)
		if err != nil {
			t.Fatalf("OpenFile(%s): %v", doc.FilePath, err)
		}
		data, _ := io.ReadAll(f)
		f.Close()
		if string(data) != want {
			t.Errorf("%s holds %q, want %q", doc.FilePath, data, want)
		}
		if f.ContentType != "application/pdf" {
			t.Errorf("content type = %q, want application/pdf", f.ContentType)
		}
		sum := blake3.Sum256([]byte(want))
		if f.Checksum != hex.EncodeToString(sum[:]) {
			t.Errorf("%s checksum = %q, want blake3 of its content", doc.FilePath, f.Checksum)
		}
	}
}

type failingInsert struct{ store.Store }

func (failingInsert) CreateDocument(context.Context, *models.Document) error {
	return errors.New("disk I/O error")
}

func TestUploadRemovesFileWhenInsertFails(t *testing.T) {
	e := newEnvWithStore(t, func(s store.Store) store.Store { return failingInsert{s} }, WithThumbnailer(fakeThumbs{}))
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	_, err := e.upload(alice.ID, tower.ID, models.DocumentPhoto, "pic", "pic.png", "png-bytes")
	if !errors.Is(err, apperr.ErrUploadFailed) {
		t.Fatalf("got %v, want ErrUploadFailed", err)
	}
	if files := e.storedFiles(t); len(files) != 0 {
		t.Errorf("orphaned files: %v", files)
	}
}

type fakeThumbs struct{ err error }

func (f fakeThumbs) Thumbnail(data []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("thumb:" + string(data)), nil
}

func TestPhotoThumbnails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, WithThumbnailer(fakeThumbs{}))
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	photo, err := e.upload(alice.ID, tower.ID, models.DocumentPhoto, "Slab", "slab.PNG", "png-bytes")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if photo.ThumbnailPath != "thumb_20250301_090000_slab.jpg" {
		t.Errorf("ThumbnailPath = %q", photo.ThumbnailPath)
	}
	pdf, err := e.upload(alice.ID, tower.ID, models.DocumentPhoto, "Scan", "scan.pdf", "pdf")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if pdf.ThumbnailPath != "" {
		t.Errorf("PDF got a thumbnail: %q", pdf.ThumbnailPath)
	}

	if err := e.svc.DeleteDocument(ctx, alice.ID, photo.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if files := e.storedFiles(t); len(files) != 1 || files[0] != pdf.FilePath {
		t.Errorf("stored files after delete = %v, want only %s", files, pdf.FilePath)
	}
}

func TestThumbnailFailureKeepsUpload(t *testing.T) {
	e := newEnv(t, WithThumbnailer(fakeThumbs{err: errors.New("vips: unsupported")}))
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower A")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)

	doc, err := e.upload(alice.ID, tower.ID, models.DocumentPhoto, "Slab", "slab.jpg", "not really a jpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.ThumbnailPath != "" {
		t.Errorf("ThumbnailPath = %q, want empty", doc.ThumbnailPath)
	}
}

func TestSitesByName(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"Yard", "Annex", "Mill"} {
		e.site(t, name)
	}
	sites, err := e.svc.SitesByName(context.Background())
	if err != nil {
		t.Fatalf("SitesByName: %v", err)
	}
	var got []string
	for _, s := range sites {
		got = append(got, s.Name)
	}
	if strings.Join(got, ",") != "Annex,Mill,Yard" {
		t.Errorf("SitesByName = %v, want [Annex Mill Yard]", got)
	}
}

func TestSitesAndProjects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	hq := e.site(t, "HQ")
	yard := e.site(t, "Yard")
	tower := e.project(t, hq.ID, "Tower A")

	if _, err := e.svc.AddSite(ctx, e.admin.ID, NewSite{Name: "  "}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("AddSite(blank): got %v, want ErrInvalidInput", err)
	}
	if _, err := e.svc.AddProject(ctx, e.admin.ID, 4242, NewProject{Name: "Orphan"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("AddProject(missing site): got %v, want ErrNotFound", err)
	}
	if _, err := e.svc.AddProject(ctx, e.admin.ID, hq.ID, NewProject{Name: "P", StartDate: "tomorrow"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("AddProject(bad date): got %v, want ErrInvalidInput", err)
	}

	site, projects, err := e.svc.SiteProjects(ctx, hq.ID)
	if err != nil {
		t.Fatalf("SiteProjects: %v", err)
	}
	if site.Name != "HQ" || len(projects) != 1 || projects[0].CreatedByName != "Administrator" {
		t.Errorf("SiteProjects = %+v, %+v", site, projects)
	}
	if _, _, err := e.svc.SiteProjects(ctx, 4242); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SiteProjects(missing): got %v, want ErrNotFound", err)
	}

	if err := e.svc.DeactivateSite(ctx, e.admin.ID, hq.ID); err != nil {
		t.Fatalf("DeactivateSite: %v", err)
	}
	sites, err := e.svc.ActiveSites(ctx)
	if err != nil {
		t.Fatalf("ActiveSites: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != yard.ID {
		t.Errorf("ActiveSites = %+v, want only Yard", sites)
	}
	p, err := e.svc.Project(ctx, tower.ID)
	if err != nil || p.Name != "Tower A" {
		t.Errorf("Project after site deactivation = %+v, %v", p, err)
	}

	deactivated, err := e.svc.DeactivateProject(ctx, e.admin.ID, tower.ID)
	if err != nil || deactivated.SiteID != hq.ID {
		t.Fatalf("DeactivateProject = %+v, %v", deactivated, err)
	}
	if _, err := e.svc.Project(ctx, tower.ID); err != nil {
		t.Errorf("Project after deactivation: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	site := e.site(t, "HQ")
	a := e.project(t, site.ID, "A")
	b := e.project(t, site.ID, "B")
	alice := e.staff(t, "alice")
	e.staff(t, "bob")
	e.assign(t, a.ID, alice)
	e.assign(t, b.ID, alice)
	if _, err := e.upload(alice.ID, a.ID, models.DocumentDPR, "d", "d.pdf", "x"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	admin, err := e.svc.Dashboard(ctx, models.RoleAdmin, e.admin.ID)
	if err != nil {
		t.Fatalf("Dashboard(admin): %v", err)
	}
	if *admin != (Dashboard{Role: models.RoleAdmin, ActiveSites: 1, ActiveProjects: 2, ActiveStaff: 2, Documents: 1}) {
		t.Errorf("admin dashboard = %+v", admin)
	}

	staff, err := e.svc.Dashboard(ctx, models.RoleStaff, alice.ID)
	if err != nil {
		t.Fatalf("Dashboard(staff): %v", err)
	}
	if *staff != (Dashboard{Role: models.RoleStaff, AssignedProjects: 2, MyDocuments: 1}) {
		t.Errorf("staff dashboard = %+v", staff)
	}

	user, err := e.svc.Dashboard(ctx, models.RoleUser, 0)
	if err != nil {
		t.Fatalf("Dashboard(user): %v", err)
	}
	if *user != (Dashboard{Role: models.RoleUser, ActiveSites: 1, ActiveProjects: 2}) {
		t.Errorf("user dashboard = %+v", user)
	}
}

func TestAdminDocumentFilters(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	hq := e.site(t, "HQ")
	yard := e.site(t, "Yard")
	tower := e.project(t, hq.ID, "Tower")
	shed := e.project(t, yard.ID, "Shed")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)
	e.assign(t, shed.ID, alice)
	for _, u := range []struct {
		project uint
		typ     models.DocumentType
	}{{tower.ID, models.DocumentDPR}, {tower.ID, models.DocumentMOM}, {shed.ID, models.DocumentDPR}} {
		if _, err := e.upload(alice.ID, u.project, u.typ, "t", "f.pdf", "x"); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	tests := []struct {
		docType string
		siteID  uint
		want    int
	}{
		{"", 0, 3},
		{"DPR", 0, 2},
		{"", hq.ID, 2},
		{"DPR", yard.ID, 1},
		{"PHOTO", 0, 0},
	}
	for _, tt := range tests {
		docs, err := e.svc.ListAllDocuments(ctx, tt.docType, tt.siteID)
		if err != nil {
			t.Fatalf("ListAllDocuments: %v", err)
		}
		if len(docs) != tt.want {
			t.Errorf("ListAllDocuments(%q, %d) returned %d, want %d", tt.docType, tt.siteID, len(docs), tt.want)
		}
	}
}

func TestProjectDocumentsGrouped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	site := e.site(t, "HQ")
	tower := e.project(t, site.ID, "Tower")
	alice := e.staff(t, "alice")
	e.assign(t, tower.ID, alice)
	for _, typ := range []models.DocumentType{models.DocumentMOM, models.DocumentMOM, models.DocumentPhoto} {
		if _, err := e.upload(alice.ID, tower.ID, typ, "t", "f.pdf", "x"); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	project, g, err := e.svc.ProjectDocumentsGrouped(ctx, tower.ID)
	if err != nil {
		t.Fatalf("ProjectDocumentsGrouped: %v", err)
	}
	if project.Name != "Tower" {
		t.Errorf("project = %+v", project)
	}
	want := map[models.DocumentType]int{models.DocumentDPR: 0, models.DocumentMOM: 2, models.DocumentWPR: 0, models.DocumentPhoto: 1}
	if len(g.Groups) != 4 {
		t.Fatalf("got %d groups, want 4", len(g.Groups))
	}
	for i, group := range g.Groups {
		if group.Type != models.DocumentTypes[i] {
			t.Errorf("group %d is %s, want %s", i, group.Type, models.DocumentTypes[i])
		}
		if len(group.Documents) != want[group.Type] {
			t.Errorf("group %s has %d documents, want %d", group.Type, len(group.Documents), want[group.Type])
		}
	}
	if len(g.Unrecognized) != 0 {
		t.Errorf("Unrecognized = %+v", g.Unrecognized)
	}

	if _, _, err := e.svc.ProjectDocumentsGrouped(ctx, 4242); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing project: got %v, want ErrNotFound", err)
	}
}

func TestGroupDocumentsUnrecognized(t *testing.T) {
	g := groupDocuments([]models.DocumentSummary{
		{ID: 1, DocumentType: models.DocumentWPR},
		{ID: 2, DocumentType: "INVOICE"},
	})
	if len(g.Groups[2].Documents) != 1 || g.Groups[2].Label != "Weekly Progress Report" {
		t.Errorf("WPR group = %+v", g.Groups[2])
	}
	if len(g.Unrecognized) != 1 || g.Unrecognized[0].ID != 2 {
		t.Errorf("Unrecognized = %+v", g.Unrecognized)
	}
}

func TestOpenFileRejectsPaths(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"../portal.db", "a/b.pdf", "", ".."} {
		if _, err := e.svc.OpenFile(context.Background(), name); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("OpenFile(%q): got %v, want ErrNotFound", name, err)
		}
	}
}
