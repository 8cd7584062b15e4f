package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/zeebo/blake3"

	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/blob"
	"github.com/petermazzocco/construction-portal/internal/portal"
	"github.com/petermazzocco/construction-portal/internal/session"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/internal/store/sqlite"
	"github.com/petermazzocco/construction-portal/models"
)

type server struct {
	*httptest.Server
	store store.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	st, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "portal.db"), Logger: logger})
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir, err := blob.NewDir(filepath.Join(t.TempDir(), "uploads"), logger)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	svc := portal.New(st, dir, portal.WithLogger(logger), portal.WithMaxUploadBytes(1<<20))
	if _, err := svc.SeedAdmin(ctx, "admin", "admin123", "Administrator"); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}

	h, err := New(Deps{
		Portal:   svc,
		Sessions: session.NewManager(session.NewMemoryStore(), 0, session.WithLogger(logger)),
		Cookies:  auth.NewCookies([]byte("0123456789abcdef0123456789abcdef"), 3600, false),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &server{Server: srv, store: st}
}

// browser keeps cookies and never follows redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (s *server) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &browser{t: t, base: s.URL, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(req *http.Request) (int, string, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

func (b *browser) get(path string) (int, string, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatal(err)
	}
	return b.do(req)
}

// fetch sends a GET with extra headers and returns the raw response.
func (b *browser) fetch(path string, header http.Header) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("GET %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (b *browser) post(path string, form url.Values) (int, string, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) upload(path string, fields map[string]string, filename, content string) (int, string, string) {
	b.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			b.t.Fatal(err)
		}
		io.WriteString(fw, content)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, b.base+path, &buf)
	if err != nil {
		b.t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

// expectRedirect asserts a 303 to want and returns the body of the
// page it points at, which carries the flash.
func (b *browser) expectRedirect(status int, location, want string) string {
	b.t.Helper()
	if status != http.StatusSeeOther || location != want {
		b.t.Fatalf("got %d to %q, want 303 to %q", status, location, want)
	}
	_, _, body := b.get(location)
	return body
}

func (b *browser) login(username, password string) {
	b.t.Helper()
	status, loc, _ := b.post("/login", url.Values{"username": {username}, "password": {password}})
	if status != http.StatusSeeOther || loc != "/dashboard" {
		b.t.Fatalf("login %s: got %d to %q", username, status, loc)
	}
}

func mustContain(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Fatalf("body does not contain %q:\n%s", want, body)
	}
}

func TestPortalScenario(t *testing.T) {
	s := newServer(t)

	admin := s.browser(t)
	admin.login("admin", "admin123")
	_, _, body := admin.get("/dashboard")
	mustContain(t, body, "Welcome Administrator!")

	st, loc, _ := admin.post("/admin/sites/add", url.Values{"site_name": {"HQ"}, "location": {"Main St"}})
	mustContain(t, admin.expectRedirect(st, loc, "/admin/sites"), "Site added successfully")

	st, loc, _ = admin.post("/admin/projects/add/1", url.Values{"project_name": {"Tower A"}, "start_date": {"2024-03-01"}})
	mustContain(t, admin.expectRedirect(st, loc, "/admin/sites/1/projects"), "Project added successfully")

	for _, acct := range []struct{ path, username, name, flash string }{
		{"/admin/staff/add", "alice", "Alice", "Staff member added successfully"},
		{"/admin/staff/add", "bob", "Bob", "Staff member added successfully"},
		{"/admin/users/add", "carol", "Carol", "User added successfully"},
	} {
		st, loc, _ := admin.post(acct.path, url.Values{"username": {acct.username}, "password": {"pw-" + acct.username}, "full_name": {acct.name}})
		mustContain(t, admin.expectRedirect(st, loc, "/admin/staff"), acct.flash)
	}

	st, loc, _ = admin.post("/admin/staff/add", url.Values{"username": {"alice"}, "password": {"x"}, "full_name": {"Again"}})
	mustContain(t, admin.expectRedirect(st, loc, "/admin/staff/add"), "Username already exists")

	alice, err := s.store.ActiveUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("lookup alice: %v", err)
	}
	st, loc, _ = admin.post("/admin/projects/1/assign", url.Values{"staff_ids": {itoa(alice.ID)}})
	mustContain(t, admin.expectRedirect(st, loc, "/admin/sites/1/projects"), "Staff assigned successfully")

	// alice uploads a DPR to her project.
	a := s.browser(t)
	a.login("alice", "pw-alice")
	st, loc, _ = a.upload("/staff/upload/1", map[string]string{
		"document_type": "DPR",
		"title":         "Day 1",
		"report_date":   "2024-03-02",
	}, "report.pdf", "%PDF-1.4 day one")
	body = a.expectRedirect(st, loc, "/staff/projects/1/documents")
	mustContain(t, body, "Document uploaded successfully")
	mustContain(t, body, "Day 1")

	st, loc, _ = a.upload("/staff/upload/1", map[string]string{"document_type": "DPR", "title": "Bad"}, "tool.exe", "MZ")
	mustContain(t, a.expectRedirect(st, loc, "/staff/upload/1"), "Invalid file type")

	st, loc, _ = a.upload("/staff/upload/1", map[string]string{"document_type": "DPR", "title": "Nothing"}, "", "")
	mustContain(t, a.expectRedirect(st, loc, "/staff/upload/1"), "No file selected")

	docs, err := s.store.ListDocuments(context.Background(), store.DocumentFilter{ProjectID: 1})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	doc := docs[0]

	// bob is not assigned to the project.
	b := s.browser(t)
	b.login("bob", "pw-bob")
	st, loc, _ = b.get("/staff/projects/1/documents")
	mustContain(t, b.expectRedirect(st, loc, "/staff/projects"), "Access denied")
	st, loc, _ = b.upload("/staff/upload/1", map[string]string{"document_type": "DPR", "title": "Sneaky"}, "x.pdf", "x")
	mustContain(t, b.expectRedirect(st, loc, "/staff/projects"), "Access denied")
	st, loc, _ = b.post("/staff/documents/"+itoa(doc.ID)+"/delete", nil)
	mustContain(t, b.expectRedirect(st, loc, "/staff/projects"), "Access denied")
	st, loc, _ = b.get("/admin/sites")
	mustContain(t, b.expectRedirect(st, loc, "/dashboard"), "Access denied")

	// Any logged-in account can download.
	status, _, content := b.get("/uploads/" + doc.FilePath)
	if status != http.StatusOK || content != "%PDF-1.4 day one" {
		t.Fatalf("download = %d %q", status, content)
	}
	sum := blake3.Sum256([]byte("%PDF-1.4 day one"))
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	if got := b.fetch("/uploads/"+doc.FilePath, nil).Header.Get("ETag"); got != etag {
		t.Errorf("ETag = %q, want %q", got, etag)
	}
	if resp := b.fetch("/uploads/"+doc.FilePath, http.Header{"If-None-Match": {etag}}); resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional download = %d, want 304", resp.StatusCode)
	}

	c := s.browser(t)
	c.login("carol", "pw-carol")
	_, _, body = c.get("/user/projects/1/documents")
	mustContain(t, body, models.DocumentDPR.Label())
	mustContain(t, body, "Day 1")
	mustContain(t, body, "Alice")

	_, _, body = admin.get("/admin/documents?doc_type=DPR&site_id=1")
	mustContain(t, body, "Day 1")
	mustContain(t, body, doc.Checksum[:12])

	st, loc, _ = a.post("/staff/documents/"+itoa(doc.ID)+"/delete", nil)
	mustContain(t, a.expectRedirect(st, loc, "/staff/projects"), "Document deleted successfully")
	if status, _, _ := c.get("/uploads/" + doc.FilePath); status != http.StatusNotFound {
		t.Fatalf("download after delete = %d, want 404", status)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestGuardRedirects(t *testing.T) {
	s := newServer(t)
	anon := s.browser(t)

	for _, path := range []string{"/dashboard", "/admin/sites", "/staff/projects", "/user/sites", "/uploads/x.pdf", "/logout"} {
		st, loc, _ := anon.get(path)
		if st != http.StatusSeeOther || loc != "/login" {
			t.Errorf("GET %s = %d to %q, want 303 to /login", path, st, loc)
		}
	}
	_, _, body := anon.get("/login")
	mustContain(t, body, "Please login first")

	if st, loc, _ := anon.get("/"); st != http.StatusSeeOther || loc != "/login" {
		t.Errorf("GET / = %d to %q", st, loc)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	s := newServer(t)
	b := s.browser(t)

	_, wrongLoc, _ := b.post("/login", url.Values{"username": {"admin"}, "password": {"nope"}})
	_, _, wrongBody := b.get("/login")
	_, unknownLoc, _ := b.post("/login", url.Values{"username": {"ghost"}, "password": {"nope"}})
	_, _, unknownBody := b.get("/login")

	if wrongLoc != "/login" || unknownLoc != "/login" {
		t.Fatalf("redirects = %q, %q", wrongLoc, unknownLoc)
	}
	if wrongBody != unknownBody {
		t.Fatalf("wrong password and unknown user render differently")
	}
	mustContain(t, wrongBody, "Invalid credentials")
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	b := s.browser(t)
	b.login("admin", "admin123")

	st, loc, _ := b.get("/logout")
	mustContain(t, b.expectRedirect(st, loc, "/login"), "Logged out successfully")

	if st, loc, _ := b.get("/dashboard"); st != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("dashboard after logout = %d to %q", st, loc)
	}
}

func TestDownloadRejectsPaths(t *testing.T) {
	s := newServer(t)
	b := s.browser(t)
	b.login("admin", "admin123")

	for _, name := range []string{"..%2Fportal.db", ".hidden", "missing.pdf"} {
		if st, _, _ := b.get("/uploads/" + name); st != http.StatusNotFound {
			t.Errorf("GET /uploads/%s = %d, want 404", name, st)
		}
	}
}

func TestReferrer(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"", "/fallback"},
		{"http://example.com/staff/projects/2/documents", "/staff/projects/2/documents"},
		{"http://evil.test/steal", "/fallback"},
		{"/admin/documents?doc_type=DPR", "/admin/documents?doc_type=DPR"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "http://example.com/x", nil)
		if tt.ref != "" {
			r.Header.Set("Referer", tt.ref)
		}
		if got := referrer(r, "/fallback"); got != tt.want {
			t.Errorf("referrer(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
