// Package store defines the persistence contract of the portal. Two
// backends implement it: store/sqlite (embedded, file backed) and
// store/postgres (networked). Business logic is written once against
// Store and the backend is selected by configuration.
//
// Implementations translate driver errors into apperr kinds:
//
//   - a duplicate username is apperr.ErrDuplicateUsername
//   - a duplicate (staff, project) pair is apperr.ErrAlreadyAssigned
//   - any other constraint rejection (foreign key, check) is
//     apperr.ErrConstraintViolation
//   - a single-row lookup that matches nothing is apperr.ErrNotFound
package store

import (
	"context"

	"github.com/petermazzocco/construction-portal/models"
)

// MaxDocumentRows caps the admin document browser.
const MaxDocumentRows = 500

// DocumentFilter narrows ListDocuments. Zero fields apply no predicate.
type DocumentFilter struct {
	Type       models.DocumentType
	SiteID     uint
	ProjectID  uint
	UploadedBy uint
	// Limit caps the number of rows. Zero returns every match.
	Limit int
}

type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	User(ctx context.Context, id uint) (*models.User, error)
	ActiveUserByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// ListStaffAndUsers returns staff and user accounts, newest first,
	// including inactive ones.
	ListStaffAndUsers(ctx context.Context) ([]models.User, error)
	ListActiveStaff(ctx context.Context) ([]models.User, error)
	SetUserActive(ctx context.Context, id uint, active bool) error

	// Sites
	CreateSite(ctx context.Context, site *models.Site) error
	Site(ctx context.Context, id uint) (*models.Site, error)
	ListActiveSites(ctx context.Context) ([]models.SiteSummary, error)
	SetSiteActive(ctx context.Context, id uint, active bool) error

	// Projects
	CreateProject(ctx context.Context, project *models.Project) error
	// Project looks a project up by id regardless of its active flag.
	Project(ctx context.Context, id uint) (*models.ProjectSummary, error)
	ListActiveProjects(ctx context.Context, siteID uint) ([]models.ProjectSummary, error)
	ListAssignedProjects(ctx context.Context, staffID uint) ([]models.ProjectSummary, error)
	SetProjectActive(ctx context.Context, id uint, active bool) error

	// Assignments
	CreateAssignment(ctx context.Context, assignment *models.StaffAssignment) error
	AssignmentExists(ctx context.Context, staffID, projectID uint) (bool, error)
	AssignedStaffIDs(ctx context.Context, projectID uint) ([]uint, error)

	// Documents
	CreateDocument(ctx context.Context, doc *models.Document) error
	Document(ctx context.Context, id uint) (*models.Document, error)
	// DocumentByPath finds the document stored under filePath.
	DocumentByPath(ctx context.Context, filePath string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uint) error
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.DocumentSummary, error)

	// Dashboard counters
	Counts(ctx context.Context) (Counts, error)
	StaffCounts(ctx context.Context, staffID uint) (StaffCounts, error)

	Close() error
}

// Counts are the global figures shown on the admin and user dashboards.
type Counts struct {
	ActiveSites    int64
	ActiveProjects int64
	ActiveStaff    int64
	Documents      int64
}

// StaffCounts are the figures shown on a staff member's dashboard.
type StaffCounts struct {
	AssignedProjects  int64
	UploadedDocuments int64
}
