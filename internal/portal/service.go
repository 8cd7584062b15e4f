// Package portal implements the operations of the construction
// document portal: authentication, site and project management, staff
// provisioning and assignment, and the document workflows of staff and
// read-only users. Access rules that depend on data (assignments,
// document ownership) are enforced here; role checks happen in the
// HTTP guard before any of these methods run.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/internal/blob"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

// DefaultMaxUploadBytes caps a single uploaded file.
const DefaultMaxUploadBytes = 16 << 20

// Thumbnailer turns image bytes into a small JPEG.
type Thumbnailer interface {
	Thumbnail(data []byte) ([]byte, error)
}

type Service struct {
	store     store.Store
	blobs     blob.Store
	thumbs    Thumbnailer
	now       func() time.Time
	log       *logrus.Entry
	maxUpload int64
}

type Option func(*Service)

// WithThumbnailer enables PHOTO thumbnails.
func WithThumbnailer(t Thumbnailer) Option {
	return func(s *Service) { s.thumbs = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) { s.log = log.WithField("component", "portal") }
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func New(st store.Store, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		blobs:     blobs,
		now:       time.Now,
		log:       logrus.WithField("component", "portal"),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) MaxUploadBytes() int64 { return s.maxUpload }

// Authenticate returns the active account matching username and
// password. Every failure is apperr.ErrInvalidCredentials; a missing
// account costs the same bcrypt comparison as a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.ActiveUserByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		auth.BurnCompare(password)
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("login succeeded")
	return user, nil
}

// AuthenticateExternal maps an identity-provider e-mail onto the
// active account with that username.
func (s *Service) AuthenticateExternal(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	user, err := s.store.ActiveUserByUsername(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		s.log.WithField("email", email).Info("external login for unknown account")
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate external: %w", err)
	}
	return user, nil
}

// Dashboard holds the counters a role sees; fields outside the role's
// view stay zero.
type Dashboard struct {
	Role             models.Role
	ActiveSites      int64
	ActiveProjects   int64
	ActiveStaff      int64
	Documents        int64
	AssignedProjects int64
	MyDocuments      int64
}

func (s *Service) Dashboard(ctx context.Context, role models.Role, userID uint) (*Dashboard, error) {
	d := &Dashboard{Role: role}
	switch role {
	case models.RoleStaff:
		c, err := s.store.StaffCounts(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		d.AssignedProjects = c.AssignedProjects
		d.MyDocuments = c.UploadedDocuments
	case models.RoleAdmin, models.RoleUser:
		c, err := s.store.Counts(ctx)
		if err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		d.ActiveSites = c.ActiveSites
		d.ActiveProjects = c.ActiveProjects
		if role == models.RoleAdmin {
			d.ActiveStaff = c.ActiveStaff
			d.Documents = c.Documents
		}
	default:
		return nil, fmt.Errorf("dashboard for role %q: %w", role, apperr.ErrForbidden)
	}
	return d, nil
}

// SeedAdmin creates the initial administrator unless the username is
// already taken. It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, username, password, fullName string) (bool, error) {
	_, err := s.createAccount(ctx, models.RoleAdmin, username, password, fullName)
	if errors.Is(err, apperr.ErrDuplicateUsername) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.log.WithField("username", username).Warn("seeded default admin account, change its password")
	return true, nil
}
