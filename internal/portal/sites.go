package portal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

const dateLayout = "2006-01-02"

// parseDate accepts "" as no date.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not YYYY-MM-DD: %w", field, value, apperr.ErrInvalidInput)
	}
	return &t, nil
}

func (s *Service) ListSites(ctx context.Context) ([]models.SiteSummary, error) {
	return s.store.ListActiveSites(ctx)
}

// ActiveSites is the read-only user's site list.
func (s *Service) ActiveSites(ctx context.Context) ([]models.SiteSummary, error) {
	return s.store.ListActiveSites(ctx)
}

// SitesByName lists active sites alphabetically for filter menus.
func (s *Service) SitesByName(ctx context.Context) ([]models.SiteSummary, error) {
	sites, err := s.store.ListActiveSites(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sites, func(a, b models.SiteSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sites, nil
}

type NewSite struct {
	Name        string
	Location    string
	Description string
}

func (s *Service) AddSite(ctx context.Context, adminID uint, in NewSite) (*models.Site, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("site name is required: %w", apperr.ErrInvalidInput)
	}
	site := &models.Site{
		Name:        name,
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   adminID,
		IsActive:    true,
	}
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"site_id": site.ID, "admin_id": adminID}).Info("site added")
	return site, nil
}

// SiteProjects returns the site and its active projects, newest first.
func (s *Service) SiteProjects(ctx context.Context, siteID uint) (*models.Site, []models.ProjectSummary, error) {
	site, err := s.store.Site(ctx, siteID)
	if err != nil {
		return nil, nil, err
	}
	projects, err := s.store.ListActiveProjects(ctx, siteID)
	if err != nil {
		return nil, nil, err
	}
	return site, projects, nil
}

// ActiveProjectsForSite is the read-only user's view of a site.
func (s *Service) ActiveProjectsForSite(ctx context.Context, siteID uint) (*models.Site, []models.ProjectSummary, error) {
	return s.SiteProjects(ctx, siteID)
}

type NewProject struct {
	Name        string
	Description string
	// StartDate is YYYY-MM-DD or empty.
	StartDate string
}

// AddProject relies on the foreign key to reject an unknown site,
// which is reported as apperr.ErrNotFound.
func (s *Service) AddProject(ctx context.Context, adminID, siteID uint, in NewProject) (*models.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("project name is required: %w", apperr.ErrInvalidInput)
	}
	start, err := parseDate("start date", in.StartDate)
	if err != nil {
		return nil, err
	}
	project := &models.Project{
		Name:        name,
		SiteID:      siteID,
		Description: strings.TrimSpace(in.Description),
		StartDate:   start,
		CreatedBy:   adminID,
		IsActive:    true,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, apperr.ErrConstraintViolation) {
			return nil, fmt.Errorf("site %d: %w", siteID, apperr.ErrNotFound)
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"project_id": project.ID, "site_id": siteID, "admin_id": adminID}).Info("project added")
	return project, nil
}

// Project looks a project up regardless of its active flag.
func (s *Service) Project(ctx context.Context, projectID uint) (*models.ProjectSummary, error) {
	return s.store.Project(ctx, projectID)
}

func (s *Service) DeactivateSite(ctx context.Context, adminID, siteID uint) error {
	if err := s.store.SetSiteActive(ctx, siteID, false); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"site_id": siteID, "admin_id": adminID}).Info("site deactivated")
	return nil
}

// DeactivateProject returns the project so callers can go back to its
// site.
func (s *Service) DeactivateProject(ctx context.Context, adminID, projectID uint) (*models.ProjectSummary, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetProjectActive(ctx, projectID, false); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"project_id": projectID, "admin_id": adminID}).Info("project deactivated")
	return project, nil
}
