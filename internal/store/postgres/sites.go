package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

func (s *Store) siteSummaries(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("sites s").
		Select("s.id, s.name, s.location, s.description, s.created_by, s.created_at, s.is_active, " +
			"COALESCE(u.full_name, '') AS created_by_name").
		Joins("LEFT JOIN users u ON s.created_by = u.id")
}

func (s *Store) projectSummaries(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("projects p").
		Select("p.id, p.name, p.site_id, s.name AS site_name, p.description, p.start_date, " +
			"p.created_by, p.created_at, p.is_active, COALESCE(u.full_name, '') AS created_by_name").
		Joins("JOIN sites s ON p.site_id = s.id").
		Joins("LEFT JOIN users u ON p.created_by = u.id")
}

func (s *Store) CreateSite(ctx context.Context, site *models.Site) error {
	db := omitZeroRefs(s.db.WithContext(ctx), map[string]uint{"CreatedBy": site.CreatedBy})
	if err := db.Create(site).Error; err != nil {
		return fmt.Errorf("create site %q: %w", site.Name, translate(err, nil))
	}
	return nil
}

func (s *Store) Site(ctx context.Context, id uint) (*models.Site, error) {
	var site models.Site
	if err := s.db.WithContext(ctx).First(&site, id).Error; err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, translate(err, nil))
	}
	return &site, nil
}

func (s *Store) ListActiveSites(ctx context.Context) ([]models.SiteSummary, error) {
	var sites []models.SiteSummary
	err := s.siteSummaries(ctx).
		Where("s.is_active = ?", true).
		Order("s.created_at DESC, s.id DESC").
		Scan(&sites).Error
	if err != nil {
		return nil, fmt.Errorf("list active sites: %w", err)
	}
	return sites, nil
}

func (s *Store) setActive(ctx context.Context, model any, what string, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("set %s %d active=%t: %w", what, id, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) SetSiteActive(ctx context.Context, id uint, active bool) error {
	return s.setActive(ctx, &models.Site{}, "site", id, active)
}

func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	db := omitZeroRefs(s.db.WithContext(ctx), map[string]uint{"CreatedBy": project.CreatedBy})
	if err := db.Create(project).Error; err != nil {
		return fmt.Errorf("create project %q: %w", project.Name, translate(err, nil))
	}
	return nil
}

func (s *Store) Project(ctx context.Context, id uint) (*models.ProjectSummary, error) {
	var projects []models.ProjectSummary
	if err := s.projectSummaries(ctx).Where("p.id = ?", id).Limit(1).Scan(&projects).Error; err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("project %d: %w", id, apperr.ErrNotFound)
	}
	return &projects[0], nil
}

func (s *Store) ListActiveProjects(ctx context.Context, siteID uint) ([]models.ProjectSummary, error) {
	var projects []models.ProjectSummary
	err := s.projectSummaries(ctx).
		Where("p.site_id = ? AND p.is_active = ?", siteID, true).
		Order("p.created_at DESC, p.id DESC").
		Scan(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list projects of site %d: %w", siteID, err)
	}
	return projects, nil
}

func (s *Store) ListAssignedProjects(ctx context.Context, staffID uint) ([]models.ProjectSummary, error) {
	var projects []models.ProjectSummary
	err := s.projectSummaries(ctx).
		Joins("JOIN staff_assignments sa ON sa.project_id = p.id").
		Where("sa.staff_id = ? AND p.is_active = ?", staffID, true).
		Order("p.created_at DESC, p.id DESC").
		Scan(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list projects of staff %d: %w", staffID, err)
	}
	return projects, nil
}

func (s *Store) SetProjectActive(ctx context.Context, id uint, active bool) error {
	return s.setActive(ctx, &models.Project{}, "project", id, active)
}
