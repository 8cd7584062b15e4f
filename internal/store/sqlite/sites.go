package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/petermazzocco/construction-portal/models"
)

const siteSummaryQuery = `
SELECT s.id, s.name, s.location, s.description, s.created_by, s.created_at, s.is_active,
       COALESCE(u.full_name, '') AS created_by_name
FROM sites s
LEFT JOIN users u ON s.created_by = u.id`

const projectSummaryQuery = `
SELECT p.id, p.name, p.site_id, s.name AS site_name, p.description, p.start_date,
       p.created_by, p.created_at, p.is_active,
       COALESCE(u.full_name, '') AS created_by_name
FROM projects p
JOIN sites s ON p.site_id = s.id
LEFT JOIN users u ON p.created_by = u.id`

func scanSiteSummary(stmt *sqlite.Stmt) models.SiteSummary {
	return models.SiteSummary{
		ID:            columnID(stmt, "id"),
		Name:          stmt.GetText("name"),
		Location:      stmt.GetText("location"),
		Description:   stmt.GetText("description"),
		CreatedBy:     columnID(stmt, "created_by"),
		CreatedAt:     columnTime(stmt, "created_at"),
		IsActive:      stmt.GetInt64("is_active") != 0,
		CreatedByName: stmt.GetText("created_by_name"),
	}
}

func scanProjectSummary(stmt *sqlite.Stmt) models.ProjectSummary {
	return models.ProjectSummary{
		ID:            columnID(stmt, "id"),
		Name:          stmt.GetText("name"),
		SiteID:        columnID(stmt, "site_id"),
		SiteName:      stmt.GetText("site_name"),
		Description:   stmt.GetText("description"),
		StartDate:     columnDate(stmt, "start_date"),
		CreatedBy:     columnID(stmt, "created_by"),
		CreatedAt:     columnTime(stmt, "created_at"),
		IsActive:      stmt.GetInt64("is_active") != 0,
		CreatedByName: stmt.GetText("created_by_name"),
	}
}

func (s *Store) CreateSite(ctx context.Context, site *models.Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.now().UTC()
	}
	id, err := s.insert(ctx,
		"INSERT INTO sites (name, location, description, created_by, created_at, is_active) VALUES (?, ?, ?, ?, ?, ?)",
		site.Name, site.Location, site.Description, nullableID(site.CreatedBy), site.CreatedAt.UnixNano(), boolInt(site.IsActive),
	)
	if err != nil {
		return fmt.Errorf("create site %q: %w", site.Name, translate(err, nil))
	}
	site.ID = uint(id)
	return nil
}

func (s *Store) Site(ctx context.Context, id uint) (*models.Site, error) {
	var site *models.Site
	err := s.exec(ctx, siteSummaryQuery+" WHERE s.id = ?", []any{int64(id)}, func(stmt *sqlite.Stmt) error {
		sum := scanSiteSummary(stmt)
		site = &models.Site{
			ID:          sum.ID,
			Name:        sum.Name,
			Location:    sum.Location,
			Description: sum.Description,
			CreatedBy:   sum.CreatedBy,
			CreatedAt:   sum.CreatedAt,
			IsActive:    sum.IsActive,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}
	if site == nil {
		return nil, notFound("site", id)
	}
	return site, nil
}

func (s *Store) ListActiveSites(ctx context.Context) ([]models.SiteSummary, error) {
	var sites []models.SiteSummary
	err := s.exec(ctx, siteSummaryQuery+" WHERE s.is_active = 1 ORDER BY s.created_at DESC, s.id DESC", nil,
		func(stmt *sqlite.Stmt) error {
			sites = append(sites, scanSiteSummary(stmt))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list active sites: %w", err)
	}
	return sites, nil
}

func (s *Store) SetSiteActive(ctx context.Context, id uint, active bool) error {
	err := s.update(ctx, "UPDATE sites SET is_active = ? WHERE id = ?", boolInt(active), int64(id))
	if err != nil {
		return fmt.Errorf("set site %d active=%t: %w", id, active, err)
	}
	return nil
}

func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = s.now().UTC()
	}
	id, err := s.insert(ctx,
		`INSERT INTO projects (name, site_id, description, start_date, created_by, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.Name, int64(project.SiteID), project.Description, nullableDate(project.StartDate),
		nullableID(project.CreatedBy), project.CreatedAt.UnixNano(), boolInt(project.IsActive),
	)
	if err != nil {
		return fmt.Errorf("create project %q: %w", project.Name, translate(err, nil))
	}
	project.ID = uint(id)
	return nil
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]models.ProjectSummary, error) {
	var projects []models.ProjectSummary
	err := s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		projects = append(projects, scanProjectSummary(stmt))
		return nil
	})
	return projects, err
}

func (s *Store) Project(ctx context.Context, id uint) (*models.ProjectSummary, error) {
	projects, err := s.queryProjects(ctx, projectSummaryQuery+" WHERE p.id = ?", int64(id))
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	if len(projects) == 0 {
		return nil, notFound("project", id)
	}
	return &projects[0], nil
}

func (s *Store) ListActiveProjects(ctx context.Context, siteID uint) ([]models.ProjectSummary, error) {
	projects, err := s.queryProjects(ctx,
		projectSummaryQuery+" WHERE p.site_id = ? AND p.is_active = 1 ORDER BY p.created_at DESC, p.id DESC",
		int64(siteID))
	if err != nil {
		return nil, fmt.Errorf("list projects of site %d: %w", siteID, err)
	}
	return projects, nil
}

func (s *Store) ListAssignedProjects(ctx context.Context, staffID uint) ([]models.ProjectSummary, error) {
	projects, err := s.queryProjects(ctx,
		projectSummaryQuery+`
		JOIN staff_assignments sa ON sa.project_id = p.id
		WHERE sa.staff_id = ? AND p.is_active = 1
		ORDER BY p.created_at DESC, p.id DESC`,
		int64(staffID))
	if err != nil {
		return nil, fmt.Errorf("list projects of staff %d: %w", staffID, err)
	}
	return projects, nil
}

func (s *Store) SetProjectActive(ctx context.Context, id uint, active bool) error {
	err := s.update(ctx, "UPDATE projects SET is_active = ? WHERE id = ?", boolInt(active), int64(id))
	if err != nil {
		return fmt.Errorf("set project %d active=%t: %w", id, active, err)
	}
	return nil
}
