package postgres

import (
	"context"
	"fmt"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	db := omitZeroRefs(s.db.WithContext(ctx), map[string]uint{"UploadedBy": doc.UploadedBy})
	if err := db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document %q: %w", doc.Title, translate(err, nil))
	}
	return nil
}

func (s *Store) Document(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, translate(err, nil))
	}
	return &doc, nil
}

func (s *Store) DocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("file_path = ?", filePath).First(&doc).Error; err != nil {
		return nil, fmt.Errorf("get document %q: %w", filePath, translate(err, nil))
	}
	return &doc, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Document{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete document %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.DocumentSummary, error) {
	query := s.db.WithContext(ctx).
		Table("documents d").
		Select("d.id, d.project_id, p.name AS project_name, s.id AS site_id, s.name AS site_name, " +
			"d.document_type, d.title, d.file_path, d.thumbnail_path, d.checksum, d.uploaded_by, " +
			"COALESCE(u.full_name, '') AS uploaded_by_name, d.upload_date, d.description, d.report_date").
		Joins("JOIN projects p ON d.project_id = p.id").
		Joins("JOIN sites s ON p.site_id = s.id").
		Joins("LEFT JOIN users u ON d.uploaded_by = u.id")

	if filter.Type != "" {
		query = query.Where("d.document_type = ?", filter.Type)
	}
	if filter.SiteID != 0 {
		query = query.Where("s.id = ?", filter.SiteID)
	}
	if filter.ProjectID != 0 {
		query = query.Where("d.project_id = ?", filter.ProjectID)
	}
	if filter.UploadedBy != 0 {
		query = query.Where("d.uploaded_by = ?", filter.UploadedBy)
	}

	query = query.Order("d.upload_date DESC, d.id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var docs []models.DocumentSummary
	err := query.Scan(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.StaffAssignment) error {
	db := omitZeroRefs(s.db.WithContext(ctx), map[string]uint{"AssignedBy": a.AssignedBy})
	if err := db.Create(a).Error; err != nil {
		return fmt.Errorf("assign staff %d to project %d: %w", a.StaffID, a.ProjectID, translate(err, apperr.ErrAlreadyAssigned))
	}
	return nil
}

func (s *Store) AssignmentExists(ctx context.Context, staffID, projectID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.StaffAssignment{}).
		Where("staff_id = ? AND project_id = ?", staffID, projectID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check assignment of staff %d to project %d: %w", staffID, projectID, err)
	}
	return count > 0, nil
}

func (s *Store) AssignedStaffIDs(ctx context.Context, projectID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.StaffAssignment{}).
		Where("project_id = ?", projectID).
		Order("staff_id").
		Pluck("staff_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list staff of project %d: %w", projectID, err)
	}
	return ids, nil
}
