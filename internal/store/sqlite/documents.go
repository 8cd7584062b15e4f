package sqlite

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

const documentSummaryQuery = `
SELECT d.id, d.project_id, p.name AS project_name, s.id AS site_id, s.name AS site_name,
       d.document_type, d.title, d.file_path, d.thumbnail_path, d.checksum,
       d.uploaded_by, COALESCE(u.full_name, '') AS uploaded_by_name,
       d.upload_date, d.description, d.report_date
FROM documents d
JOIN projects p ON d.project_id = p.id
JOIN sites s ON p.site_id = s.id
LEFT JOIN users u ON d.uploaded_by = u.id`

func scanDocumentSummary(stmt *sqlite.Stmt) models.DocumentSummary {
	return models.DocumentSummary{
		ID:             columnID(stmt, "id"),
		ProjectID:      columnID(stmt, "project_id"),
		ProjectName:    stmt.GetText("project_name"),
		SiteID:         columnID(stmt, "site_id"),
		SiteName:       stmt.GetText("site_name"),
		DocumentType:   models.DocumentType(stmt.GetText("document_type")),
		Title:          stmt.GetText("title"),
		FilePath:       stmt.GetText("file_path"),
		ThumbnailPath:  stmt.GetText("thumbnail_path"),
		Checksum:       stmt.GetText("checksum"),
		UploadedBy:     columnID(stmt, "uploaded_by"),
		UploadedByName: stmt.GetText("uploaded_by_name"),
		UploadDate:     columnTime(stmt, "upload_date"),
		Description:    stmt.GetText("description"),
		ReportDate:     columnDate(stmt, "report_date"),
	}
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.UploadDate.IsZero() {
		doc.UploadDate = s.now().UTC()
	}
	id, err := s.insert(ctx,
		`INSERT INTO documents (project_id, document_type, title, file_path, thumbnail_path, checksum,
		                        uploaded_by, upload_date, description, report_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(doc.ProjectID), string(doc.DocumentType), doc.Title, doc.FilePath, doc.ThumbnailPath, doc.Checksum,
		nullableID(doc.UploadedBy), doc.UploadDate.UnixNano(), doc.Description, nullableDate(doc.ReportDate),
	)
	if err != nil {
		return fmt.Errorf("create document %q: %w", doc.Title, translate(err, nil))
	}
	doc.ID = uint(id)
	return nil
}

func (s *Store) Document(ctx context.Context, id uint) (*models.Document, error) {
	doc, err := s.documentWhere(ctx, "d.id = ?", int64(id))
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	if doc == nil {
		return nil, notFound("document", id)
	}
	return doc, nil
}

func (s *Store) DocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	doc, err := s.documentWhere(ctx, "d.file_path = ?", filePath)
	if err != nil {
		return nil, fmt.Errorf("get document %q: %w", filePath, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %q: %w", filePath, apperr.ErrNotFound)
	}
	return doc, nil
}

// documentWhere returns nil when no row matches.
func (s *Store) documentWhere(ctx context.Context, cond string, arg any) (*models.Document, error) {
	var doc *models.Document
	err := s.exec(ctx, documentSummaryQuery+" WHERE "+cond, []any{arg}, func(stmt *sqlite.Stmt) error {
		sum := scanDocumentSummary(stmt)
		doc = &models.Document{
			ID:            sum.ID,
			ProjectID:     sum.ProjectID,
			DocumentType:  sum.DocumentType,
			Title:         sum.Title,
			FilePath:      sum.FilePath,
			ThumbnailPath: sum.ThumbnailPath,
			Checksum:      sum.Checksum,
			UploadedBy:    sum.UploadedBy,
			UploadDate:    sum.UploadDate,
			Description:   sum.Description,
			ReportDate:    sum.ReportDate,
		}
		return nil
	})
	return doc, err
}

func (s *Store) DeleteDocument(ctx context.Context, id uint) error {
	if err := s.update(ctx, "DELETE FROM documents WHERE id = ?", int64(id)); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.DocumentSummary, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Type != "" {
		conditions = append(conditions, "d.document_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.SiteID != 0 {
		conditions = append(conditions, "s.id = ?")
		args = append(args, int64(filter.SiteID))
	}
	if filter.ProjectID != 0 {
		conditions = append(conditions, "d.project_id = ?")
		args = append(args, int64(filter.ProjectID))
	}
	if filter.UploadedBy != 0 {
		conditions = append(conditions, "d.uploaded_by = ?")
		args = append(args, int64(filter.UploadedBy))
	}

	query := documentSummaryQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY d.upload_date DESC, d.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, int64(filter.Limit))
	}

	var docs []models.DocumentSummary
	err := s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		docs = append(docs, scanDocumentSummary(stmt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.StaffAssignment) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.now().UTC()
	}
	id, err := s.insert(ctx,
		"INSERT INTO staff_assignments (staff_id, project_id, assigned_by, assigned_at) VALUES (?, ?, ?, ?)",
		int64(a.StaffID), int64(a.ProjectID), nullableID(a.AssignedBy), a.AssignedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("assign staff %d to project %d: %w", a.StaffID, a.ProjectID, translate(err, apperr.ErrAlreadyAssigned))
	}
	a.ID = uint(id)
	return nil
}

func (s *Store) AssignmentExists(ctx context.Context, staffID, projectID uint) (bool, error) {
	n, err := s.count(ctx, "SELECT COUNT(*) FROM staff_assignments WHERE staff_id = ? AND project_id = ?",
		int64(staffID), int64(projectID))
	if err != nil {
		return false, fmt.Errorf("check assignment of staff %d to project %d: %w", staffID, projectID, err)
	}
	return n > 0, nil
}

func (s *Store) AssignedStaffIDs(ctx context.Context, projectID uint) ([]uint, error) {
	var ids []uint
	err := s.exec(ctx, "SELECT staff_id FROM staff_assignments WHERE project_id = ? ORDER BY staff_id",
		[]any{int64(projectID)}, func(stmt *sqlite.Stmt) error {
			ids = append(ids, uint(stmt.ColumnInt64(0)))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list staff of project %d: %w", projectID, err)
	}
	return ids, nil
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	var c store.Counts
	err := s.exec(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sites WHERE is_active = 1),
			(SELECT COUNT(*) FROM projects WHERE is_active = 1),
			(SELECT COUNT(*) FROM users WHERE role = 'staff' AND is_active = 1),
			(SELECT COUNT(*) FROM documents)`, nil,
		func(stmt *sqlite.Stmt) error {
			c.ActiveSites = stmt.ColumnInt64(0)
			c.ActiveProjects = stmt.ColumnInt64(1)
			c.ActiveStaff = stmt.ColumnInt64(2)
			c.Documents = stmt.ColumnInt64(3)
			return nil
		})
	if err != nil {
		return store.Counts{}, fmt.Errorf("dashboard counts: %w", err)
	}
	return c, nil
}

func (s *Store) StaffCounts(ctx context.Context, staffID uint) (store.StaffCounts, error) {
	var c store.StaffCounts
	err := s.exec(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT project_id) FROM staff_assignments WHERE staff_id = ?),
			(SELECT COUNT(*) FROM documents WHERE uploaded_by = ?)`,
		[]any{int64(staffID), int64(staffID)},
		func(stmt *sqlite.Stmt) error {
			c.AssignedProjects = stmt.ColumnInt64(0)
			c.UploadedDocuments = stmt.ColumnInt64(1)
			return nil
		})
	if err != nil {
		return store.StaffCounts{}, fmt.Errorf("staff %d counts: %w", staffID, err)
	}
	return c, nil
}
