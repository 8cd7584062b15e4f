package portal

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/blob"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

const (
	stampLayout   = "20060102_150405"
	maxNameTries  = 5
	thumbPrefix   = "thumb_"
	thumbMimeType = "image/jpeg"
)

// ListAllDocuments is the admin browser. Empty filters match
// everything.
func (s *Service) ListAllDocuments(ctx context.Context, docType string, siteID uint) ([]models.DocumentSummary, error) {
	return s.store.ListDocuments(ctx, store.DocumentFilter{
		Type:   models.DocumentType(strings.TrimSpace(docType)),
		SiteID: siteID,
		Limit:  store.MaxDocumentRows,
	})
}

func (s *Service) MyProjects(ctx context.Context, staffID uint) ([]models.ProjectSummary, error) {
	return s.store.ListAssignedProjects(ctx, staffID)
}

func (s *Service) requireAssignment(ctx context.Context, staffID, projectID uint) error {
	ok, err := s.store.AssignmentExists(ctx, staffID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("staff %d is not assigned to project %d: %w", staffID, projectID, apperr.ErrForbidden)
	}
	return nil
}

// MyProjectDocuments returns the project and the documents this staff
// member uploaded to it. Other staff members' uploads are not listed.
func (s *Service) MyProjectDocuments(ctx context.Context, staffID, projectID uint) (*models.ProjectSummary, []models.DocumentSummary, error) {
	if err := s.requireAssignment(ctx, staffID, projectID); err != nil {
		return nil, nil, err
	}
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{ProjectID: projectID, UploadedBy: staffID})
	if err != nil {
		return nil, nil, err
	}
	return project, docs, nil
}

// ProjectForUpload returns the project a staff member may upload to.
func (s *Service) ProjectForUpload(ctx context.Context, staffID, projectID uint) (*models.ProjectSummary, error) {
	if err := s.requireAssignment(ctx, staffID, projectID); err != nil {
		return nil, err
	}
	return s.store.Project(ctx, projectID)
}

// Upload is one submitted document.
type Upload struct {
	StaffID     uint
	ProjectID   uint
	Type        models.DocumentType
	Title       string
	Description string
	// ReportDate is YYYY-MM-DD or empty.
	ReportDate string
	Filename   string
	Content    io.Reader
}

func (s *Service) validateUpload(ctx context.Context, in Upload) (*time.Time, error) {
	if !AllowedFile(in.Filename) {
		return nil, fmt.Errorf("file %q: %w", in.Filename, apperr.ErrInvalidFileType)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("document type %q: %w", in.Type, apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required: %w", apperr.ErrInvalidInput)
	}
	reportDate, err := parseDate("report date", in.ReportDate)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignment(ctx, in.StaffID, in.ProjectID); err != nil {
		return nil, err
	}
	return reportDate, nil
}

// UploadDocument validates the upload, stores the file (and a
// thumbnail for PHOTO images) and records the document. Nothing is
// written when validation fails. If the row cannot be inserted the
// stored objects are removed and apperr.ErrUploadFailed is returned.
func (s *Service) UploadDocument(ctx context.Context, in Upload) (*models.Document, error) {
	reportDate, err := s.validateUpload(ctx, in)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %v: %w", err, apperr.ErrUploadFailed)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, fmt.Errorf("file exceeds %d bytes: %w", s.maxUpload, apperr.ErrInvalidInput)
	}

	log := s.log.WithFields(logrus.Fields{"staff_id": in.StaffID, "project_id": in.ProjectID})

	now := s.now()
	name, err := s.putUnique(ctx, storedName(now.Format(stampLayout), in.Filename), data)
	if err != nil {
		log.WithError(err).Error("failed to store upload")
		return nil, fmt.Errorf("store file: %v: %w", err, apperr.ErrUploadFailed)
	}

	sum := blake3.Sum256(data)
	doc := &models.Document{
		ProjectID:    in.ProjectID,
		DocumentType: in.Type,
		Title:        strings.TrimSpace(in.Title),
		FilePath:     name,
		Checksum:     hex.EncodeToString(sum[:]),
		UploadedBy:   in.StaffID,
		UploadDate:   now.UTC(),
		Description:  strings.TrimSpace(in.Description),
		ReportDate:   reportDate,
	}
	if in.Type == models.DocumentPhoto && isImage(name) {
		doc.ThumbnailPath = s.storeThumbnail(ctx, log, name, data)
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		log.WithError(err).WithField("file", name).Error("failed to record upload, removing stored file")
		s.removeObjects(ctx, log, name, doc.ThumbnailPath)
		return nil, fmt.Errorf("record document: %v: %w", err, apperr.ErrUploadFailed)
	}
	log.WithFields(logrus.Fields{"document_id": doc.ID, "file": name, "bytes": len(data)}).Info("document uploaded")
	return doc, nil
}

// putUnique stores data under name, adding a short random suffix when
// the name is already taken.
func (s *Service) putUnique(ctx context.Context, name string, data []byte) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	candidate := name
	for i := 0; i < maxNameTries; i++ {
		err := s.blobs.Put(ctx, candidate, bytes.NewReader(data), contentType)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, blob.ErrExists) {
			return "", err
		}
		candidate = withSuffix(name, uuid.NewString()[:8])
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxNameTries)
}

// storeThumbnail is best-effort and returns "" on any failure.
func (s *Service) storeThumbnail(ctx context.Context, log *logrus.Entry, name string, data []byte) string {
	if s.thumbs == nil {
		return ""
	}
	thumb, err := s.thumbs.Thumbnail(data)
	if err != nil {
		log.WithError(err).WithField("file", name).Warn("thumbnail skipped")
		return ""
	}
	thumbName := thumbPrefix + strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	if err := s.blobs.Put(ctx, thumbName, bytes.NewReader(thumb), thumbMimeType); err != nil {
		log.WithError(err).WithField("file", thumbName).Warn("thumbnail not stored")
		return ""
	}
	return thumbName
}

func (s *Service) removeObjects(ctx context.Context, log *logrus.Entry, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, name); err != nil {
			log.WithError(err).WithField("file", name).Warn("failed to remove stored file")
		}
	}
}

// DeleteDocument removes a document the staff member uploaded. Any
// other document, including a missing one, is apperr.ErrForbidden.
func (s *Service) DeleteDocument(ctx context.Context, staffID, docID uint) error {
	doc, err := s.store.Document(ctx, docID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("document %d: %w", docID, apperr.ErrForbidden)
	}
	if err != nil {
		return err
	}
	if doc.UploadedBy != staffID {
		return fmt.Errorf("document %d belongs to another user: %w", docID, apperr.ErrForbidden)
	}

	log := s.log.WithFields(logrus.Fields{"staff_id": staffID, "document_id": docID})
	s.removeObjects(ctx, log, doc.FilePath, doc.ThumbnailPath)
	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	log.Info("document deleted")
	return nil
}

// DocumentGroup is one document type's section of a project page.
type DocumentGroup struct {
	Type      models.DocumentType
	Label     string
	Documents []models.DocumentSummary
}

// GroupedDocuments has one group per known type, in fixed order, plus
// rows whose type is none of them.
type GroupedDocuments struct {
	Groups       []DocumentGroup
	Unrecognized []models.DocumentSummary
}

func groupDocuments(docs []models.DocumentSummary) *GroupedDocuments {
	g := &GroupedDocuments{Groups: make([]DocumentGroup, len(models.DocumentTypes))}
	index := make(map[models.DocumentType]int, len(models.DocumentTypes))
	for i, t := range models.DocumentTypes {
		g.Groups[i] = DocumentGroup{Type: t, Label: t.Label()}
		index[t] = i
	}
	for _, d := range docs {
		i, ok := index[d.DocumentType]
		if !ok {
			g.Unrecognized = append(g.Unrecognized, d)
			continue
		}
		g.Groups[i].Documents = append(g.Groups[i].Documents, d)
	}
	return g
}

// ProjectDocumentsGrouped is the read-only user's project page.
func (s *Service) ProjectDocumentsGrouped(ctx context.Context, projectID uint) (*models.ProjectSummary, *GroupedDocuments, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{ProjectID: projectID})
	if err != nil {
		return nil, nil, err
	}
	g := groupDocuments(docs)
	for _, d := range g.Unrecognized {
		s.log.WithFields(logrus.Fields{"document_id": d.ID, "type": d.DocumentType}).Warn("document with unrecognized type")
	}
	return project, g, nil
}

// File is an opened upload.
type File struct {
	io.ReadCloser
	ContentType string
	// Checksum is the blake3 digest recorded at upload. Thumbnails
	// have none.
	Checksum string
}

// OpenFile streams a stored upload. Names with path components are
// never resolved.
func (s *Service) OpenFile(ctx context.Context, name string) (*File, error) {
	if !blob.ValidName(name) {
		return nil, fmt.Errorf("file %q: %w", name, apperr.ErrNotFound)
	}
	var checksum string
	doc, err := s.store.DocumentByPath(ctx, name)
	switch {
	case err == nil:
		checksum = doc.Checksum
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	rc, err := s.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &File{ReadCloser: rc, ContentType: contentType, Checksum: checksum}, nil
}
