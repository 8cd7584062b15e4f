// Package postgres is the networked Store backend built on gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/store"
	"github.com/petermazzocco/construction-portal/models"
)

// SQLSTATE codes gorm does not translate on its own.
const (
	pgCheckViolation   = "23514"
	pgNotNullViolation = "23502"
)

type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the portal models.
func Open(ctx context.Context, dsn string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, log: log.WithField("component", "postgres-store")}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	s.log.Info("database connection established")
	return s, nil
}

// Migrate runs auto-migration for all models.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Site{},
		&models.Project{},
		&models.Document{},
		&models.StaffAssignment{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm and pgconn errors onto apperr kinds. unique is
// returned for unique violations.
func translate(err error, unique error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if unique != nil {
			return fmt.Errorf("%w: %v", unique, err)
		}
		return fmt.Errorf("%w: %v", apperr.ErrConstraintViolation, err)
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %v", apperr.ErrConstraintViolation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgCheckViolation || pgErr.Code == pgNotNullViolation) {
		return fmt.Errorf("%w: %v", apperr.ErrConstraintViolation, err)
	}
	return err
}

// omitZeroRefs leaves zero creator/uploader ids out of the INSERT so
// the foreign key columns stay NULL.
func omitZeroRefs(db *gorm.DB, refs map[string]uint) *gorm.DB {
	for field, id := range refs {
		if id == 0 {
			db = db.Omit(field)
		}
	}
	return db
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	var c store.Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Site{}).Where("is_active = ?", true).Count(&c.ActiveSites).Error; err != nil {
		return store.Counts{}, fmt.Errorf("count sites: %w", err)
	}
	if err := db.Model(&models.Project{}).Where("is_active = ?", true).Count(&c.ActiveProjects).Error; err != nil {
		return store.Counts{}, fmt.Errorf("count projects: %w", err)
	}
	if err := db.Model(&models.User{}).Where("role = ? AND is_active = ?", models.RoleStaff, true).Count(&c.ActiveStaff).Error; err != nil {
		return store.Counts{}, fmt.Errorf("count staff: %w", err)
	}
	if err := db.Model(&models.Document{}).Count(&c.Documents).Error; err != nil {
		return store.Counts{}, fmt.Errorf("count documents: %w", err)
	}
	return c, nil
}

func (s *Store) StaffCounts(ctx context.Context, staffID uint) (store.StaffCounts, error) {
	var c store.StaffCounts
	db := s.db.WithContext(ctx)
	err := db.Model(&models.StaffAssignment{}).
		Where("staff_id = ?", staffID).
		Distinct("project_id").
		Count(&c.AssignedProjects).Error
	if err != nil {
		return store.StaffCounts{}, fmt.Errorf("count assigned projects: %w", err)
	}
	if err := db.Model(&models.Document{}).Where("uploaded_by = ?", staffID).Count(&c.UploadedDocuments).Error; err != nil {
		return store.StaffCounts{}, fmt.Errorf("count uploaded documents: %w", err)
	}
	return c, nil
}
