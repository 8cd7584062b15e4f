package postgres

import (
	"context"
	"fmt"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user %q: %w", user.Username, translate(err, apperr.ErrDuplicateUsername))
	}
	return nil
}

func (s *Store) User(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, translate(err, nil))
	}
	return &user, nil
}

func (s *Store) ActiveUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, true).
		First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, translate(err, nil))
	}
	return &user, nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check username %q: %w", username, err)
	}
	return count > 0, nil
}

func (s *Store) ListStaffAndUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("role IN ?", []models.Role{models.RoleStaff, models.RoleUser}).
		Order("created_at DESC, id DESC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list staff and users: %w", err)
	}
	return users, nil
}

func (s *Store) ListActiveStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleStaff, true).
		Order("full_name, id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list active staff: %w", err)
	}
	return users, nil
}

func (s *Store) SetUserActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("set user %d active=%t: %w", id, active, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
