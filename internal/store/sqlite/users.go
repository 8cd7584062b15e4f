package sqlite

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/models"
)

const userColumns = "id, username, password_hash, full_name, role, is_active, created_at"

func scanUser(stmt *sqlite.Stmt) models.User {
	return models.User{
		ID:           columnID(stmt, "id"),
		Username:     stmt.GetText("username"),
		PasswordHash: stmt.GetText("password_hash"),
		FullName:     stmt.GetText("full_name"),
		Role:         models.Role(stmt.GetText("role")),
		IsActive:     stmt.GetInt64("is_active") != 0,
		CreatedAt:    columnTime(stmt, "created_at"),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	id, err := s.insert(ctx,
		"INSERT INTO users (username, password_hash, full_name, role, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.Username, user.PasswordHash, user.FullName, string(user.Role), boolInt(user.IsActive), user.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create user %q: %w", user.Username, translate(err, apperr.ErrDuplicateUsername))
	}
	user.ID = uint(id)
	return nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	var users []models.User
	err := s.exec(ctx, query, args, func(stmt *sqlite.Stmt) error {
		users = append(users, scanUser(stmt))
		return nil
	})
	return users, err
}

func (s *Store) User(ctx context.Context, id uint) (*models.User, error) {
	users, err := s.queryUsers(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", int64(id))
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	if len(users) == 0 {
		return nil, notFound("user", id)
	}
	return &users[0], nil
}

func (s *Store) ActiveUserByUsername(ctx context.Context, username string) (*models.User, error) {
	users, err := s.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? AND is_active = 1", username)
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
	}
	return &users[0], nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	n, err := s.count(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username)
	if err != nil {
		return false, fmt.Errorf("check username %q: %w", username, err)
	}
	return n > 0, nil
}

func (s *Store) ListStaffAndUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE role IN ('staff', 'user') ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list staff and users: %w", err)
	}
	return users, nil
}

func (s *Store) ListActiveStaff(ctx context.Context) ([]models.User, error) {
	users, err := s.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = 'staff' AND is_active = 1 ORDER BY full_name, id")
	if err != nil {
		return nil, fmt.Errorf("list active staff: %w", err)
	}
	return users, nil
}

func (s *Store) SetUserActive(ctx context.Context, id uint, active bool) error {
	err := s.update(ctx, "UPDATE users SET is_active = ? WHERE id = ?", boolInt(active), int64(id))
	if err != nil {
		return fmt.Errorf("set user %d active=%t: %w", id, active, err)
	}
	return nil
}
