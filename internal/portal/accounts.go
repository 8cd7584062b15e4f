package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
	"github.com/petermazzocco/construction-portal/internal/auth"
	"github.com/petermazzocco/construction-portal/models"
)

type NewAccount struct {
	Username string
	Password string
	FullName string
}

func (s *Service) ListStaffAndUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListStaffAndUsers(ctx)
}

func (s *Service) AddStaff(ctx context.Context, adminID uint, in NewAccount) (*models.User, error) {
	return s.addAccount(ctx, adminID, models.RoleStaff, in)
}

func (s *Service) AddUser(ctx context.Context, adminID uint, in NewAccount) (*models.User, error) {
	return s.addAccount(ctx, adminID, models.RoleUser, in)
}

func (s *Service) addAccount(ctx context.Context, adminID uint, role models.Role, in NewAccount) (*models.User, error) {
	user, err := s.createAccount(ctx, role, in.Username, in.Password, in.FullName)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role, "admin_id": adminID}).Info("account added")
	return user, nil
}

// createAccount checks the username first for a friendly error, but
// the unique index decides: a concurrent insert surfaces as the same
// apperr.ErrDuplicateUsername.
func (s *Service) createAccount(ctx context.Context, role models.Role, username, password, fullName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	if username == "" || password == "" || fullName == "" {
		return nil, fmt.Errorf("incomplete account details: %w", apperr.ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, apperr.ErrInvalidInput)
	}

	exists, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("username %q: %w", username, apperr.ErrDuplicateUsername)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetUserActive enables or disables a staff or user account. Admin
// accounts cannot be toggled.
func (s *Service) SetUserActive(ctx context.Context, adminID, userID uint, active bool) (*models.User, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, fmt.Errorf("toggle admin %d: %w", userID, apperr.ErrForbidden)
	}
	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		return nil, err
	}
	user.IsActive = active
	s.log.WithFields(logrus.Fields{"user_id": userID, "active": active, "admin_id": adminID}).Info("account status changed")
	return user, nil
}

// Assignable is what the assignment form needs.
type Assignable struct {
	Project  *models.ProjectSummary
	Staff    []models.User
	Assigned map[uint]bool
}

func (s *Service) AssignableStaff(ctx context.Context, projectID uint) (*Assignable, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	staff, err := s.store.ListActiveStaff(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.AssignedStaffIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	assigned := make(map[uint]bool, len(ids))
	for _, id := range ids {
		assigned[id] = true
	}
	return &Assignable{Project: project, Staff: staff, Assigned: assigned}, nil
}

// AssignStaff inserts one assignment per id and returns how many were
// new. Pairs that already exist are skipped, as are ids that are not
// active staff. The project is returned for the caller's redirect.
func (s *Service) AssignStaff(ctx context.Context, adminID, projectID uint, staffIDs []uint) (int, *models.ProjectSummary, error) {
	project, err := s.store.Project(ctx, projectID)
	if err != nil {
		return 0, nil, err
	}
	staff, err := s.store.ListActiveStaff(ctx)
	if err != nil {
		return 0, nil, err
	}
	eligible := make(map[uint]bool, len(staff))
	for _, u := range staff {
		eligible[u.ID] = true
	}

	log := s.log.WithFields(logrus.Fields{"project_id": projectID, "admin_id": adminID})
	added := 0
	seen := make(map[uint]bool, len(staffIDs))
	for _, id := range staffIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !eligible[id] {
			log.WithField("staff_id", id).Warn("skipping assignment of a non-staff or inactive account")
			continue
		}
		err := s.store.CreateAssignment(ctx, &models.StaffAssignment{
			StaffID:    id,
			ProjectID:  projectID,
			AssignedBy: adminID,
		})
		if errors.Is(err, apperr.ErrAlreadyAssigned) {
			continue
		}
		if err != nil {
			return added, project, err
		}
		added++
	}
	log.WithField("added", added).Info("staff assigned")
	return added, project, nil
}
