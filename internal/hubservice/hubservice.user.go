// FilePath: internal/hubservice/hubservice.user.go
package hubservice

import (
	"context"
	"strings"
	"time"

	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	"github.com/itsatony/struccy"
	nuts "github.com/vaudience/go-nuts"
)

// UserService handles identity and assignment business logic
type UserService interface {
	CreateUser(ctx context.Context, principal authz.Principal, user *models.User, passwordHash string) error
	GetUser(ctx context.Context, principal authz.Principal, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, principal authz.Principal, user *models.User) error
	DeactivateUser(ctx context.Context, principal authz.Principal, id int64) error
	ListUsers(ctx context.Context, principal authz.Principal, includeInactive bool) ([]*models.User, error)
	AssignCompany(ctx context.Context, principal authz.Principal, userID, companyID int64) error
	RemoveCompany(ctx context.Context, principal authz.Principal, userID, companyID int64) error
	ReplaceCompanies(ctx context.Context, principal authz.Principal, userID int64, companyIDs []int64) error
	AssignRole(ctx context.Context, principal authz.Principal, userID int64, role string) error
	RemoveRole(ctx context.Context, principal authz.Principal, userID int64, role string) error
}

// CreateUser registers an account. The caller hashes the password; raw
// credentials never reach this layer.
func (s *HubService) CreateUser(ctx context.Context, principal authz.Principal, user *models.User, passwordHash string) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if user.Username == "" {
		return errors.NewValidationError("username is required", nil)
	}
	if passwordHash == "" {
		return errors.NewValidationError("password is required", nil)
	}

	now := time.Now()
	user.PasswordHash = passwordHash
	user.Active = true
	user.CreatedAt = now
	user.UpdatedAt = now
	if len(user.Roles) == 0 {
		user.Roles = []string{models.RoleUser}
	}

	if err := s.Users.Create(ctx, user); err != nil {
		return err
	}
	for _, role := range user.Roles {
		if err := s.Users.AssignRole(ctx, user.ID, role); err != nil {
			return err
		}
	}
	for _, companyID := range user.CompanyIDs {
		if err := s.Users.AssignCompany(ctx, user.ID, companyID); err != nil {
			return err
		}
	}

	nuts.L.Infof("[UserService] Created user %s (%d)", user.Username, user.ID)
	return nil
}

// GetUser returns a user record filtered to what the principal may see.
func (s *HubService) GetUser(ctx context.Context, principal authz.Principal, id int64) (*models.User, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindUser, id)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	user, err := s.Users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return filterUser(user, viewerRoles(principal, id))
}

// UpdateUser applies profile changes with role-scoped field access: the
// writexs tags decide which fields a self-update may touch versus an admin.
func (s *HubService) UpdateUser(ctx context.Context, principal authz.Principal, user *models.User) error {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindUser, user.ID)
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}

	existing, err := s.Users.Get(ctx, user.ID)
	if err != nil {
		return err
	}

	roles := viewerRoles(principal, user.ID)
	updated, _, err := struccy.UpdateStructFields(existing, user, roles, true, true)
	if err != nil {
		return errors.NewForbiddenError("unauthorized field update", err)
	}
	nuts.L.Debugf("[UserService] Updated fields for user %d: %v", user.ID, updated)

	existing.UpdatedAt = time.Now()
	return s.Users.Update(ctx, existing)
}

func (s *HubService) DeactivateUser(ctx context.Context, principal authz.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if principal.UserID == id {
		return errors.NewValidationError("cannot deactivate own account", nil)
	}

	nuts.L.Infof("[UserService] Deactivating user %d", id)
	return s.Users.Deactivate(ctx, id)
}

func (s *HubService) ListUsers(ctx context.Context, principal authz.Principal, includeInactive bool) ([]*models.User, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}

	users, err := s.Users.List(ctx, includeInactive)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.User, 0, len(users))
	for _, user := range users {
		view, err := filterUser(user, viewerRoles(principal, user.ID))
		if err != nil {
			nuts.L.Warnf("[UserService] Failed to filter user %d: %v", user.ID, err)
			continue
		}
		filtered = append(filtered, view)
	}
	return filtered, nil
}

// AssignCompany grants a user visibility into a tenant.
func (s *HubService) AssignCompany(ctx context.Context, principal authz.Principal, userID, companyID int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return err
	}
	if _, err := s.Companies.Get(ctx, companyID); err != nil {
		return err
	}
	return s.Users.AssignCompany(ctx, userID, companyID)
}

func (s *HubService) RemoveCompany(ctx context.Context, principal authz.Principal, userID, companyID int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	return s.Users.RemoveCompany(ctx, userID, companyID)
}

// ReplaceCompanies swaps a user's full assignment set in one transaction.
// Every referenced company must exist before anything is written.
func (s *HubService) ReplaceCompanies(ctx context.Context, principal authz.Principal, userID int64, companyIDs []int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return err
	}
	for _, companyID := range companyIDs {
		if _, err := s.Companies.Get(ctx, companyID); err != nil {
			return err
		}
	}
	return s.Users.ReplaceCompanies(ctx, userID, companyIDs)
}

func (s *HubService) AssignRole(ctx context.Context, principal authz.Principal, userID int64, role string) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		return errors.NewValidationError("unknown role: "+role, nil)
	}
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return err
	}
	return s.Users.AssignRole(ctx, userID, role)
}

func (s *HubService) RemoveRole(ctx context.Context, principal authz.Principal, userID int64, role string) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if principal.UserID == userID && role == models.RoleAdmin {
		return errors.NewValidationError("cannot remove own admin role", nil)
	}
	return s.Users.RemoveRole(ctx, userID, role)
}

// viewerRoles maps a principal onto the access-tag vocabulary used by the
// readxs/writexs tags: lowercased role names plus "self" when the principal
// is the target user.
func viewerRoles(principal authz.Principal, targetUserID int64) []string {
	roles := make([]string, 0, len(principal.Roles)+1)
	for _, role := range principal.Roles {
		roles = append(roles, strings.ToLower(role))
	}
	if principal.UserID == targetUserID {
		roles = append(roles, "self")
	}
	return roles
}

// filterUser projects a user record down to the fields the viewer's roles
// may read.
func filterUser(user *models.User, roles []string) (*models.User, error) {
	filteredMap, err := struccy.StructToMapFieldsWithReadXS(user, roles)
	if err != nil {
		return nil, errors.NewInternalError("failed to filter user fields", err)
	}
	filtered := &models.User{}
	if _, err := struccy.MergeMapStringFieldsToStruct(filtered, filteredMap, roles); err != nil {
		return nil, errors.NewInternalError("failed to map filtered fields to user struct", err)
	}
	return filtered, nil
}
