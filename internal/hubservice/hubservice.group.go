// FilePath: internal/hubservice/hubservice.group.go
package hubservice

import (
	"context"
	"time"

	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// SensorGroupService handles deployment-site business logic
type SensorGroupService interface {
	CreateGroup(ctx context.Context, principal authz.Principal, group *models.SensorGroup) error
	GetGroup(ctx context.Context, principal authz.Principal, id int64) (*models.SensorGroup, error)
	UpdateGroup(ctx context.Context, principal authz.Principal, group *models.SensorGroup) error
	DeactivateGroup(ctx context.Context, principal authz.Principal, id int64) error
	ListGroups(ctx context.Context, principal authz.Principal, companyID *int64, includeInactive bool) ([]*models.SensorGroup, error)
}

// CreateGroup creates a deployment site. A company assignment is optional;
// ungrouped sites stay admin-only until assigned.
func (s *HubService) CreateGroup(ctx context.Context, principal authz.Principal, group *models.SensorGroup) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if group.Name == "" {
		return errors.NewValidationError("group name is required", nil)
	}
	if group.CompanyID != nil {
		if _, err := s.Companies.Get(ctx, *group.CompanyID); err != nil {
			return err
		}
	}

	now := time.Now()
	group.Active = true
	group.CreatedAt = now
	group.UpdatedAt = now

	nuts.L.Infof("[GroupService] Creating sensor group: %s", group.Name)
	return s.Groups.Create(ctx, group)
}

func (s *HubService) GetGroup(ctx context.Context, principal authz.Principal, id int64) (*models.SensorGroup, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindGroup, id)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return s.Groups.Get(ctx, id)
}

func (s *HubService) UpdateGroup(ctx context.Context, principal authz.Principal, group *models.SensorGroup) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if group.Name == "" {
		return errors.NewValidationError("group name is required", nil)
	}

	existing, err := s.Groups.Get(ctx, group.ID)
	if err != nil {
		return err
	}
	if group.CompanyID != nil {
		if _, err := s.Companies.Get(ctx, *group.CompanyID); err != nil {
			return err
		}
	}

	group.CreatedAt = existing.CreatedAt
	group.UpdatedAt = time.Now()
	return s.Groups.Update(ctx, group)
}

func (s *HubService) DeactivateGroup(ctx context.Context, principal authz.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}

	nuts.L.Infof("[GroupService] Deactivating sensor group %d", id)
	return s.Groups.Deactivate(ctx, id)
}

// ListGroups scopes results to the principal's tenants. Non-admins must name
// a company they are assigned to, or get their assigned companies' groups.
func (s *HubService) ListGroups(ctx context.Context, principal authz.Principal, companyID *int64, includeInactive bool) ([]*models.SensorGroup, error) {
	if principal.IsAdmin() {
		return s.Groups.List(ctx, companyID, includeInactive)
	}

	if companyID != nil {
		decision, err := s.Guard.Authorize(ctx, principal, authz.KindCompany, *companyID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
		return s.Groups.List(ctx, companyID, false)
	}

	groups := []*models.SensorGroup{}
	for _, assigned := range principal.CompanyIDs {
		id := assigned
		companyGroups, err := s.Groups.List(ctx, &id, false)
		if err != nil {
			return nil, err
		}
		groups = append(groups, companyGroups...)
	}
	return groups, nil
}
