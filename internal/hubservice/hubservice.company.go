// FilePath: internal/hubservice/hubservice.company.go
package hubservice

import (
	"context"
	"time"

	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// CompanyService handles tenant-root business logic
type CompanyService interface {
	CreateCompany(ctx context.Context, principal authz.Principal, company *models.Company) error
	GetCompany(ctx context.Context, principal authz.Principal, id int64) (*models.Company, error)
	UpdateCompany(ctx context.Context, principal authz.Principal, company *models.Company) error
	DeactivateCompany(ctx context.Context, principal authz.Principal, id int64) error
	ListCompanies(ctx context.Context, principal authz.Principal, includeInactive bool) ([]*models.Company, error)
}

// CreateCompany creates a new tenant root. Management of companies is an
// administrator concern.
func (s *HubService) CreateCompany(ctx context.Context, principal authz.Principal, company *models.Company) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if company.Name == "" {
		return errors.NewValidationError("company name is required", nil)
	}

	now := time.Now()
	company.Active = true
	company.CreatedAt = now
	company.UpdatedAt = now

	nuts.L.Infof("[CompanyService] Creating company: %s", company.Name)
	return s.Companies.Create(ctx, company)
}

func (s *HubService) GetCompany(ctx context.Context, principal authz.Principal, id int64) (*models.Company, error) {
	decision, err := s.Guard.Authorize(ctx, principal, authz.KindCompany, id)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return s.Companies.Get(ctx, id)
}

func (s *HubService) UpdateCompany(ctx context.Context, principal authz.Principal, company *models.Company) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if company.Name == "" {
		return errors.NewValidationError("company name is required", nil)
	}

	existing, err := s.Companies.Get(ctx, company.ID)
	if err != nil {
		return err
	}

	company.CreatedAt = existing.CreatedAt
	company.UpdatedAt = time.Now()
	return s.Companies.Update(ctx, company)
}

// DeactivateCompany soft-deletes the tenant root. Groups and sensors below
// it stay untouched; the inactive company link already makes them
// unreachable for tenant users.
func (s *HubService) DeactivateCompany(ctx context.Context, principal authz.Principal, id int64) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}

	nuts.L.Infof("[CompanyService] Deactivating company %d", id)
	return s.Companies.Deactivate(ctx, id)
}

// ListCompanies returns all companies for admins and only the principal's
// active assignments for everyone else.
func (s *HubService) ListCompanies(ctx context.Context, principal authz.Principal, includeInactive bool) ([]*models.Company, error) {
	if principal.IsAdmin() {
		return s.Companies.List(ctx, includeInactive)
	}

	companies, err := s.Companies.List(ctx, false)
	if err != nil {
		return nil, err
	}

	assigned := make(map[int64]bool, len(principal.CompanyIDs))
	for _, id := range principal.CompanyIDs {
		assigned[id] = true
	}

	visible := make([]*models.Company, 0, len(principal.CompanyIDs))
	for _, company := range companies {
		if assigned[company.ID] {
			visible = append(visible, company)
		}
	}
	return visible, nil
}
