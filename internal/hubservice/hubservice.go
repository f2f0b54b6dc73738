// FilePath: internal/hubservice/hubservice.go
package hubservice

import (
	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/liveness"
	"github.com/envimon/hub/internal/repository"
	"github.com/envimon/hub/internal/telemetry"
)

// HubService contains all repositories and service-wide dependencies
type HubService struct {
	Companies repository.CompanyRepository
	Groups    repository.SensorGroupRepository
	Sensors   repository.SensorRepository
	Users     repository.UserRepository
	Guard     *authz.Guard
	Router    *telemetry.Router
	Tracker   *liveness.Tracker
}

// New creates a new HubService instance. The authorization guard is wired
// to a resolver that walks the ownership chain through these repositories.
func New(
	companies repository.CompanyRepository,
	groups repository.SensorGroupRepository,
	sensors repository.SensorRepository,
	users repository.UserRepository,
	router *telemetry.Router,
	tracker *liveness.Tracker,
) *HubService {
	svc := &HubService{
		Companies: companies,
		Groups:    groups,
		Sensors:   sensors,
		Users:     users,
		Router:    router,
		Tracker:   tracker,
	}
	svc.Guard = authz.NewGuard(&chainResolver{svc: svc})
	return svc
}

// Validate checks if all required dependencies are initialized
func (s *HubService) Validate() error {
	if s.Companies == nil {
		return ErrMissingRepository("companies")
	}
	if s.Groups == nil {
		return ErrMissingRepository("groups")
	}
	if s.Sensors == nil {
		return ErrMissingRepository("sensors")
	}
	if s.Users == nil {
		return ErrMissingRepository("users")
	}
	if s.Router == nil {
		return errors.NewInternalError("missing telemetry router", nil)
	}
	if s.Tracker == nil {
		return errors.NewInternalError("missing liveness tracker", nil)
	}
	return nil
}

func ErrMissingRepository(name string) error {
	return errors.NewInternalError("missing repository: "+name, nil)
}

// requireAdmin is the gate for management operations that are never
// delegated to tenant users.
func requireAdmin(principal authz.Principal) error {
	if !principal.IsAdmin() {
		return errors.NewForbiddenError("administrator role required", nil)
	}
	return nil
}
