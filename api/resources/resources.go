// FilePath: api/resources/resources.go
package resources

import (
	"net/http"

	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/hubservice"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Auth        *AuthHandlers
	Companies   *CompanyHandlers
	Groups      *GroupHandlers
	Sensors     *SensorHandlers
	Users       *UserHandlers
	HealthCheck func(w http.ResponseWriter, r *http.Request)
}

// NewResources creates a new Resources instance
func NewResources(svc *hubservice.HubService, authSvc *auth.Service) *Resources {
	r := &Resources{
		Auth:      &AuthHandlers{auth: authSvc},
		Companies: &CompanyHandlers{hubservice: svc},
		Groups:    &GroupHandlers{hubservice: svc},
		Sensors:   &SensorHandlers{hubservice: svc},
		Users:     &UserHandlers{hubservice: svc, auth: authSvc},
	}
	r.HealthCheck = func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
	return r
}

// SetHealthCheck sets the health check handler
func (r *Resources) SetHealthCheck(h func(w http.ResponseWriter, r *http.Request)) {
	r.HealthCheck = h
}
