// FilePath: api/api.router.go
package api

import (
	"net/http"

	"github.com/envimon/hub/api/middleware"
	"github.com/envimon/hub/api/resources"
	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/models"
	"github.com/gorilla/mux"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.AuthMiddleware
	resources *resources.Resources
}

func NewRouter(svc *hubservice.HubService, authSvc *auth.Service, tokens *auth.TokenService) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewAuthMiddleware(tokens),
		resources: resources.NewResources(svc, authSvc),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", r.resources.Auth.Login).Methods(http.MethodPost)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(r.auth.Authenticate)

	protected.HandleFunc("/auth/password", r.resources.Auth.ChangePassword).Methods(http.MethodPut)

	// Companies
	companies := protected.PathPrefix("/companies").Subrouter()
	companies.HandleFunc("", r.resources.Companies.ListCompanies).Methods(http.MethodGet)
	companies.HandleFunc("", r.resources.Companies.CreateCompany).Methods(http.MethodPost)
	companies.HandleFunc("/{id}", r.resources.Companies.GetCompany).Methods(http.MethodGet)
	companies.HandleFunc("/{id}", r.resources.Companies.UpdateCompany).Methods(http.MethodPut)
	companies.HandleFunc("/{id}", r.resources.Companies.DeactivateCompany).Methods(http.MethodDelete)

	// Sensor groups
	groups := protected.PathPrefix("/groups").Subrouter()
	groups.HandleFunc("", r.resources.Groups.ListGroups).Methods(http.MethodGet)
	groups.HandleFunc("", r.resources.Groups.CreateGroup).Methods(http.MethodPost)
	groups.HandleFunc("/{id}", r.resources.Groups.GetGroup).Methods(http.MethodGet)
	groups.HandleFunc("/{id}", r.resources.Groups.UpdateGroup).Methods(http.MethodPut)
	groups.HandleFunc("/{id}", r.resources.Groups.DeactivateGroup).Methods(http.MethodDelete)

	// Sensors
	sensors := protected.PathPrefix("/sensors").Subrouter()
	sensors.HandleFunc("", r.resources.Sensors.ListSensors).Methods(http.MethodGet)
	sensors.HandleFunc("", r.resources.Sensors.CreateSensor).Methods(http.MethodPost)
	sensors.HandleFunc("/{id}", r.resources.Sensors.GetSensor).Methods(http.MethodGet)
	sensors.HandleFunc("/{id}", r.resources.Sensors.UpdateSensor).Methods(http.MethodPut)
	sensors.HandleFunc("/{id}", r.resources.Sensors.DeactivateSensor).Methods(http.MethodDelete)
	sensors.HandleFunc("/{id}/telemetry", r.resources.Sensors.GetTelemetry).Methods(http.MethodGet)
	sensors.HandleFunc("/{id}/telemetry", r.resources.Sensors.IngestReading).Methods(http.MethodPost)
	sensors.HandleFunc("/{id}/heartbeat", r.resources.Sensors.RecordHeartbeat).Methods(http.MethodPost)
	sensors.HandleFunc("/{id}/connection", r.resources.Sensors.RecordConnectionEvent).Methods(http.MethodPost)
	sensors.HandleFunc("/{id}/liveness", r.resources.Sensors.GetLiveness).Methods(http.MethodGet)

	// Users; management routes require the admin role up front, the
	// self-service routes decide per principal in the service layer.
	users := protected.PathPrefix("/users").Subrouter()
	users.HandleFunc("/{id}", r.resources.Users.GetUser).Methods(http.MethodGet)
	users.HandleFunc("/{id}", r.resources.Users.UpdateUser).Methods(http.MethodPut)

	admin := protected.PathPrefix("/users").Subrouter()
	admin.Use(r.auth.RequireRoles(models.RoleAdmin))
	admin.HandleFunc("", r.resources.Users.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("", r.resources.Users.CreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", r.resources.Users.DeactivateUser).Methods(http.MethodDelete)
	admin.HandleFunc("/{id}/companies", r.resources.Users.AssignCompany).Methods(http.MethodPost)
	admin.HandleFunc("/{id}/companies", r.resources.Users.ReplaceCompanies).Methods(http.MethodPut)
	admin.HandleFunc("/{id}/companies/{companyId}", r.resources.Users.RemoveCompany).Methods(http.MethodDelete)
	admin.HandleFunc("/{id}/roles", r.resources.Users.AssignRole).Methods(http.MethodPost)
	admin.HandleFunc("/{id}/roles", r.resources.Users.RemoveRole).Methods(http.MethodDelete)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
