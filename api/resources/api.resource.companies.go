// FilePath: api/resources/api.resource.companies.go
package resources

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/envimon/hub/api/middleware"
	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/models"
	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"
)

// CompanyHandlers encapsulates the company-related HTTP handlers
type CompanyHandlers struct {
	hubservice *hubservice.HubService
}

func (h *CompanyHandlers) CreateCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
		return
	}

	var company models.Company
	if err := json.NewDecoder(r.Body).Decode(&company); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.CreateCompany(r.Context(), principal, &company); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusCreated, company)
}

func (h *CompanyHandlers) GetCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	company, err := h.hubservice.GetCompany(r.Context(), principal, id)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, company)
}

func (h *CompanyHandlers) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var company models.Company
	if err := json.NewDecoder(r.Body).Decode(&company); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	company.ID = id

	if err := h.hubservice.UpdateCompany(r.Context(), principal, &company); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, company)
}

func (h *CompanyHandlers) DeactivateCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.DeactivateCompany(r.Context(), principal, id); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CompanyHandlers) ListCompanies(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	companies, err := h.hubservice.ListCompanies(r.Context(), principal, includeInactive)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, companies)
}

// Shared handler helpers

func requestPrincipal(w http.ResponseWriter, r *http.Request, requestID string) (authz.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithError(w, errors.NewAuthError("no principal in context", nil).WithRequestID(requestID))
	}
	return principal, ok
}

func parseID(r *http.Request, name string) (int64, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars[name], 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("invalid "+name, err)
	}
	return id, nil
}

func asAPIError(err error) *errors.APIError {
	if apiErr, ok := err.(*errors.APIError); ok {
		return apiErr
	}
	return errors.NewInternalError("internal error", err)
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
