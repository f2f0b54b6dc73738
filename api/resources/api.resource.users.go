// FilePath: api/resources/api.resource.users.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// UserHandlers encapsulates the user-related HTTP handlers
type UserHandlers struct {
	hubservice *hubservice.HubService
	auth       *auth.Service
}

type createUserRequest struct {
	models.User
	Password string `json:"password"`
}

func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if req.Password == "" {
		respondWithError(w, errors.NewValidationError("password is required", nil).WithRequestID(requestID))
		return
	}

	hash, err := auth.BcryptHasher{}.Hash(req.Password)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.CreateUser(r.Context(), principal, &req.User, hash); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusCreated, req.User)
}

func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	user, err := h.hubservice.GetUser(r.Context(), principal, id)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	user.ID = id

	if err := h.hubservice.UpdateUser(r.Context(), principal, &user); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *UserHandlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.DeactivateUser(r.Context(), principal, id); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	users, err := h.hubservice.ListUsers(r.Context(), principal, includeInactive)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, users)
}

type companyAssignmentRequest struct {
	CompanyID int64 `json:"company_id"`
}

func (h *UserHandlers) AssignCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var req companyAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.AssignCompany(r.Context(), principal, id, req.CompanyID); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *UserHandlers) RemoveCompany(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	userID, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	companyID, err := parseID(r, "companyId")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RemoveCompany(r.Context(), principal, userID, companyID); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type replaceCompaniesRequest struct {
	CompanyIDs []int64 `json:"company_ids"`
}

// ReplaceCompanies swaps the user's whole assignment set atomically.
func (h *UserHandlers) ReplaceCompanies(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var req replaceCompaniesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.ReplaceCompanies(r.Context(), principal, id, req.CompanyIDs); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "replaced"})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.AssignRole(r.Context(), principal, id, req.Role); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *UserHandlers) RemoveRole(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}

	role := r.URL.Query().Get("role")
	if role == "" {
		respondWithError(w, errors.NewValidationError("role is required", nil).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.RemoveRole(r.Context(), principal, id, role); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
