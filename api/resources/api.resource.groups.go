// FilePath: api/resources/api.resource.groups.go
package resources

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/hubservice"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// GroupHandlers encapsulates the sensor-group HTTP handlers
type GroupHandlers struct {
	hubservice *hubservice.HubService
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	var group models.SensorGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.hubservice.CreateGroup(r.Context(), principal, &group); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusCreated, group)
}

func (h *GroupHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
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

	group, err := h.hubservice.GetGroup(r.Context(), principal, id)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, group)
}

func (h *GroupHandlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
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

	var group models.SensorGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	group.ID = id

	if err := h.hubservice.UpdateGroup(r.Context(), principal, &group); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, group)
}

func (h *GroupHandlers) DeactivateGroup(w http.ResponseWriter, r *http.Request) {
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

	if err := h.hubservice.DeactivateGroup(r.Context(), principal, id); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	query := r.URL.Query()
	var companyID *int64
	if raw := query.Get("company_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(w, errors.NewValidationError("invalid company_id", err).WithRequestID(requestID))
			return
		}
		companyID = &id
	}
	includeInactive := query.Get("include_inactive") == "true"

	groups, err := h.hubservice.ListGroups(r.Context(), principal, companyID, includeInactive)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, groups)
}
