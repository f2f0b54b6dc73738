// FilePath: api/resources/api.resource.auth.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/errors"
	nuts "github.com/vaudience/go-nuts"
)

// AuthHandlers encapsulates login and credential management
type AuthHandlers struct {
	auth *auth.Service
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if req.Username == "" || req.Password == "" {
		respondWithError(w, errors.NewValidationError("username and password are required", nil).WithRequestID(requestID))
		return
	}

	token, _, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, loginResponse{Token: token})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the caller's own password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	principal, ok := requestPrincipal(w, r, requestID)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithError(w, asAPIError(err).WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}
