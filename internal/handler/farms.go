package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/service"
)

// CreateFarmRequest is the body for POST /api/farms.
type CreateFarmRequest struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// FarmResponse is the wire form of a farm root.
type FarmResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Members   []string  `json:"members"`
	JoinCode  string    `json:"joinCode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileResponse is the wire form of a farm profile.
type ProfileResponse struct {
	FarmName  string    `json:"farmName"`
	Location  string    `json:"location"`
	JoinCode  string    `json:"joinCode"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateProfileRequest is the body for PUT /api/farms/{id}/profile.
type UpdateProfileRequest struct {
	FarmName string `json:"farmName"`
	Location string `json:"location"`
}

// BreedRequest is the body for POST /api/farms/{id}/breeds.
type BreedRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// BreedResponse is the wire form of a breed catalog entry.
type BreedResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FarmsHandler serves the farm lifecycle, profile and breed routes.
type FarmsHandler struct {
	farms  *service.FarmService
	logger *slog.Logger
}

func NewFarmsHandler(farms *service.FarmService, logger *slog.Logger) *FarmsHandler {
	return &FarmsHandler{farms: farms, logger: logger}
}

// Create handles POST /api/farms.
func (h *FarmsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateFarmRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	farm, err := h.farms.CreateFarm(r.Context(), userID, req.Name, req.Location)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, farmResponse(farm, true))
}

// Get handles GET /api/farms/{id}. The join code is only included for the
// farm owner.
func (h *FarmsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	farm, err := h.farms.GetFarm(r.Context(), farmID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !farm.IsMember(userID) {
		writeError(w, h.logger, domain.ErrForbidden)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, farmResponse(farm, farm.Owner == userID))
}

// Delete handles DELETE /api/farms/{id}.
func (h *FarmsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	if err := h.farms.DeleteFarm(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles GET /api/farms/{id}/profile.
func (h *FarmsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	p, err := h.farms.GetProfile(r.Context(), farmID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, profileResponse(p))
}

// UpdateProfile handles PUT /api/farms/{id}/profile.
func (h *FarmsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	var req UpdateProfileRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.FarmName == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "farmName is required"})
		return
	}

	p, err := h.farms.UpdateProfile(r.Context(), farmID, userID, req.FarmName, req.Location)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, profileResponse(p))
}

// AddBreed handles POST /api/farms/{id}/breeds.
func (h *FarmsHandler) AddBreed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	var req BreedRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	b, err := h.farms.AddBreed(r.Context(), farmID, userID, req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, BreedResponse{ID: b.ID, Name: b.Name, Description: b.Description})
}

// ListBreeds handles GET /api/farms/{id}/breeds.
func (h *FarmsHandler) ListBreeds(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	breeds, err := h.farms.ListBreeds(r.Context(), farmID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]BreedResponse, 0, len(breeds))
	for _, b := range breeds {
		out = append(out, BreedResponse{ID: b.ID, Name: b.Name, Description: b.Description})
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// RemoveBreed handles DELETE /api/farms/{id}/breeds/{breedId}.
func (h *FarmsHandler) RemoveBreed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	breedID := r.PathValue("breedId")

	if err := h.farms.RemoveBreed(r.Context(), farmID, userID, breedID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func farmResponse(f *domain.Farm, includeCode bool) FarmResponse {
	resp := FarmResponse{
		ID:        f.ID,
		Name:      f.Name,
		Owner:     f.Owner,
		Members:   f.Members,
		CreatedAt: f.CreatedAt,
	}
	if includeCode {
		resp.JoinCode = f.JoinCode
	}
	return resp
}

func profileResponse(p *domain.Profile) ProfileResponse {
	return ProfileResponse{
		FarmName:  p.FarmName,
		Location:  p.Location,
		JoinCode:  p.JoinCode,
		CreatedAt: p.CreatedAt,
	}
}
