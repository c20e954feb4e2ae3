package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/service"
)

const dateLayout = "2006-01-02"

// AnimalRequest is the body for POST /api/farms/{id}/animals.
type AnimalRequest struct {
	Name        string   `json:"name"`
	Breed       string   `json:"breed,omitempty"`
	Type        string   `json:"type"` // "dairy" or "beef"
	DateOfBirth string   `json:"dateOfBirth,omitempty"` // yyyy-mm-dd
	Notes       string   `json:"notes,omitempty"`
	Status      []string `json:"status,omitempty"`
}

// AnimalResponse is the wire form of an animal.
type AnimalResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Breed       string   `json:"breed,omitempty"`
	Type        string   `json:"type"`
	DateOfBirth string   `json:"dateOfBirth,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Status      []string `json:"status"`
}

// StatusRequest is the body for PUT /api/farms/{id}/animals/{animalId}/status.
type StatusRequest struct {
	Status []string `json:"status"`
}

// DailyRecordRequest is the body for PUT .../records/{date}.
type DailyRecordRequest struct {
	Weight float64  `json:"weight"`
	Feed   float64  `json:"feed"`
	Milk   *float64 `json:"milk,omitempty"`
	Health string   `json:"health,omitempty"`
	Notes  string   `json:"notes,omitempty"`
}

// DailyRecordResponse is the wire form of a daily record.
type DailyRecordResponse struct {
	Date   string   `json:"date"`
	Weight float64  `json:"weight"`
	Feed   float64  `json:"feed"`
	Milk   *float64 `json:"milk,omitempty"`
	Health string   `json:"health,omitempty"`
	Notes  string   `json:"notes,omitempty"`
}

// AnimalsHandler serves the animal registry and daily record routes.
type AnimalsHandler struct {
	animals *service.AnimalService
	logger  *slog.Logger
}

func NewAnimalsHandler(animals *service.AnimalService, logger *slog.Logger) *AnimalsHandler {
	return &AnimalsHandler{animals: animals, logger: logger}
}

// Create handles POST /api/farms/{id}/animals.
func (h *AnimalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	var req AnimalRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	a := &domain.Animal{
		Name:   req.Name,
		Breed:  req.Breed,
		Type:   domain.AnimalType(req.Type),
		Notes:  req.Notes,
		Status: req.Status,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "dateOfBirth must be yyyy-mm-dd"})
			return
		}
		a.DateOfBirth = dob
	}

	created, err := h.animals.CreateAnimal(r.Context(), farmID, userID, a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, animalResponse(created))
}

// List handles GET /api/farms/{id}/animals.
func (h *AnimalsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	animals, err := h.animals.ListAnimals(r.Context(), farmID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]AnimalResponse, 0, len(animals))
	for _, a := range animals {
		out = append(out, animalResponse(a))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// Get handles GET /api/farms/{id}/animals/{animalId}.
func (h *AnimalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	a, err := h.animals.GetAnimal(r.Context(), farmID, userID, animalID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, animalResponse(a))
}

// Delete handles DELETE /api/farms/{id}/animals/{animalId}.
func (h *AnimalsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	if err := h.animals.DeleteAnimal(r.Context(), farmID, userID, animalID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PUT /api/farms/{id}/animals/{animalId}/status.
func (h *AnimalsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	var req StatusRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if err := h.animals.SetStatus(r.Context(), farmID, userID, animalID, req.Status); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertRecord handles PUT /api/farms/{id}/animals/{animalId}/records/{date}.
func (h *AnimalsHandler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	date, err := time.Parse(dateLayout, r.PathValue("date"))
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "date must be yyyy-mm-dd"})
		return
	}

	var req DailyRecordRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Feed < 0 || (req.Milk != nil && *req.Milk < 0) {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "feed and milk must be non-negative"})
		return
	}

	rec := &domain.DailyRecord{
		Date:   date,
		Weight: req.Weight,
		Feed:   req.Feed,
		Milk:   req.Milk,
		Health: req.Health,
		Notes:  req.Notes,
	}
	if err := h.animals.SubmitDailyRecord(r.Context(), farmID, userID, animalID, rec); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, recordResponse(rec))
}

// ListRecords handles GET /api/farms/{id}/animals/{animalId}/records.
func (h *AnimalsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	records, err := h.animals.ListDailyRecords(r.Context(), farmID, userID, animalID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]DailyRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse(rec))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

func animalResponse(a *domain.Animal) AnimalResponse {
	resp := AnimalResponse{
		ID:     a.ID,
		Name:   a.Name,
		Breed:  a.Breed,
		Type:   string(a.Type),
		Notes:  a.Notes,
		Status: a.Status,
	}
	if !a.DateOfBirth.IsZero() {
		resp.DateOfBirth = a.DateOfBirth.Format(dateLayout)
	}
	return resp
}

func recordResponse(rec *domain.DailyRecord) DailyRecordResponse {
	return DailyRecordResponse{
		Date:   rec.Date.Format(dateLayout),
		Weight: rec.Weight,
		Feed:   rec.Feed,
		Milk:   rec.Milk,
		Health: rec.Health,
		Notes:  rec.Notes,
	}
}
