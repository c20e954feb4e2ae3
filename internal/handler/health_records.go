package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/service"
)

// HealthEventRequest is the body for POST .../health-events.
type HealthEventRequest struct {
	EventType string `json:"eventType"`
	EventDate string `json:"eventDate"` // yyyy-mm-dd
	Symptoms  string `json:"symptoms,omitempty"`
	Diagnosis string `json:"diagnosis,omitempty"`
	Treatment string `json:"treatment,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// HealthEventResponse is the wire form of a health log entry.
type HealthEventResponse struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	EventDate string    `json:"eventDate"`
	Symptoms  string    `json:"symptoms,omitempty"`
	Diagnosis string    `json:"diagnosis,omitempty"`
	Treatment string    `json:"treatment,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VaccinationRequest is the body for POST .../vaccinations.
type VaccinationRequest struct {
	VaccineName     string `json:"vaccineName"`
	VaccinationDate string `json:"vaccinationDate"` // yyyy-mm-dd
	AdministeredBy  string `json:"administeredBy,omitempty"`
	BatchNumber     string `json:"batchNumber,omitempty"`
	NextDueDate     string `json:"nextDueDate,omitempty"`
	IsBooster       bool   `json:"isBooster,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// VaccinationResponse is the wire form of a vaccination log entry.
type VaccinationResponse struct {
	ID              string    `json:"id"`
	VaccineName     string    `json:"vaccineName"`
	VaccinationDate string    `json:"vaccinationDate"`
	AdministeredBy  string    `json:"administeredBy,omitempty"`
	BatchNumber     string    `json:"batchNumber,omitempty"`
	NextDueDate     string    `json:"nextDueDate,omitempty"`
	IsBooster       bool      `json:"isBooster"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HealthRecordsHandler serves the per-animal health and vaccination logs.
type HealthRecordsHandler struct {
	animals *service.AnimalService
	logger  *slog.Logger
}

func NewHealthRecordsHandler(animals *service.AnimalService, logger *slog.Logger) *HealthRecordsHandler {
	return &HealthRecordsHandler{animals: animals, logger: logger}
}

// RecordHealthEvent handles POST /api/farms/{id}/animals/{animalId}/health-events.
func (h *HealthRecordsHandler) RecordHealthEvent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	var req HealthEventRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.EventType == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "eventType is required"})
		return
	}
	eventDate, err := time.Parse(dateLayout, req.EventDate)
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "eventDate must be yyyy-mm-dd"})
		return
	}

	e := &domain.HealthEvent{
		EventType: req.EventType,
		EventDate: eventDate,
		Symptoms:  req.Symptoms,
		Diagnosis: req.Diagnosis,
		Treatment: req.Treatment,
		Notes:     req.Notes,
	}
	created, err := h.animals.RecordHealthEvent(r.Context(), farmID, userID, animalID, e)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, healthEventResponse(created))
}

// ListHealthEvents handles GET /api/farms/{id}/animals/{animalId}/health-events.
func (h *HealthRecordsHandler) ListHealthEvents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	events, err := h.animals.ListHealthEvents(r.Context(), farmID, userID, animalID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]HealthEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, healthEventResponse(e))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// RecordVaccination handles POST /api/farms/{id}/animals/{animalId}/vaccinations.
func (h *HealthRecordsHandler) RecordVaccination(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	var req VaccinationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.VaccineName == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "vaccineName is required"})
		return
	}
	vaccDate, err := time.Parse(dateLayout, req.VaccinationDate)
	if err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "vaccinationDate must be yyyy-mm-dd"})
		return
	}

	v := &domain.VaccinationRecord{
		VaccineName:     req.VaccineName,
		VaccinationDate: vaccDate,
		AdministeredBy:  req.AdministeredBy,
		BatchNumber:     req.BatchNumber,
		IsBooster:       req.IsBooster,
		Notes:           req.Notes,
	}
	if req.NextDueDate != "" {
		due, err := time.Parse(dateLayout, req.NextDueDate)
		if err != nil {
			writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "nextDueDate must be yyyy-mm-dd"})
			return
		}
		v.NextDueDate = &due
	}

	created, err := h.animals.RecordVaccination(r.Context(), farmID, userID, animalID, v)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, vaccinationResponse(created))
}

// ListVaccinations handles GET /api/farms/{id}/animals/{animalId}/vaccinations.
func (h *HealthRecordsHandler) ListVaccinations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")
	animalID := r.PathValue("animalId")

	records, err := h.animals.ListVaccinations(r.Context(), farmID, userID, animalID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]VaccinationResponse, 0, len(records))
	for _, v := range records {
		out = append(out, vaccinationResponse(v))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

func healthEventResponse(e *domain.HealthEvent) HealthEventResponse {
	return HealthEventResponse{
		ID:        e.ID,
		EventType: e.EventType,
		EventDate: e.EventDate.Format(dateLayout),
		Symptoms:  e.Symptoms,
		Diagnosis: e.Diagnosis,
		Treatment: e.Treatment,
		Notes:     e.Notes,
		CreatedAt: e.CreatedAt,
	}
}

func vaccinationResponse(v *domain.VaccinationRecord) VaccinationResponse {
	resp := VaccinationResponse{
		ID:              v.ID,
		VaccineName:     v.VaccineName,
		VaccinationDate: v.VaccinationDate.Format(dateLayout),
		AdministeredBy:  v.AdministeredBy,
		BatchNumber:     v.BatchNumber,
		IsBooster:       v.IsBooster,
		Notes:           v.Notes,
		CreatedAt:       v.CreatedAt,
	}
	if v.NextDueDate != nil {
		resp.NextDueDate = v.NextDueDate.Format(dateLayout)
	}
	return resp
}
