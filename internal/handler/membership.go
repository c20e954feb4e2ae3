package handler

import (
	"log/slog"
	"net/http"

	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/security/ratelimit"
	"github.com/herdsphere/herdsphere/internal/service"
)

// JoinFarmRequest is the body for POST /api/farms/join.
type JoinFarmRequest struct {
	JoinCode string `json:"joinCode"`
}

// SwitchFarmRequest is the body for PUT /api/me/current-farm.
type SwitchFarmRequest struct {
	FarmID string `json:"farmId"`
}

// MembershipHandler serves join, leave, farm listing and current-farm
// switching.
type MembershipHandler struct {
	membership *service.MembershipService
	joinLimit  *ratelimit.Limiter
	logger     *slog.Logger
}

func NewMembershipHandler(membership *service.MembershipService, joinLimit *ratelimit.Limiter, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{membership: membership, joinLimit: joinLimit, logger: logger}
}

// Join handles POST /api/farms/join. Attempts are throttled per user since
// join codes are guessable tokens.
func (h *MembershipHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if !h.joinLimit.Allow(userID) {
		h.logger.Warn("join attempts throttled", slog.String("user_id", userID))
		writeJSON(w, h.logger, http.StatusTooManyRequests, errorResponse{Error: "too many join attempts"})
		return
	}

	var req JoinFarmRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.JoinCode == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "joinCode is required"})
		return
	}

	farm, err := h.membership.JoinFarm(r.Context(), userID, req.JoinCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, farmResponse(farm, false))
}

// Leave handles POST /api/farms/{id}/leave.
func (h *MembershipHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	if err := h.membership.LeaveFarm(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMine handles GET /api/farms, returning the farms the caller belongs to.
func (h *MembershipHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	farms, err := h.membership.ListFarms(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]FarmResponse, 0, len(farms))
	for _, f := range farms {
		out = append(out, farmResponse(f, f.Owner == userID))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// SwitchCurrentFarm handles PUT /api/me/current-farm.
func (h *MembershipHandler) SwitchCurrentFarm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req SwitchFarmRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.FarmID == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "farmId is required"})
		return
	}

	if err := h.membership.SwitchCurrentFarm(r.Context(), userID, req.FarmID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
