package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/herdsphere/herdsphere/internal/security/middleware"
	"github.com/herdsphere/herdsphere/internal/service"
)

// StockResponse is the wire form of the farm aggregate counters.
type StockResponse struct {
	TotalFeed   float64   `json:"totalFeed"`
	TotalMilk   float64   `json:"totalMilk"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// StockOverrideRequest is the body for POST /api/farms/{id}/stock/adjust.
type StockOverrideRequest struct {
	Kind  string  `json:"kind"` // "totalFeed" or "totalMilk"
	Value float64 `json:"value"`
}

// SnapshotResponse is one stock history point.
type SnapshotResponse struct {
	TotalFeed float64   `json:"totalFeed"`
	TotalMilk float64   `json:"totalMilk"`
	TakenAt   time.Time `json:"takenAt"`
}

// StockHandler serves the aggregate counter routes.
type StockHandler struct {
	farms  *service.FarmService
	stock  *service.StockService
	logger *slog.Logger
}

func NewStockHandler(farms *service.FarmService, stock *service.StockService, logger *slog.Logger) *StockHandler {
	return &StockHandler{farms: farms, stock: stock, logger: logger}
}

// Get handles GET /api/farms/{id}/stock.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	if err := h.farms.RequireMember(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ledger, err := h.stock.GetStock(r.Context(), farmID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, StockResponse{
		TotalFeed:   ledger.TotalFeed,
		TotalMilk:   ledger.TotalMilk,
		LastUpdated: ledger.LastUpdated,
	})
}

// Override handles POST /api/farms/{id}/stock/adjust, setting one counter
// to an absolute value after a physical count.
func (h *StockHandler) Override(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	if err := h.farms.RequireMember(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req StockOverrideRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if req.Kind != "totalFeed" && req.Kind != "totalMilk" {
		writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "kind must be totalFeed or totalMilk"})
		return
	}

	if err := h.stock.SetAbsoluteStock(r.Context(), farmID, userID, req.Kind, req.Value); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ledger, err := h.stock.GetStock(r.Context(), farmID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, StockResponse{
		TotalFeed:   ledger.TotalFeed,
		TotalMilk:   ledger.TotalMilk,
		LastUpdated: ledger.LastUpdated,
	})
}

// History handles GET /api/farms/{id}/stock/history?limit=N.
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	farmID := r.PathValue("id")

	if err := h.farms.RequireMember(r.Context(), farmID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, h.logger, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	snaps, err := h.stock.ListHistory(r.Context(), farmID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]SnapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, SnapshotResponse{TotalFeed: s.TotalFeed, TotalMilk: s.TotalMilk, TakenAt: s.TakenAt})
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}
