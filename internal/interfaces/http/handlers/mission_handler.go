package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/TransitLedger/internal/application/settlement"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
)

// MissionHandler handles HTTP requests that drive the mission state machine.
type MissionHandler struct {
	missions  settlement.MissionService
	contracts settlement.ContractService
	logger    logging.Logger
}

// NewMissionHandler creates a new MissionHandler.
func NewMissionHandler(missions settlement.MissionService, contracts settlement.ContractService, logger logging.Logger) *MissionHandler {
	return &MissionHandler{missions: missions, contracts: contracts, logger: logger}
}

// TerminateMissionRequest is the request body for closing a mission.
type TerminateMissionRequest struct {
	DateRetour      *Date `json:"date_retour"`
	Force           bool  `json:"force"`
	AdjustDeparture bool  `json:"ajuster_depart"`
}

// DateRequest carries the single date of an arrival or unloading record.
type DateRequest struct {
	Date *Date `json:"date" validate:"required"`
}

// Get handles GET /api/v1/missions/{id}
func (h *MissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.missions.GetMission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Terminate handles POST /api/v1/missions/{id}/terminate. A late return
// without force answers 422 with the delay and penalty in error.meta so the
// client can ask for confirmation and retry with force set.
func (h *MissionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	var req TerminateMissionRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	in := settlement.TerminateMissionInput{
		DateRetour:      req.DateRetour.ptr(),
		Force:           req.Force,
		AdjustDeparture: req.AdjustDeparture,
	}
	res, err := h.missions.TerminateMission(r.Context(), chi.URLParam(r, "id"), in, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Cancel handles POST /api/v1/missions/{id}/cancel
func (h *MissionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.missions.CancelMission(r.Context(), chi.URLParam(r, "id"), req.Raison, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Arrival handles POST /api/v1/missions/{id}/arrival
func (h *MissionHandler) Arrival(w http.ResponseWriter, r *http.Request) {
	var req DateRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	date, err := requireDate("date", req.Date)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.missions.RecordArrival(r.Context(), chi.URLParam(r, "id"), date, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unloading handles POST /api/v1/missions/{id}/unloading
func (h *MissionHandler) Unloading(w http.ResponseWriter, r *http.Request) {
	var req DateRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	date, err := requireDate("date", req.Date)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.missions.RecordUnloading(r.Context(), chi.URLParam(r, "id"), date, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Demurrage handles GET /api/v1/missions/{id}/demurrage
func (h *MissionHandler) Demurrage(w http.ResponseWriter, r *http.Request) {
	res, err := h.missions.Demurrage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Events handles GET /api/v1/missions/{id}/events
func (h *MissionHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.contracts.ListEvents(r.Context(), domain.EntityMission, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
