package handlers

import (
	"net/http"
	"time"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// DemurrageHandler prices a stay without touching any mission, for quotes.
type DemurrageHandler struct {
	policy domain.Policy
	calc   *domain.DemurrageCalculator
	logger logging.Logger
	now    func() time.Time
}

// NewDemurrageHandler creates a new DemurrageHandler.
func NewDemurrageHandler(policy domain.Policy, logger logging.Logger) *DemurrageHandler {
	return &DemurrageHandler{
		policy: policy,
		calc:   domain.NewDemurrageCalculator(policy),
		logger: logger,
		now:    time.Now,
	}
}

// ComputeDemurrageRequest is the request body for a demurrage quote.
// Without an unloading date the stay runs until today.
type ComputeDemurrageRequest struct {
	DateArrivee      *Date `json:"date_arrivee" validate:"required"`
	DateDechargement *Date `json:"date_dechargement"`
}

// Compute handles POST /api/v1/demurrage/compute
func (h *DemurrageHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeDemurrageRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	arrival, err := requireDate("date_arrivee", req.DateArrivee)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	unloading := req.DateDechargement.ptr()
	if unloading != nil && unloading.Before(arrival) {
		writeAppError(w, h.logger, errors.New(errors.ErrCodeValidation, "requête invalide").
			WithField("date_dechargement", "Doit être postérieure ou égale à la date d'arrivée"))
		return
	}
	writeJSON(w, http.StatusOK, h.calc.Compute(&arrival, unloading, h.policy.Today(h.now())))
}
