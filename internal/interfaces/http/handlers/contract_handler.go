package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/turtacn/TransitLedger/internal/application/reporting"
	"github.com/turtacn/TransitLedger/internal/application/settlement"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// ContractHandler handles HTTP requests for transport contracts.
type ContractHandler struct {
	contracts settlement.ContractService
	exports   reporting.ExportService
	logger    logging.Logger
}

// NewContractHandler creates a new ContractHandler. exports may be nil when
// no object store is configured; the export endpoint then answers 503.
func NewContractHandler(contracts settlement.ContractService, exports reporting.ExportService, logger logging.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, exports: exports, logger: logger}
}

// CreateContractRequest is the request body for creating a contract.
type CreateContractRequest struct {
	NumeroBL         string          `json:"numero_bl" validate:"required,max=64"`
	EntrepriseID     string          `json:"entreprise_id" validate:"required"`
	TruckID          string          `json:"camion_id" validate:"required"`
	DriverID         string          `json:"chauffeur_id" validate:"required"`
	ClientID         string          `json:"client_id"`
	TransitaireID    string          `json:"transitaire_id"`
	ContainerID      string          `json:"conteneur_id"`
	LieuChargement   string          `json:"lieu_chargement" validate:"max=255"`
	Destinataire     string          `json:"destinataire" validate:"max=255"`
	MontantTotal     decimal.Decimal `json:"montant_total" validate:"gt=0"`
	AvanceTransport  decimal.Decimal `json:"avance_transport" validate:"gte=0"`
	Caution          decimal.Decimal `json:"caution" validate:"gte=0"`
	DateDebut        *Date           `json:"date_debut" validate:"required"`
	DateLimiteRetour *Date           `json:"date_limite_retour"`
	Commentaire      string          `json:"commentaire"`
}

// UpdateContractRequest is the request body for editing a contract. Omitted
// fields are left unchanged.
type UpdateContractRequest struct {
	TruckID          *string          `json:"camion_id"`
	DriverID         *string          `json:"chauffeur_id"`
	Destinataire     *string          `json:"destinataire" validate:"omitempty,max=255"`
	LieuChargement   *string          `json:"lieu_chargement" validate:"omitempty,max=255"`
	MontantTotal     *decimal.Decimal `json:"montant_total" validate:"omitempty,gt=0"`
	AvanceTransport  *decimal.Decimal `json:"avance_transport" validate:"omitempty,gte=0"`
	Caution          *decimal.Decimal `json:"caution" validate:"omitempty,gte=0"`
	DateLimiteRetour *Date            `json:"date_limite_retour"`
	Commentaire      *string          `json:"commentaire"`
}

// CancelRequest is the request body of every cancellation endpoint.
type CancelRequest struct {
	Raison string `json:"raison" validate:"required,max=500"`
}

// Create handles POST /api/v1/contracts
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	dateDebut, err := requireDate("date_debut", req.DateDebut)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	in := settlement.CreateContractInput{
		NumeroBL:         strings.TrimSpace(req.NumeroBL),
		EntrepriseID:     req.EntrepriseID,
		TruckID:          req.TruckID,
		DriverID:         req.DriverID,
		ClientID:         req.ClientID,
		TransitaireID:    req.TransitaireID,
		ContainerID:      req.ContainerID,
		LieuChargement:   req.LieuChargement,
		Destinataire:     req.Destinataire,
		MontantTotal:     req.MontantTotal,
		AvanceTransport:  req.AvanceTransport,
		Caution:          req.Caution,
		DateDebut:        dateDebut,
		DateLimiteRetour: req.DateLimiteRetour.ptr(),
		Commentaire:      req.Commentaire,
	}
	agg, err := h.contracts.CreateContract(r.Context(), in, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, agg)
}

// Get handles GET /api/v1/contracts/{id}
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.GetContract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /api/v1/contracts/{id}
func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateContractRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	in := settlement.UpdateContractInput{
		TruckID:          req.TruckID,
		DriverID:         req.DriverID,
		Destinataire:     req.Destinataire,
		LieuChargement:   req.LieuChargement,
		MontantTotal:     req.MontantTotal,
		AvanceTransport:  req.AvanceTransport,
		Caution:          req.Caution,
		DateLimiteRetour: req.DateLimiteRetour.ptr(),
		Commentaire:      req.Commentaire,
	}
	c, err := h.contracts.UpdateContract(r.Context(), chi.URLParam(r, "id"), in, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/v1/contracts/{id}
func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.contracts.DeleteContract(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /api/v1/contracts/{id}/cancel
func (h *ContractHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.contracts.CancelContract(r.Context(), chi.URLParam(r, "id"), req.Raison, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BlockCaution handles POST /api/v1/contracts/{id}/caution/block
func (h *ContractHandler) BlockCaution(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.BlockCaution(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ReleaseCaution handles POST /api/v1/contracts/{id}/caution/release
func (h *ContractHandler) ReleaseCaution(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.ReleaseCaution(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Events handles GET /api/v1/contracts/{id}/events
func (h *ContractHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.contracts.ListEvents(r.Context(), domain.EntityContract, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// Export handles POST /api/v1/contracts/{id}/export
func (h *ContractHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Code:    string(errors.ErrCodeServiceUnavailable),
			Message: "export indisponible",
		}})
		return
	}
	res, err := h.exports.ExportContract(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
