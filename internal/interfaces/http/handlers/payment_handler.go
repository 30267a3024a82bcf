package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/turtacn/TransitLedger/internal/application/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
)

// PaymentHandler handles HTTP requests for payments and cautions.
type PaymentHandler struct {
	payments settlement.PaymentService
	logger   logging.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments settlement.PaymentService, logger logging.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// RefundCautionRequest is the request body for refunding a caution.
type RefundCautionRequest struct {
	Montant decimal.Decimal `json:"montant" validate:"gt=0"`
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ValidatePayment handles POST /api/v1/payments/{id}/validate
func (h *PaymentHandler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.ValidatePayment(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCaution handles GET /api/v1/cautions/{id}
func (h *PaymentHandler) GetCaution(w http.ResponseWriter, r *http.Request) {
	c, err := h.payments.GetCaution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RefundCaution handles POST /api/v1/cautions/{id}/refund
func (h *PaymentHandler) RefundCaution(w http.ResponseWriter, r *http.Request) {
	var req RefundCautionRequest
	if err := decode(r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	c, err := h.payments.RefundCaution(r.Context(), chi.URLParam(r, "id"), req.Montant, middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ConsumeCaution handles POST /api/v1/cautions/{id}/consume
func (h *PaymentHandler) ConsumeCaution(w http.ResponseWriter, r *http.Request) {
	c, err := h.payments.ConsumeCaution(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// MarkCautionNotRefunded handles POST /api/v1/cautions/{id}/not-refunded
func (h *PaymentHandler) MarkCautionNotRefunded(w http.ResponseWriter, r *http.Request) {
	c, err := h.payments.MarkCautionNotRefunded(r.Context(), chi.URLParam(r, "id"), middleware.RequestMeta(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
