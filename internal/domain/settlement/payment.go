package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// PaymentStatus is the status of a mission payment.
type PaymentStatus string

const (
	PaymentEnAttente PaymentStatus = "en_attente"
	PaymentValide    PaymentStatus = "valide"
	PaymentAnnule    PaymentStatus = "annule"
)

// CautionSnapshot is the read-only copy of a caution taken when a payment is
// validated.
type CautionSnapshot struct {
	CautionID         string          `json:"caution_id"`
	Statut            CautionStatus   `json:"statut"`
	MontantRembourser decimal.Decimal `json:"montant_rembourser"`
	Montant           decimal.Decimal `json:"montant"`
}

// Payment settles a mission (PaiementMission).
type Payment struct {
	ID                    string           `json:"id"`
	MissionID             string           `json:"mission_id"`
	CautionID             string           `json:"caution_id,omitempty"`
	PrestationID          string           `json:"prestation_id"`
	MontantTotal          decimal.Decimal  `json:"montant_total"`
	CommissionTransitaire decimal.Decimal  `json:"commission_transitaire"`
	FraisStationnement    decimal.Decimal  `json:"frais_stationnement"`
	CautionEstRetiree     bool             `json:"caution_est_retiree"`
	DatePaiement          time.Time        `json:"date_paiement"`
	ModePaiement          string           `json:"mode_paiement,omitempty"`
	Observation           string           `json:"observation,omitempty"`
	EstValide             bool             `json:"est_valide"`
	DateValidation        *time.Time       `json:"date_validation,omitempty"`
	StatutPaiement        PaymentStatus    `json:"statut_paiement"`
	CautionSnapshot       *CautionSnapshot `json:"caution_snapshot,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`

	journal
}

// NewPayment seeds the pending payment of a mission.
func NewPayment(id string, m *Mission, caution *Caution, prestationID string, total, commission decimal.Decimal, now time.Time) *Payment {
	p := &Payment{
		ID:                    id,
		MissionID:             m.ID,
		PrestationID:          prestationID,
		MontantTotal:          total,
		CommissionTransitaire: commission,
		FraisStationnement:    decimal.Zero,
		DatePaiement:          Date(now),
		Observation:           "Paiement créé automatiquement - En attente de validation",
		StatutPaiement:        PaymentEnAttente,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if caution != nil {
		p.CautionID = caution.ID
	}
	p.record(EntityPayment, p.ID, EventPaymentCreated, map[string]interface{}{
		"montant_total":          total.String(),
		"commission_transitaire": commission.String(),
	}, now)
	return p
}

// Validate checks the amount and commission caps.
func (p *Payment) Validate() error {
	errs := map[string]string{}

	if !p.MontantTotal.IsPositive() {
		errs["montant_total"] = "Le montant total doit être supérieur à 0"
	}
	if p.FraisStationnement.IsNegative() {
		errs["frais_stationnement"] = "Les frais de stationnement ne peuvent pas être négatifs"
	}

	maxCommission := p.MontantTotal.Mul(MaxCommissionRatio)
	switch {
	case p.CommissionTransitaire.IsNegative():
		errs["commission_transitaire"] = "La commission ne peut pas être négative"
	case p.CommissionTransitaire.GreaterThan(p.MontantTotal):
		errs["commission_transitaire"] = fmt.Sprintf(
			"La commission (%s) ne peut pas dépasser le montant total (%s)",
			FCFA(p.CommissionTransitaire), FCFA(p.MontantTotal))
	case p.CommissionTransitaire.GreaterThan(maxCommission):
		errs["commission_transitaire"] = fmt.Sprintf(
			"La commission (%s) ne peut pas dépasser 30%% du montant total (%s maximum)",
			FCFA(p.CommissionTransitaire), FCFA(maxCommission))
	}

	switch p.StatutPaiement {
	case PaymentEnAttente, PaymentValide, PaymentAnnule:
	default:
		errs["statut_paiement"] = fmt.Sprintf("Statut de paiement inconnu: %q", p.StatutPaiement)
	}
	if p.EstValide != (p.StatutPaiement == PaymentValide) {
		errs["est_valide"] = "L'indicateur de validation ne correspond pas au statut du paiement"
	}

	return apperrors.ValidationFields("Paiement invalide", errs)
}

// Approve validates the payment. The mission must be finished and the linked
// caution, if any, refunded or consumed. The caution is only read: its state
// is copied into the payment snapshot.
func (p *Payment) Approve(m *Mission, caution *Caution, now time.Time) error {
	if p.EstValide {
		return apperrors.InvalidTransition("Ce paiement est déjà validé")
	}
	if p.StatutPaiement == PaymentAnnule {
		return apperrors.InvalidTransition("Impossible de valider un paiement annulé")
	}
	if m == nil || m.Statut != MissionTerminee {
		statut := "inconnu"
		if m != nil {
			statut = string(m.Statut)
		}
		return apperrors.Validation(fmt.Sprintf(
			"Impossible de valider le paiement! La mission est actuellement '%s'. "+
				"Vous devez d'abord terminer la mission avant de valider le paiement.", statut)).
			WithField("mission", "La mission n'est pas terminée")
	}
	if caution != nil && !caution.Statut.Settled() {
		return apperrors.Validation(fmt.Sprintf(
			"Impossible de valider le paiement! La caution de %s a le statut '%s'. "+
				"Veuillez d'abord mettre à jour le statut de la caution (Remboursée ou Consommée).",
			FCFA(caution.Montant), caution.Statut.Label())).
			WithField("caution", "La caution n'est ni remboursée ni consommée")
	}

	p.EstValide = true
	p.DateValidation = &now
	p.StatutPaiement = PaymentValide
	p.UpdatedAt = now

	payload := map[string]interface{}{}
	if caution != nil {
		snap := caution.Snapshot()
		p.CautionSnapshot = &snap
		p.CautionEstRetiree = snap.Statut.Settled()
		payload["caution_id"] = snap.CautionID
		payload["statut"] = string(snap.Statut)
		payload["montant"] = snap.Montant.String()
		payload["montant_rembourser"] = snap.MontantRembourser.String()
	}
	payload["date_validation"] = now.UTC().Format(time.RFC3339)
	p.record(EntityPayment, p.ID, EventCautionSnapshot, payload, now)
	return nil
}

// CancelForMission annuls an unvalidated payment after its mission was
// cancelled. Validated payments are left as they are; the return value
// reports whether the payment changed.
func (p *Payment) CancelForMission(reason string, now time.Time) bool {
	if p.EstValide || p.StatutPaiement == PaymentAnnule {
		return false
	}
	p.StatutPaiement = PaymentAnnule
	p.UpdatedAt = now
	p.record(EntityPayment, p.ID, EventPaymentCancelled, map[string]interface{}{
		"raison": reason,
	}, now)
	return true
}

// SyncDemurrage copies the mission's demurrage fees onto the payment and
// reports whether they changed.
func (p *Payment) SyncDemurrage(m *Mission, now time.Time) bool {
	if p.EstValide || p.FraisStationnement.Equal(m.MontantStationnement) {
		return false
	}
	p.FraisStationnement = m.MontantStationnement
	p.UpdatedAt = now
	if p.FraisStationnement.IsPositive() {
		p.record(EntityPayment, p.ID, EventFraisStationnement, map[string]interface{}{
			"jours_facturables": m.JoursStationnementFacturables,
			"montant":           p.FraisStationnement.String(),
		}, now)
	}
	return true
}
