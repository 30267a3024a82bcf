package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// CautionStatus is the settlement status of a security deposit.
type CautionStatus string

const (
	CautionEnAttente     CautionStatus = "en_attente"
	CautionRemboursee    CautionStatus = "remboursee"
	CautionNonRemboursee CautionStatus = "non_remboursee"
	CautionConsommee     CautionStatus = "consommee"
	CautionAnnulee       CautionStatus = "annulee"
)

// Label returns the display label used in user-facing messages.
func (s CautionStatus) Label() string {
	switch s {
	case CautionEnAttente:
		return "En attente"
	case CautionRemboursee:
		return "Remboursée"
	case CautionNonRemboursee:
		return "Non remboursée"
	case CautionConsommee:
		return "Consommée"
	case CautionAnnulee:
		return "Annulée"
	default:
		return string(s)
	}
}

// Settled reports whether a payment may be validated against this status.
func (s CautionStatus) Settled() bool {
	return s == CautionRemboursee || s == CautionConsommee
}

// Caution is the security deposit attached to a contract.
type Caution struct {
	ID                string          `json:"id"`
	ContractID        string          `json:"contrat_id"`
	ContainerID       string          `json:"conteneur_id"`
	TransitaireID     string          `json:"transitaire_id"`
	ClientID          string          `json:"client_id"`
	DriverID          string          `json:"chauffeur_id"`
	TruckID           string          `json:"camion_id"`
	Montant           decimal.Decimal `json:"montant"`
	Statut            CautionStatus   `json:"statut"`
	MontantRembourser decimal.Decimal `json:"montant_rembourser"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	journal
}

// NewCaution seeds the deposit of a freshly created contract.
func NewCaution(id string, c *Contract, now time.Time) *Caution {
	ca := &Caution{
		ID:                id,
		ContractID:        c.ID,
		ContainerID:       c.ContainerID,
		TransitaireID:     c.TransitaireID,
		ClientID:          c.ClientID,
		DriverID:          c.DriverID,
		TruckID:           c.TruckID,
		Montant:           c.Caution,
		Statut:            CautionEnAttente,
		MontantRembourser: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	ca.record(EntityCaution, ca.ID, EventCautionCreated, map[string]interface{}{
		"montant": ca.Montant.String(),
	}, now)
	return ca
}

// Validate checks the refund invariants.
func (c *Caution) Validate() error {
	errs := map[string]string{}

	if c.Montant.IsNegative() {
		errs["montant"] = "Le montant de la caution ne peut pas être négatif"
	}
	if c.MontantRembourser.IsNegative() {
		errs["montant_rembourser"] = "Le montant remboursé ne peut pas être négatif"
	}

	switch c.Statut {
	case CautionEnAttente, CautionRemboursee, CautionNonRemboursee, CautionConsommee, CautionAnnulee:
	default:
		errs["statut"] = fmt.Sprintf("Statut de caution inconnu: %q", c.Statut)
	}

	if c.Statut == CautionRemboursee && !c.MontantRembourser.IsPositive() {
		errs["montant_rembourser"] = fmt.Sprintf(
			"Le montant remboursé doit être supérieur à 0 si la caution est marquée comme remboursée. "+
				"Veuillez saisir le montant remboursé (montant de la caution : %s)", FCFA(c.Montant))
	}
	if c.MontantRembourser.GreaterThan(c.Montant) {
		errs["montant_rembourser"] = fmt.Sprintf(
			"Le montant remboursé (%s) ne peut pas dépasser le montant de la caution (%s)",
			FCFA(c.MontantRembourser), FCFA(c.Montant))
	}
	if !c.Statut.Settled() && c.MontantRembourser.IsPositive() {
		errs["montant_rembourser"] = fmt.Sprintf(
			"Le montant remboursé est de %s mais la caution n'est pas marquée comme remboursée ou consommée. "+
				"Changez le statut ou mettez le montant à 0.", FCFA(c.MontantRembourser))
	}

	return apperrors.ValidationFields("Caution invalide", errs)
}

// Refund marks the deposit as refunded for amount. The caution is left
// untouched when the result would be invalid.
func (c *Caution) Refund(amount decimal.Decimal, now time.Time) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	next := *c
	next.Statut = CautionRemboursee
	next.MontantRembourser = amount
	if err := next.Validate(); err != nil {
		return err
	}
	c.Statut, c.MontantRembourser, c.UpdatedAt = next.Statut, next.MontantRembourser, now
	c.record(EntityCaution, c.ID, EventCautionRefunded, map[string]interface{}{
		"montant_rembourser": amount.String(),
	}, now)
	return nil
}

// Consume marks the deposit as kept to cover costs.
func (c *Caution) Consume(now time.Time) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	c.Statut = CautionConsommee
	c.UpdatedAt = now
	c.record(EntityCaution, c.ID, EventCautionConsumed, map[string]interface{}{
		"montant": c.Montant.String(),
	}, now)
	return nil
}

// MarkNotRefunded records that the deposit will not be returned.
func (c *Caution) MarkNotRefunded(now time.Time) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	c.Statut = CautionNonRemboursee
	c.MontantRembourser = decimal.Zero
	c.UpdatedAt = now
	c.record(EntityCaution, c.ID, EventCautionNotRefunded, nil, now)
	return nil
}

// Annul moves the caution to annulee and reports whether it changed. It is
// idempotent so the mission and contract cascades can both call it. The
// previous status and refunded amount are kept in the event payload.
func (c *Caution) Annul(reason string, now time.Time) bool {
	if c.Statut == CautionAnnulee {
		return false
	}
	from, refunded := c.Statut, c.MontantRembourser
	c.Statut = CautionAnnulee
	c.MontantRembourser = decimal.Zero
	c.UpdatedAt = now
	c.record(EntityCaution, c.ID, EventCautionAnnulled, map[string]interface{}{
		"raison":             reason,
		"statut_initial":     string(from),
		"montant_rembourser": refunded.String(),
	}, now)
	return true
}

// Snapshot captures the caution state read by payment validation.
func (c *Caution) Snapshot() CautionSnapshot {
	return CautionSnapshot{
		CautionID:         c.ID,
		Statut:            c.Statut,
		MontantRembourser: c.MontantRembourser,
		Montant:           c.Montant,
	}
}

func (c *Caution) requireOpen() error {
	if c.Statut == CautionAnnulee {
		return apperrors.InvalidTransition("La caution est annulée")
	}
	return nil
}
